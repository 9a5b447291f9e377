// Package rule evaluates book source rule expressions against fetched pages.
//
// A rule is a sequence of steps. Extraction steps are dispatched on their
// prefix to the chain, CSS, XPath or JSONPath backend and may be combined
// with || (first non-empty) or && (concatenate). Script steps, written as
// <js>...</js> or a trailing @js:, transform the previous step's output.
// Evaluation never fails: errors are reported to the debug sink and yield
// an empty result.
package rule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/logging"
	"github.com/dotecxy/legado2-sub001/monitoring"
)

// Backend identifies the extraction language of an expression
type Backend int

const (
	BackendChain Backend = iota
	BackendCSS
	BackendXPath
	BackendJSON
)

func (b Backend) String() string {
	switch b {
	case BackendCSS:
		return "css"
	case BackendXPath:
		return "xpath"
	case BackendJSON:
		return "json"
	default:
		return "chain"
	}
}

// Dispatch selects the backend for an expression and strips its prefix
func Dispatch(expr string) (Backend, string) {
	switch {
	case hasPrefixFold(expr, "@css:"):
		return BackendCSS, expr[len("@css:"):]
	case hasPrefixFold(expr, "@xpath:"):
		return BackendXPath, expr[len("@xpath:"):]
	case strings.HasPrefix(expr, "//"):
		return BackendXPath, expr
	case hasPrefixFold(expr, "@json:"):
		return BackendJSON, expr[len("@json:"):]
	case strings.HasPrefix(expr, "$.") || strings.HasPrefix(expr, "$["):
		return BackendJSON, expr
	}
	return BackendChain, expr
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

type backend interface {
	name() string
	strings(c *Context, expr, baseURL string) ([]string, error)
	elements(c *Context, expr string) ([]*Context, error)
}

// Options configures an Analyzer
type Options struct {
	// Sink receives evaluation errors; nil logs through slog
	Sink logging.DebugSink
	// Scripts runs script steps; nil disables them
	Scripts script.Evaluator
	// RegexTimeout bounds each purification match; zero means DefaultRegexTimeout
	RegexTimeout time.Duration
	// CacheSize bounds the parsed rule cache
	CacheSize int
}

// DefaultRegexTimeout bounds purification matches when no timeout is set
const DefaultRegexTimeout = time.Second

// Analyzer evaluates rule expressions. It is safe for concurrent use.
type Analyzer struct {
	sink     logging.DebugSink
	scripts  script.Evaluator
	regex    *regexCache
	backends map[Backend]backend

	mu        sync.RWMutex
	rules     map[string]*parsedRule
	cacheSize int
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Sink == nil {
		opts.Sink = logging.NewSlogSink(nil)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.RegexTimeout <= 0 {
		opts.RegexTimeout = DefaultRegexTimeout
	}
	return &Analyzer{
		sink:    opts.Sink,
		scripts: opts.Scripts,
		regex:   &regexCache{timeout: opts.RegexTimeout},
		backends: map[Backend]backend{
			BackendChain: chainBackend{},
			BackendCSS:   cssBackend{},
			BackendXPath: &xpathBackend{},
			BackendJSON:  jsonBackend{},
		},
		rules:     make(map[string]*parsedRule),
		cacheSize: opts.CacheSize,
	}
}

// step is either a script or an extraction expression
type step struct {
	script bool
	code   string

	purify   *purifier
	combine  string // "", "&&" or "||"
	backends []Backend
	exprs    []string
}

type parsedRule struct {
	steps []step
}

func (a *Analyzer) parse(raw string) *parsedRule {
	a.mu.RLock()
	r, ok := a.rules[raw]
	a.mu.RUnlock()
	if ok {
		return r
	}

	r = &parsedRule{}
	for _, s := range splitSteps(raw) {
		if s.script {
			r.steps = append(r.steps, s)
			continue
		}
		body, p := splitPurification(strings.TrimSpace(s.code))
		s.purify = p
		s.combine, s.exprs = splitCombinator(body)
		for i, e := range s.exprs {
			b, stripped := Dispatch(strings.TrimSpace(e))
			s.backends = append(s.backends, b)
			s.exprs[i] = stripped
		}
		r.steps = append(r.steps, s)
	}

	a.mu.Lock()
	if len(a.rules) >= a.cacheSize {
		a.rules = make(map[string]*parsedRule)
	}
	a.rules[raw] = r
	a.mu.Unlock()
	return r
}

// splitSteps cuts a rule into extraction and script steps
func splitSteps(raw string) []step {
	var tail *step
	lower := strings.ToLower(raw)
	if i := strings.Index(lower, "@js:"); i >= 0 {
		tail = &step{script: true, code: strings.TrimSpace(raw[i+len("@js:"):])}
		raw = raw[:i]
		lower = lower[:i]
	}

	var steps []step
	for {
		start := strings.Index(lower, "<js>")
		if start < 0 {
			break
		}
		end := strings.Index(lower[start:], "</js>")
		if end < 0 {
			break
		}
		end += start
		if s := strings.TrimSpace(raw[:start]); s != "" {
			steps = append(steps, step{code: s})
		}
		steps = append(steps, step{script: true, code: strings.TrimSpace(raw[start+len("<js>") : end])})
		raw = raw[end+len("</js>"):]
		lower = lower[end+len("</js>"):]
	}
	if s := strings.TrimSpace(raw); s != "" {
		steps = append(steps, step{code: s})
	}
	if tail != nil {
		steps = append(steps, *tail)
	}
	return steps
}

// splitCombinator splits on the first top-level && or || operator kind
func splitCombinator(expr string) (string, []string) {
	op := ""
	depth := 0
	var quote byte
	for i := 0; i+1 < len(expr) && op == ""; i++ {
		ch := expr[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[' || ch == '(' || ch == '{':
			depth++
		case ch == ']' || ch == ')' || ch == '}':
			depth--
		case depth == 0 && (expr[i:i+2] == "&&" || expr[i:i+2] == "||"):
			op = expr[i : i+2]
		}
	}
	if op == "" {
		return "", []string{expr}
	}

	var parts []string
	depth, quote = 0, 0
	last := 0
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[' || ch == '(' || ch == '{':
			depth++
		case ch == ']' || ch == ')' || ch == '}':
			depth--
		case depth == 0 && strings.HasPrefix(expr[i:], op):
			parts = append(parts, expr[last:i])
			i++
			last = i + 1
		}
	}
	parts = append(parts, expr[last:])
	return op, parts
}

// Evaluate returns the string values a rule extracts from c. Relative
// href and src values are resolved against baseURL.
func (a *Analyzer) Evaluate(ctx context.Context, c *Context, raw, baseURL string) []string {
	if strings.TrimSpace(raw) == "" || c == nil {
		return nil
	}
	r := a.parse(raw)

	var values []string
	for i, s := range r.steps {
		if s.script {
			out, err := a.runScript(ctx, s.code, scriptInput(c, values, i), baseURL)
			if err != nil {
				a.report(ctx, "script", raw, err)
				return nil
			}
			values = script.ToStrings(out)
			continue
		}
		if i > 0 {
			c = NewContext(strings.Join(values, "\n"))
		}
		values = a.evalStep(ctx, c, s, raw, baseURL)
	}
	return values
}

// String joins the values of a rule with newlines
func (a *Analyzer) String(ctx context.Context, c *Context, raw, baseURL string) string {
	return strings.Join(a.Evaluate(ctx, c, raw, baseURL), "\n")
}

// Elements returns the element contexts a list rule selects from c
func (a *Analyzer) Elements(ctx context.Context, c *Context, raw, baseURL string) []*Context {
	if strings.TrimSpace(raw) == "" || c == nil {
		return nil
	}
	r := a.parse(raw)

	var elems []*Context
	for i, s := range r.steps {
		if s.script {
			out, err := a.runScript(ctx, s.code, elementsInput(c, elems, i), baseURL)
			if err != nil {
				a.report(ctx, "script", raw, err)
				return nil
			}
			elems = scriptElements(out)
			continue
		}
		if i > 0 {
			c = joinContexts(elems)
		}
		elems = a.elementsStep(ctx, c, s, raw)
	}
	return elems
}

// Purify applies a "##pattern##replacement" suffix to value. Regex failures
// are reported and leave value unchanged.
func (a *Analyzer) Purify(ctx context.Context, value, suffix string) string {
	_, p := splitPurification(suffix)
	if p == nil || value == "" {
		return value
	}
	out, err := a.regex.apply(p, []string{value})
	if err != nil {
		a.report(ctx, "regex", suffix, err)
	}
	return out[0]
}

func (a *Analyzer) evalStep(ctx context.Context, c *Context, s step, raw, baseURL string) []string {
	var values []string
	for i, expr := range s.exprs {
		b := a.backends[s.backends[i]]
		got, err := a.safeStrings(b, c, expr, baseURL)
		if err != nil {
			a.report(ctx, b.name(), raw, err)
			got = nil
		}
		values = append(values, got...)
		if s.combine == "||" && len(values) > 0 {
			break
		}
	}
	if s.purify != nil && len(values) > 0 {
		purified, err := a.regex.apply(s.purify, values)
		if err != nil {
			a.report(ctx, "regex", raw, err)
		}
		values = dropEmpty(purified)
	}
	return values
}

func (a *Analyzer) elementsStep(ctx context.Context, c *Context, s step, raw string) []*Context {
	var elems []*Context
	for i, expr := range s.exprs {
		b := a.backends[s.backends[i]]
		got, err := a.safeElements(b, c, expr)
		if err != nil {
			a.report(ctx, b.name(), raw, err)
			got = nil
		}
		elems = append(elems, got...)
		if s.combine == "||" && len(elems) > 0 {
			break
		}
	}
	return elems
}

func (a *Analyzer) safeStrings(b backend, c *Context, expr, baseURL string) (out []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return b.strings(c, expr, baseURL)
}

func (a *Analyzer) safeElements(b backend, c *Context, expr string) (out []*Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return b.elements(c, expr)
}

func (a *Analyzer) runScript(ctx context.Context, code string, input any, baseURL string) (any, error) {
	if a.scripts == nil {
		return nil, fmt.Errorf("no script evaluator configured")
	}
	return a.scripts.Evaluate(ctx, code, map[string]any{
		"result":  input,
		"baseUrl": baseURL,
	})
}

func (a *Analyzer) report(ctx context.Context, backend, raw string, err error) {
	monitoring.RuleErrorsTotal.WithLabelValues(backend).Inc()
	a.sink.Log(logging.SourceKeyFromContext(ctx), fmt.Sprintf("rule %q (%s): %v", raw, backend, err), logging.StateError)
}

func scriptInput(c *Context, values []string, i int) any {
	switch {
	case i == 0:
		return c.Text()
	case len(values) == 1:
		return values[0]
	}
	return values
}

func elementsInput(c *Context, elems []*Context, i int) any {
	if i == 0 {
		return c.Text()
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		out = append(out, e.Text())
	}
	return out
}

// scriptElements turns a script result into element contexts. A string
// holding a JSON array yields one context per item.
func scriptElements(v any) []*Context {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]*Context, 0, len(val))
		for _, item := range val {
			out = append(out, NewContext(script.ToString(item)))
		}
		return out
	}
	c := NewContext(script.ToString(v))
	if c.Kind() == KindJSON && c.json.IsArray() {
		var out []*Context
		for _, item := range c.json.Array() {
			out = append(out, FromJSON(item))
		}
		return out
	}
	return []*Context{c}
}

func joinContexts(elems []*Context) *Context {
	if len(elems) == 1 {
		return elems[0]
	}
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		parts = append(parts, e.Text())
	}
	return NewContext(strings.Join(parts, "\n"))
}

func dropEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
