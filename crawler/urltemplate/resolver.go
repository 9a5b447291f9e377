// Package urltemplate turns the searchUrl and exploreUrl templates of a
// book source into concrete requests.
package urltemplate

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/dotecxy/legado2-sub001/crawler/fetcher"
	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/crawler/urlutil"
	"github.com/dotecxy/legado2-sub001/errors"
)

var (
	pageListPattern    = regexp.MustCompile(`<([^<>]*,[^<>]*)>`)
	placeholderPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)
	pageOffsetPattern  = regexp.MustCompile(`^page\s*([+-])\s*(\d+)$`)
	jsBlockPattern     = regexp.MustCompile(`(?is)<js>(.*?)</js>`)
)

// Params are the values a template is expanded with
type Params struct {
	Key     string
	Page    int
	BaseURL string
	Source  *source.BookSource
	// Literal marks a URL taken from a fetched page: only the option
	// object and source headers apply, nothing is expanded
	Literal bool
}

// Resolver expands URL templates
type Resolver struct {
	scripts script.Evaluator
}

// NewResolver creates a resolver; scripts may be nil when no template uses them
func NewResolver(scripts script.Evaluator) *Resolver {
	return &Resolver{scripts: scripts}
}

// Resolve builds a request from a template of the form
//
//	path?q={{key}}&p={{page}},{"method":"POST","body":"...","charset":"gbk","headers":{...}}
func (r *Resolver) Resolve(ctx context.Context, template string, p Params) (*fetcher.Request, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	tpl := strings.TrimSpace(template)
	if !p.Literal {
		var err error
		if tpl, err = r.runScripts(ctx, tpl, p); err != nil {
			return nil, err
		}
		tpl = selectPage(tpl, p.Page)
	}
	if tpl == "" {
		return nil, errors.ErrURLInvalid.WithCause(errors.New(errors.CodeURLInvalid, "empty url template"))
	}

	var err error
	rawURL, rawOption := urlutil.SplitOption(tpl)

	req := &fetcher.Request{Method: "GET", Headers: map[string]string{}}
	if p.Source != nil {
		for k, v := range p.Source.Headers() {
			req.Headers[k] = v
		}
	}

	if rawOption != "" {
		if !gjson.Valid(rawOption) {
			return nil, errors.ErrURLInvalid.WithURL(tpl)
		}
		opt := gjson.Parse(rawOption)
		if m := opt.Get("method").String(); m != "" {
			req.Method = strings.ToUpper(m)
		}
		req.Charset = opt.Get("charset").String()
		opt.Get("headers").ForEach(func(k, v gjson.Result) bool {
			req.Headers[k.String()] = v.String()
			return true
		})
		if body := opt.Get("body"); body.Exists() {
			raw := body.String()
			if body.IsObject() {
				raw = body.Raw
			}
			encodeKey := !strings.HasPrefix(strings.TrimSpace(raw), "{")
			if req.Body, err = r.expand(ctx, raw, p, req.Charset, encodeKey); err != nil {
				return nil, err
			}
		}
	}

	expanded, err := r.expand(ctx, rawURL, p, req.Charset, true)
	if err != nil {
		return nil, err
	}
	base := p.BaseURL
	if base == "" && p.Source != nil {
		base = p.Source.URL
	}
	req.URL = urlutil.Absolute(base, expanded)
	if _, err := url.Parse(req.URL); err != nil || !urlutil.HasScheme(req.URL) {
		return nil, errors.ErrURLInvalid.WithURL(req.URL)
	}
	return req, nil
}

func (r *Resolver) bindings(p Params, result string) map[string]any {
	b := map[string]any{
		"key":     p.Key,
		"page":    p.Page,
		"baseUrl": p.BaseURL,
		"result":  result,
	}
	if p.Source != nil {
		b["source"] = map[string]any{
			"url":  p.Source.URL,
			"name": p.Source.Name,
		}
	}
	return b
}

func (r *Resolver) eval(ctx context.Context, code string, p Params, result string) (string, error) {
	if r.scripts == nil {
		return "", errors.ErrScriptFailed.WithCause(errors.New(errors.CodeScriptFailed, "no script evaluator configured"))
	}
	v, err := r.scripts.Evaluate(ctx, code, r.bindings(p, result))
	if err != nil {
		return "", errors.ErrScriptFailed.WithCause(err)
	}
	return strings.TrimSpace(script.ToString(v)), nil
}

// runScripts evaluates <js> blocks in order, then an @js: tail. Each script
// sees the template produced so far as result.
func (r *Resolver) runScripts(ctx context.Context, tpl string, p Params) (string, error) {
	var tail string
	if i := strings.Index(strings.ToLower(tpl), "@js:"); i >= 0 {
		tpl, tail = tpl[:i], tpl[i+len("@js:"):]
	}

	for {
		loc := jsBlockPattern.FindStringSubmatchIndex(tpl)
		if loc == nil {
			break
		}
		prefix := strings.TrimSpace(tpl[:loc[0]])
		out, err := r.eval(ctx, tpl[loc[2]:loc[3]], p, prefix)
		if err != nil {
			return "", err
		}
		tpl = out + tpl[loc[1]:]
	}

	if strings.TrimSpace(tail) != "" {
		return r.eval(ctx, tail, p, strings.TrimSpace(tpl))
	}
	return tpl, nil
}

// selectPage replaces a <a,b,c> list with the entry for page, clamped to the last
func selectPage(tpl string, page int) string {
	return pageListPattern.ReplaceAllStringFunc(tpl, func(m string) string {
		items := strings.Split(m[1:len(m)-1], ",")
		i := page - 1
		if i >= len(items) {
			i = len(items) - 1
		}
		return strings.TrimSpace(items[i])
	})
}

func (r *Resolver) expand(ctx context.Context, s string, p Params, charset string, encode bool) (string, error) {
	if p.Literal {
		return s, nil
	}
	key := p.Key
	if encode {
		var err error
		if key, err = EncodeKey(p.Key, charset); err != nil {
			return "", err
		}
	}
	page := strconv.Itoa(p.Page)

	if !strings.Contains(s, "{{") {
		return strings.NewReplacer(
			"searchPage-1", strconv.Itoa(p.Page-1),
			"searchPage+1", strconv.Itoa(p.Page+1),
			"searchPage", page,
			"searchKey", key,
		).Replace(s), nil
	}

	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		expr := strings.TrimSpace(m[2 : len(m)-2])
		switch expr {
		case "key", "searchKey":
			return key
		case "page", "searchPage":
			return page
		}
		if sub := pageOffsetPattern.FindStringSubmatch(expr); sub != nil {
			n, _ := strconv.Atoi(sub[2])
			if sub[1] == "-" {
				n = -n
			}
			return strconv.Itoa(p.Page + n)
		}
		v, err := r.eval(ctx, expr, p, "")
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	})
	return out, firstErr
}

// EncodeKey percent-encodes a search key in the given charset, UTF-8 by default
func EncodeKey(key, charset string) (string, error) {
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return url.QueryEscape(key), nil
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return "", errors.ErrURLInvalid.WithCause(err)
	}
	encoded, err := enc.NewEncoder().String(key)
	if err != nil {
		return "", errors.ErrURLInvalid.WithCause(err)
	}
	return url.QueryEscape(encoded), nil
}
