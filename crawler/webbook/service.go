// Package webbook runs the book operations of a source: search, explore,
// book detail, chapter list and chapter content.
package webbook

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotecxy/legado2-sub001/config"
	"github.com/dotecxy/legado2-sub001/crawler/content"
	"github.com/dotecxy/legado2-sub001/crawler/explore"
	"github.com/dotecxy/legado2-sub001/crawler/fetcher"
	"github.com/dotecxy/legado2-sub001/crawler/rule"
	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/crawler/toc"
	"github.com/dotecxy/legado2-sub001/crawler/urltemplate"
	"github.com/dotecxy/legado2-sub001/crawler/urlutil"
	"github.com/dotecxy/legado2-sub001/errors"
	"github.com/dotecxy/legado2-sub001/logging"
	"github.com/dotecxy/legado2-sub001/monitoring"
)

// Operation names used for logs, metrics and fetch labels
const (
	OpSearch      = "search"
	OpExplore     = "explore"
	OpExploreKind = "explore_kinds"
	OpBookInfo    = "book_info"
	OpChapterList = "chapter_list"
	OpContent     = "content"
)

// Options configures a Service
type Options struct {
	Fetcher  fetcher.Fetcher
	Scripts  script.Evaluator
	Sink     logging.DebugSink
	Replacer toc.TitleReplacer
	// Kinds caches parsed explore kinds; nil creates a private cache
	Kinds  *explore.Cache
	Config *config.Config
}

// Service evaluates book source rules against fetched pages
type Service struct {
	fetch    fetcher.Fetcher
	analyzer *rule.Analyzer
	resolver *urltemplate.Resolver
	toc      *toc.Fetcher
	kinds    *explore.Cache
	scripts  script.Evaluator
	sink     logging.DebugSink

	formatter       content.Formatter
	keepImages      bool
	resegment       bool
	contentMaxPages int
	concurrency     int
}

// New creates a Service
func New(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Sink == nil {
		opts.Sink = logging.NewSlogSink(nil)
	}
	if opts.Kinds == nil {
		opts.Kinds = explore.NewCache(cfg.Explore.CacheTTL)
	}
	analyzer := rule.NewAnalyzer(rule.Options{
		Sink:         opts.Sink,
		Scripts:      opts.Scripts,
		RegexTimeout: cfg.Rule.RegexTimeout,
		CacheSize:    cfg.Rule.CacheSize,
	})
	maxPages := cfg.Content.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}
	concurrency := cfg.Toc.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Service{
		fetch:    opts.Fetcher,
		analyzer: analyzer,
		resolver: urltemplate.NewResolver(opts.Scripts),
		toc: toc.NewFetcher(opts.Fetcher, analyzer, toc.Options{
			Scripts:     opts.Scripts,
			Replacer:    opts.Replacer,
			Sink:        opts.Sink,
			Concurrency: cfg.Toc.Concurrency,
			MaxPages:    cfg.Toc.MaxPages,
		}),
		kinds:           opts.Kinds,
		scripts:         opts.Scripts,
		sink:            opts.Sink,
		formatter:       content.Formatter{Indent: cfg.Content.Indent},
		keepImages:      cfg.Content.KeepImages,
		resegment:       cfg.Content.Resegment,
		contentMaxPages: maxPages,
		concurrency:     concurrency,
	}
}

// run wraps one operation with trace id, fetch label, logging and metrics
func (s *Service) run(ctx context.Context, op string, src *source.BookSource, fn func(ctx context.Context) error) error {
	ctx = logging.NewTrace(ctx, src.Key())
	ctx = fetcher.WithOperation(ctx, op)
	ol := logging.StartOperation(ctx, op).WithField("source", src.Key())

	err := fn(ctx)
	monitoring.RecordOperation(op, ol.Elapsed(), err)
	if err != nil {
		ol.WithField("code", errors.GetErrorCode(err)).Failed(err)
		s.sink.Log(src.Key(), fmt.Sprintf("%s failed: %v", op, err), logging.StateError)
		return err
	}
	ol.Success()
	s.sink.Log(src.Key(), op+" done", logging.StateDone)
	return nil
}

// get resolves a URL rule against the source and fetches it
func (s *Service) get(ctx context.Context, src *source.BookSource, p urltemplate.Params, rawURL string) (*fetcher.Response, error) {
	if p.BaseURL == "" {
		p.BaseURL = src.URL
	}
	p.Source = src
	req, err := s.resolver.Resolve(ctx, rawURL, p)
	if err != nil {
		return nil, err
	}
	resp, err := s.fetch.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.URL == "" {
		resp.URL = req.URL
	}
	return resp, nil
}

func (s *Service) str(ctx context.Context, c *rule.Context, raw, base string) string {
	return strings.TrimSpace(s.analyzer.String(ctx, c, raw, base))
}

func (s *Service) joined(ctx context.Context, c *rule.Context, raw, base string) string {
	return strings.Join(s.analyzer.Evaluate(ctx, c, raw, base), ",")
}

func (s *Service) url(ctx context.Context, c *rule.Context, raw, base string) string {
	vals := s.analyzer.Evaluate(ctx, c, raw, base)
	if len(vals) == 0 {
		return ""
	}
	return urlutil.Absolute(base, vals[0])
}

// listRule strips the "-" (reverse) and "+" prefixes of a list rule
func listRule(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "-"):
		return raw[1:], true
	case strings.HasPrefix(raw, "+"):
		return raw[1:], false
	}
	return raw, false
}
