// Package toc fetches paginated tables of contents and realigns the
// reader's position against refreshed chapter lists.
package toc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dotecxy/legado2-sub001/crawler/fetcher"
	"github.com/dotecxy/legado2-sub001/crawler/rule"
	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/crawler/urltemplate"
	"github.com/dotecxy/legado2-sub001/crawler/urlutil"
	"github.com/dotecxy/legado2-sub001/errors"
	"github.com/dotecxy/legado2-sub001/logging"
	"github.com/dotecxy/legado2-sub001/monitoring"
)

// TitleReplacer rewrites chapter titles after the list is built
type TitleReplacer interface {
	Replace(title string) string
}

// Options configures a Fetcher
type Options struct {
	Scripts     script.Evaluator
	Replacer    TitleReplacer
	Sink        logging.DebugSink
	Concurrency int
	MaxPages    int
	Now         func() time.Time
}

// Fetcher builds chapter lists from book source TOC rules
type Fetcher struct {
	fetch    fetcher.Fetcher
	analyzer *rule.Analyzer
	resolver *urltemplate.Resolver
	scripts  script.Evaluator
	replacer TitleReplacer
	sink     logging.DebugSink

	concurrency int
	maxPages    int
	now         func() time.Time
}

// NewFetcher creates a chapter list fetcher
func NewFetcher(f fetcher.Fetcher, analyzer *rule.Analyzer, opts Options) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1000
	}
	if opts.Sink == nil {
		opts.Sink = logging.NewSlogSink(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{
		fetch:       f,
		analyzer:    analyzer,
		resolver:    urltemplate.NewResolver(opts.Scripts),
		scripts:     opts.Scripts,
		replacer:    opts.Replacer,
		sink:        opts.Sink,
		concurrency: opts.Concurrency,
		maxPages:    opts.MaxPages,
		now:         opts.Now,
	}
}

type chapterKey struct {
	url   string
	title string
}

// FetchChapterList fetches every TOC page starting at tocURL and returns the
// deduplicated chapter list. first, when not nil, is used as the already
// fetched first page. Book statistics are updated in place.
func (f *Fetcher) FetchChapterList(ctx context.Context, src *source.BookSource, book *source.Book, tocURL string, first *fetcher.Response) ([]source.BookChapter, error) {
	ctx = fetcher.WithOperation(ctx, "toc")
	listRule := strings.TrimSpace(src.RuleToc.ChapterList)
	reverse := false
	switch {
	case strings.HasPrefix(listRule, "-"):
		reverse = true
		listRule = listRule[1:]
	case strings.HasPrefix(listRule, "+"):
		listRule = listRule[1:]
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := first
	if resp == nil {
		var err error
		if resp, err = f.fetchPage(ctx, src, tocURL, false); err != nil {
			return nil, err
		}
	}
	if resp.URL == "" {
		resp.URL = tocURL
	}
	chapters, next, err := f.parsePage(ctx, src, book, resp, tocURL, listRule)
	if err != nil {
		return nil, err
	}
	pages := [][]source.BookChapter{chapters}

	switch len(next) {
	case 0:
	case 1:
		rest, err := f.followNext(ctx, src, book, listRule, next[0], tocURL, resp.URL)
		if err != nil {
			return nil, err
		}
		pages = append(pages, rest...)
	default:
		rest, err := f.fetchAll(ctx, src, book, listRule, next)
		if err != nil {
			return nil, err
		}
		pages = append(pages, rest...)
	}

	list := dedup(pages)
	if reverse {
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
	}
	for i := range list {
		list[i].Index = i
		list[i].Title = f.formatTitle(ctx, src, i, list[i].Title)
	}

	if len(list) == 0 {
		return nil, errors.ErrTocEmpty.WithURL(tocURL)
	}
	monitoring.ChaptersParsed.Observe(float64(len(list)))
	f.updateBook(book, list)
	f.sink.Log(src.Key(), fmt.Sprintf("toc parsed: %d chapters from %d pages", len(list), len(pages)), logging.StateProgress)
	return list, nil
}

// followNext walks single next-page links until none remain or a page repeats
func (f *Fetcher) followNext(ctx context.Context, src *source.BookSource, book *source.Book, listRule, nextURL string, seen ...string) ([][]source.BookChapter, error) {
	visited := orderedmap.New[string, struct{}]()
	for _, u := range seen {
		visited.Set(u, struct{}{})
	}

	var pages [][]source.BookChapter
	for nextURL != "" && len(pages)+1 < f.maxPages {
		if _, ok := visited.Get(nextURL); ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited.Set(nextURL, struct{}{})

		resp, err := f.fetchPage(ctx, src, nextURL, true)
		if err != nil {
			return nil, err
		}
		visited.Set(resp.URL, struct{}{})

		chapters, next, err := f.parsePage(ctx, src, book, resp, nextURL, listRule)
		if err != nil {
			return nil, err
		}
		pages = append(pages, chapters)

		nextURL = ""
		if len(next) > 0 {
			nextURL = next[0]
		}
	}
	return pages, nil
}

// fetchAll fetches an enumerated page list concurrently. Pages keep their
// list order; a page that fails to load contributes no chapters.
func (f *Fetcher) fetchAll(ctx context.Context, src *source.BookSource, book *source.Book, listRule string, urls []string) ([][]source.BookChapter, error) {
	pages := make([][]source.BookChapter, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resp, err := f.fetchPage(gctx, src, u, true)
			if err != nil {
				logging.L(ctx).Warn("toc page skipped", "url", u, "error", err)
				f.sink.Log(src.Key(), fmt.Sprintf("toc page %s skipped: %v", u, err), logging.StateError)
				return nil
			}
			chapters, _, err := f.parsePage(gctx, src, book, resp, u, listRule)
			if err != nil {
				return err
			}
			pages[i] = chapters
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}

// fetchPage loads one TOC page. Links found on a page are fetched literally;
// only the book's TOC URL is expanded as a template.
func (f *Fetcher) fetchPage(ctx context.Context, src *source.BookSource, pageURL string, literal bool) (*fetcher.Response, error) {
	req, err := f.resolver.Resolve(ctx, pageURL, urltemplate.Params{BaseURL: src.URL, Source: src, Literal: literal})
	if err != nil {
		return nil, err
	}
	resp, err := f.fetch.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.URL == "" {
		resp.URL = req.URL
	}
	return resp, nil
}

// parsePage extracts chapters and next-page links from one TOC page
func (f *Fetcher) parsePage(ctx context.Context, src *source.BookSource, book *source.Book, resp *fetcher.Response, requested, listRule string) ([]source.BookChapter, []string, error) {
	tr := src.RuleToc
	page := rule.NewContext(resp.Body)
	base := resp.URL

	var chapters []source.BookChapter
	for i, elem := range f.analyzer.Elements(ctx, page, listRule, base) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ch := source.BookChapter{
			Title:    strings.TrimSpace(f.analyzer.String(ctx, elem, tr.ChapterName, base)),
			BaseURL:  base,
			Tag:      strings.TrimSpace(f.analyzer.String(ctx, elem, tr.UpdateTime, base)),
			IsVolume: isTrue(f.analyzer.String(ctx, elem, tr.IsVolume, base)),
			IsVip:    isTrue(f.analyzer.String(ctx, elem, tr.IsVip, base)),
			IsPay:    isTrue(f.analyzer.String(ctx, elem, tr.IsPay, base)),
		}
		if book != nil {
			ch.BookURL = book.BookURL
		}
		if urls := f.analyzer.Evaluate(ctx, elem, tr.ChapterURL, base); len(urls) > 0 {
			ch.URL = urlutil.Absolute(base, urls[0])
		}
		if ch.URL == "" {
			if ch.IsVolume {
				ch.URL = ch.Title + strconv.Itoa(i)
			} else {
				ch.URL = base
			}
		}
		if ch.Title == "" {
			continue
		}
		chapters = append(chapters, ch)
	}

	var next []string
	if tr.NextTocURL != "" {
		seen := map[string]bool{resp.URL: true, requested: true}
		for _, u := range f.analyzer.Evaluate(ctx, page, tr.NextTocURL, base) {
			u = urlutil.Absolute(base, u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			next = append(next, u)
		}
	}
	return chapters, next, nil
}

func (f *Fetcher) formatTitle(ctx context.Context, src *source.BookSource, index int, title string) string {
	if js := strings.TrimSpace(src.RuleToc.FormatJs); js != "" && f.scripts != nil {
		v, err := f.scripts.Evaluate(ctx, js, map[string]any{"index": index + 1, "title": title})
		if err != nil {
			f.sink.Log(src.Key(), fmt.Sprintf("formatJs: %v", err), logging.StateError)
		} else if s := strings.TrimSpace(script.ToString(v)); s != "" {
			title = s
		}
	}
	if f.replacer != nil {
		title = f.replacer.Replace(title)
	}
	return title
}

func (f *Fetcher) updateBook(book *source.Book, list []source.BookChapter) {
	if book == nil {
		return
	}
	now := f.now()
	book.LatestChapterTitle = list[len(list)-1].Title
	if len(list) > book.TotalChapterNum {
		book.LastCheckCount = len(list) - book.TotalChapterNum
		book.LatestChapterTime = now
	}
	book.TotalChapterNum = len(list)
	book.LastCheckTime = now
}

// dedup concatenates pages and keeps the first chapter for each (url, title)
func dedup(pages [][]source.BookChapter) []source.BookChapter {
	seen := orderedmap.New[chapterKey, source.BookChapter]()
	for _, page := range pages {
		for _, ch := range page {
			key := chapterKey{url: ch.URL, title: ch.Title}
			if _, ok := seen.Get(key); !ok {
				seen.Set(key, ch)
			}
		}
	}
	list := make([]source.BookChapter, 0, seen.Len())
	for pair := seen.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value)
	}
	return list
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "no", "not", "0", "null":
		return false
	}
	return true
}
