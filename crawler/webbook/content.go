package webbook

import (
	"context"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dotecxy/legado2-sub001/crawler/content"
	"github.com/dotecxy/legado2-sub001/crawler/fetcher"
	"github.com/dotecxy/legado2-sub001/crawler/rule"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/crawler/urltemplate"
	"github.com/dotecxy/legado2-sub001/crawler/urlutil"
	"github.com/dotecxy/legado2-sub001/errors"
	"github.com/dotecxy/legado2-sub001/logging"
)

// GetContent fetches the text of chapter, following nextContentUrl pages.
// Pagination stops at nextChapterURL so the following chapter is never
// merged into this one.
func (s *Service) GetContent(ctx context.Context, src *source.BookSource, book *source.Book, chapter *source.BookChapter, nextChapterURL string) (string, error) {
	var text string
	err := s.run(ctx, OpContent, src, func(ctx context.Context) error {
		r := src.RuleContent
		if strings.TrimSpace(r.Content) == "" {
			return errors.ErrSourceInvalid.WithCause(fmt.Errorf("content rule is empty")).WithURL(src.URL)
		}
		if strings.TrimSpace(chapter.URL) == "" {
			return errors.ErrURLInvalid.WithURL(src.URL)
		}

		resp := infoPage(book, chapter.URL)
		if resp == nil {
			var err error
			if resp, err = s.fetchContentPage(ctx, src, chapter, chapter.URL, false); err != nil {
				return err
			}
		}
		if nextChapterURL != "" {
			nextChapterURL = urlutil.Absolute(resp.URL, nextChapterURL)
		}

		first, next := s.parseContentPage(ctx, src, chapter, resp, chapter.URL, nextChapterURL)
		parts := []string{first}
		switch len(next) {
		case 0:
		case 1:
			rest, err := s.followContent(ctx, src, chapter, next[0], nextChapterURL, chapter.URL, resp.URL)
			if err != nil {
				return err
			}
			parts = append(parts, rest...)
		default:
			rest, err := s.fetchContentPages(ctx, src, chapter, next, nextChapterURL)
			if err != nil {
				return err
			}
			parts = append(parts, rest...)
		}

		if title := s.str(ctx, rule.NewContext(resp.Body), r.Title, resp.URL); title != "" {
			chapter.Title = title
		}
		text = s.normalize(ctx, src, chapter, strings.Join(parts, "\n"))
		if text == "" {
			return errors.ErrContentEmpty.WithURL(chapter.URL)
		}
		return nil
	})
	return text, err
}

// normalize purifies and formats the merged page markup
func (s *Service) normalize(ctx context.Context, src *source.BookSource, chapter *source.BookChapter, raw string) string {
	r := src.RuleContent
	if r.ReplaceRegex != "" {
		raw = s.analyzer.Purify(ctx, raw, r.ReplaceRegex)
	}
	keepImages := s.keepImages && !strings.EqualFold(r.ImageStyle, source.ImageStyleText)
	if !s.resegment {
		return s.formatter.Format(raw, keepImages, chapter.URL)
	}
	plain := content.HTMLFormat(raw, keepImages, chapter.URL)
	return content.Indent(content.Resegment(plain, chapter.Title), s.formatter.Indent)
}

// followContent walks single next-page links until none remain, a page
// repeats or the next chapter is reached
func (s *Service) followContent(ctx context.Context, src *source.BookSource, chapter *source.BookChapter, nextURL, stopURL string, seen ...string) ([]string, error) {
	visited := orderedmap.New[string, struct{}]()
	for _, u := range seen {
		visited.Set(u, struct{}{})
	}

	var parts []string
	for nextURL != "" && nextURL != stopURL && len(parts)+1 < s.contentMaxPages {
		if _, ok := visited.Get(nextURL); ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited.Set(nextURL, struct{}{})

		resp, err := s.fetchContentPage(ctx, src, chapter, nextURL, true)
		if err != nil {
			return nil, err
		}
		visited.Set(resp.URL, struct{}{})

		part, next := s.parseContentPage(ctx, src, chapter, resp, nextURL, stopURL)
		parts = append(parts, part)
		nextURL = ""
		if len(next) > 0 {
			nextURL = next[0]
		}
	}
	return parts, nil
}

// fetchContentPages fetches an enumerated page list concurrently in order.
// A page that fails to load contributes nothing.
func (s *Service) fetchContentPages(ctx context.Context, src *source.BookSource, chapter *source.BookChapter, urls []string, stopURL string) ([]string, error) {
	parts := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resp, err := s.fetchContentPage(gctx, src, chapter, u, true)
			if err != nil {
				logging.L(ctx).Warn("content page skipped", "url", u, "error", err)
				s.sink.Log(src.Key(), fmt.Sprintf("content page %s skipped: %v", u, err), logging.StateError)
				return nil
			}
			parts[i], _ = s.parseContentPage(gctx, src, chapter, resp, u, stopURL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return parts, nil
}

// fetchContentPage loads one content page; next-page links are literal
func (s *Service) fetchContentPage(ctx context.Context, src *source.BookSource, chapter *source.BookChapter, pageURL string, literal bool) (*fetcher.Response, error) {
	base := chapter.BaseURL
	if base == "" {
		base = src.URL
	}
	return s.get(ctx, src, urltemplate.Params{BaseURL: base, Literal: literal}, pageURL)
}

// parseContentPage extracts the content markup and the next-page links of
// one page. Links back to the page itself or on to the next chapter are
// dropped.
func (s *Service) parseContentPage(ctx context.Context, src *source.BookSource, chapter *source.BookChapter, resp *fetcher.Response, requested, stopURL string) (string, []string) {
	r := src.RuleContent
	page := rule.NewContext(resp.Body)
	base := resp.URL
	text := s.analyzer.String(ctx, page, r.Content, base)

	var next []string
	if r.NextContentURL != "" {
		seen := map[string]bool{resp.URL: true, requested: true, chapter.URL: true}
		for _, u := range s.analyzer.Evaluate(ctx, page, r.NextContentURL, base) {
			u = urlutil.Absolute(base, u)
			if u == "" || seen[u] || (stopURL != "" && u == stopURL) {
				continue
			}
			seen[u] = true
			next = append(next, u)
		}
	}
	return text, next
}
