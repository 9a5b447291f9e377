package webbook

import (
	"context"
	"strings"

	"github.com/dotecxy/legado2-sub001/crawler/fetcher"
	"github.com/dotecxy/legado2-sub001/crawler/rule"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/crawler/toc"
	"github.com/dotecxy/legado2-sub001/crawler/urltemplate"
	"github.com/dotecxy/legado2-sub001/errors"
)

// GetBookInfo fetches the detail page of book and fills the fields the
// detail rule yields. Fields the rule leaves empty keep their value.
func (s *Service) GetBookInfo(ctx context.Context, src *source.BookSource, book *source.Book) error {
	return s.run(ctx, OpBookInfo, src, func(ctx context.Context) error {
		if strings.TrimSpace(book.BookURL) == "" {
			return errors.ErrURLInvalid.WithURL(src.URL)
		}
		resp, err := s.get(ctx, src, urltemplate.Params{}, book.BookURL)
		if err != nil {
			return err
		}
		s.applyBookInfo(ctx, src, book, resp)
		return ctx.Err()
	})
}

func (s *Service) applyBookInfo(ctx context.Context, src *source.BookSource, book *source.Book, resp *fetcher.Response) {
	r := src.RuleBookInfo
	c := rule.NewContext(resp.Body)
	base := resp.URL
	if strings.TrimSpace(r.Init) != "" {
		if elems := s.analyzer.Elements(ctx, c, r.Init, base); len(elems) > 0 {
			c = elems[0]
		}
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&book.Name, s.str(ctx, c, r.Name, base))
	set(&book.Author, s.str(ctx, c, r.Author, base))
	set(&book.Kind, s.joined(ctx, c, r.Kind, base))
	set(&book.WordCount, s.str(ctx, c, r.WordCount, base))
	set(&book.LatestChapterTitle, s.str(ctx, c, r.LastChapter, base))
	set(&book.Intro, s.str(ctx, c, r.Intro, base))
	set(&book.CoverURL, s.url(ctx, c, r.CoverURL, base))
	if book.Origin == "" {
		book.Origin = src.URL
		book.OriginName = src.Name
	}

	book.TocURL = s.url(ctx, c, r.TocURL, base)
	if book.TocURL == "" {
		book.TocURL = book.BookURL
	}
	book.InfoHTML, book.InfoURL = "", ""
	if book.TocURL == book.BookURL || book.TocURL == resp.URL {
		book.InfoHTML, book.InfoURL = resp.Body, resp.URL
	}
}

// infoPage returns the kept detail page when u addresses it
func infoPage(book *source.Book, u string) *fetcher.Response {
	if book == nil || book.InfoHTML == "" || u == "" {
		return nil
	}
	if u != book.BookURL && u != book.InfoURL {
		return nil
	}
	final := book.InfoURL
	if final == "" {
		final = u
	}
	return &fetcher.Response{URL: final, StatusCode: 200, Body: book.InfoHTML}
}

// GetChapterList builds the chapter list of book and realigns the reading
// position against the previous list size and chapter title.
func (s *Service) GetChapterList(ctx context.Context, src *source.BookSource, book *source.Book) ([]source.BookChapter, error) {
	var list []source.BookChapter
	err := s.run(ctx, OpChapterList, src, func(ctx context.Context) error {
		tocURL := book.TocURL
		if tocURL == "" {
			tocURL = book.BookURL
		}
		if strings.TrimSpace(tocURL) == "" {
			return errors.ErrURLInvalid.WithURL(src.URL)
		}
		first := infoPage(book, tocURL)
		oldTotal := book.TotalChapterNum
		var err error
		list, err = s.toc.FetchChapterList(ctx, src, book, tocURL, first)
		if err != nil {
			return err
		}
		book.DurChapterIndex = toc.Align(book.DurChapterIndex, book.DurChapterTitle, oldTotal, list)
		if book.DurChapterIndex >= 0 && book.DurChapterIndex < len(list) {
			book.DurChapterTitle = list[book.DurChapterIndex].Title
		}
		return nil
	})
	return list, err
}
