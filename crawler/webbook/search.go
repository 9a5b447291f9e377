package webbook

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotecxy/legado2-sub001/crawler/explore"
	"github.com/dotecxy/legado2-sub001/crawler/fetcher"
	"github.com/dotecxy/legado2-sub001/crawler/rule"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/crawler/urltemplate"
	"github.com/dotecxy/legado2-sub001/errors"
	"github.com/dotecxy/legado2-sub001/logging"
)

// SearchBooks runs the search URL of src for key and parses the result page.
// A result page that is already a book detail page yields that single book.
func (s *Service) SearchBooks(ctx context.Context, src *source.BookSource, key string, page int) ([]source.SearchBook, error) {
	var books []source.SearchBook
	err := s.run(ctx, OpSearch, src, func(ctx context.Context) error {
		if strings.TrimSpace(src.SearchURL) == "" {
			return errors.ErrSourceInvalid.WithCause(fmt.Errorf("searchUrl is empty")).WithURL(src.URL)
		}
		resp, err := s.get(ctx, src, urltemplate.Params{Key: key, Page: page}, src.SearchURL)
		if err != nil {
			return err
		}
		books, err = s.parseBookList(ctx, src, resp, src.RuleSearch, true)
		return err
	})
	return books, err
}

// ExploreBooks fetches one explore category page. The explore rule falls
// back to the search rule when empty.
func (s *Service) ExploreBooks(ctx context.Context, src *source.BookSource, exploreURL string, page int) ([]source.SearchBook, error) {
	var books []source.SearchBook
	err := s.run(ctx, OpExplore, src, func(ctx context.Context) error {
		if strings.TrimSpace(exploreURL) == "" {
			return errors.ErrURLInvalid.WithURL(src.URL)
		}
		resp, err := s.get(ctx, src, urltemplate.Params{Page: page}, exploreURL)
		if err != nil {
			return err
		}
		r := src.RuleExplore
		if r.IsEmpty() {
			r = src.RuleSearch
		}
		books, err = s.parseBookList(ctx, src, resp, r, false)
		return err
	})
	return books, err
}

// ExploreKinds returns the explore categories of src, parsed once per
// source and served from the kinds cache afterwards.
func (s *Service) ExploreKinds(ctx context.Context, src *source.BookSource) ([]source.ExploreKind, error) {
	var kinds []source.ExploreKind
	err := s.run(ctx, OpExploreKind, src, func(ctx context.Context) error {
		v, err := s.kinds.GetOrCompute(explore.Key(src.URL, src.ExploreURL), func() (any, error) {
			return explore.ParseKinds(ctx, s.scripts, src)
		})
		if err != nil {
			return err
		}
		kinds, _ = v.([]source.ExploreKind)
		return nil
	})
	return kinds, err
}

// ClearExploreKinds drops the cached explore categories of src
func (s *Service) ClearExploreKinds(src *source.BookSource) {
	s.kinds.Invalidate(explore.Key(src.URL, src.ExploreURL))
}

func (s *Service) parseBookList(ctx context.Context, src *source.BookSource, resp *fetcher.Response, r source.SearchRule, detailFallback bool) ([]source.SearchBook, error) {
	page := rule.NewContext(resp.Body)
	base := resp.URL
	list, reverse := listRule(r.BookList)

	elems := s.analyzer.Elements(ctx, page, list, base)
	if len(elems) == 0 && detailFallback && src.RuleBookInfo.Name != "" {
		book := &source.Book{BookURL: resp.URL, Origin: src.URL, OriginName: src.Name}
		s.applyBookInfo(ctx, src, book, resp)
		if book.Name == "" {
			return nil, nil
		}
		s.sink.Log(src.Key(), "search landed on a detail page", logging.StateProgress)
		return []source.SearchBook{searchBookOf(book)}, nil
	}

	books := make([]source.SearchBook, 0, len(elems))
	for _, elem := range elems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sb := source.SearchBook{
			Origin:      src.URL,
			OriginName:  src.Name,
			Name:        s.str(ctx, elem, r.Name, base),
			Author:      s.str(ctx, elem, r.Author, base),
			Kind:        s.joined(ctx, elem, r.Kind, base),
			WordCount:   s.str(ctx, elem, r.WordCount, base),
			LastChapter: s.str(ctx, elem, r.LastChapter, base),
			Intro:       s.str(ctx, elem, r.Intro, base),
			CoverURL:    s.url(ctx, elem, r.CoverURL, base),
			BookURL:     s.url(ctx, elem, r.BookURL, base),
		}
		if sb.Name == "" {
			continue
		}
		if sb.BookURL == "" {
			sb.BookURL = base
		}
		books = append(books, sb)
	}
	if reverse {
		for i, j := 0, len(books)-1; i < j; i, j = i+1, j-1 {
			books[i], books[j] = books[j], books[i]
		}
	}
	s.sink.Log(src.Key(), fmt.Sprintf("book list parsed: %d books", len(books)), logging.StateProgress)
	return books, nil
}

func searchBookOf(b *source.Book) source.SearchBook {
	return source.SearchBook{
		BookURL:     b.BookURL,
		Origin:      b.Origin,
		OriginName:  b.OriginName,
		Name:        b.Name,
		Author:      b.Author,
		Kind:        b.Kind,
		WordCount:   b.WordCount,
		LastChapter: b.LatestChapterTitle,
		Intro:       b.Intro,
		CoverURL:    b.CoverURL,
	}
}
