package webbook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotecxy/legado2-sub001/config"
	"github.com/dotecxy/legado2-sub001/crawler/explore"
	"github.com/dotecxy/legado2-sub001/crawler/fetcher"
	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	apperrors "github.com/dotecxy/legado2-sub001/errors"
	"github.com/dotecxy/legado2-sub001/logging"
)

type fakeSite struct {
	mu        sync.Mutex
	pages     map[string]string
	redirects map[string]string
	calls     []string
}

func (s *fakeSite) Fetch(_ context.Context, req *fetcher.Request) (*fetcher.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req.URL)
	final := req.URL
	if to, ok := s.redirects[final]; ok {
		final = to
	}
	body, ok := s.pages[final]
	if !ok {
		return nil, apperrors.ErrFetchFailed.WithURL(req.URL)
	}
	return &fetcher.Response{URL: final, StatusCode: 200, Body: body}, nil
}

func (s *fakeSite) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type sinkRecorder struct {
	mu     sync.Mutex
	states []int
}

func (r *sinkRecorder) Log(_, _ string, state int) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func (r *sinkRecorder) count(state int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTestService(site *fakeSite) (*Service, *sinkRecorder) {
	sink := &sinkRecorder{}
	return New(Options{
		Fetcher: site,
		Scripts: script.NewLuaEvaluator(&script.LuaEvaluatorConfig{Timeout: time.Second}),
		Sink:    sink,
		Config:  config.DefaultConfig(),
	}), sink
}

func testSource() *source.BookSource {
	return &source.BookSource{
		URL:        "https://a.com",
		Name:       "A",
		SearchURL:  "/search?q={{key}}&p={{page}}",
		ExploreURL: "Hot::/hot/{{page}}\nNew::/new/{{page}}",
		RuleSearch: source.SearchRule{
			BookList: "class.book",
			Name:     "class.name@text",
			Author:   "class.author@text",
			Kind:     "class.kind@text",
			CoverURL: "class.cover@src",
			BookURL:  "class.name@tag.a@href",
		},
		RuleBookInfo: source.BookInfoRule{
			Name:     "class.title@text",
			Author:   "class.info@class.author@text",
			Intro:    "class.intro@text",
			CoverURL: "class.info@tag.img@src",
		},
		RuleToc: source.TocRule{
			ChapterList: "class.list@tag.li",
			ChapterName: "text",
			ChapterURL:  "tag.a@href",
		},
		RuleContent: source.ContentRule{
			Content:        "id.content@html",
			NextContentURL: "class.next@href",
			ReplaceRegex:   "##<p>广告</p>",
		},
	}
}

const searchPage = `<html><body>
<div class="book"><h3 class="name"><a href="/b/1">Book One</a></h3><span class="author">Alice</span>
<span class="kind">Fantasy</span><span class="kind">Done</span><img class="cover" src="/img/1.jpg"></div>
<div class="book"><h3 class="name"></h3><span class="author">Nobody</span></div>
<div class="book"><h3 class="name"><a href="https://b.com/b/2">Book Two</a></h3><span class="author">Bob</span></div>
</body></html>`

const detailPage = `<html><body>
<div class="info"><h1 class="title">Book One</h1><span class="author">Alice</span>
<img src="/img/1.jpg"><p class="intro"> An intro </p></div>
<ul class="list"><li><a href="/b/1/0.html">Prologue</a></li><li><a href="/b/1/1.html">Ch 1</a></li><li><a href="/b/1/2.html">Ch 2</a></li></ul>
</body></html>`

func TestSearchBooks(t *testing.T) {
	site := &fakeSite{pages: map[string]string{"https://a.com/search?q=one&p=1": searchPage}}
	svc, sink := newTestService(site)

	books, err := svc.SearchBooks(context.Background(), testSource(), "one", 1)
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, source.SearchBook{
		BookURL:    "https://a.com/b/1",
		Origin:     "https://a.com",
		OriginName: "A",
		Name:       "Book One",
		Author:     "Alice",
		Kind:       "Fantasy,Done",
		CoverURL:   "https://a.com/img/1.jpg",
	}, books[0])
	assert.Equal(t, "https://b.com/b/2", books[1].BookURL)
	assert.Equal(t, 1, sink.count(logging.StateDone))
}

func TestSearchBooksReversed(t *testing.T) {
	site := &fakeSite{pages: map[string]string{"https://a.com/search?q=one&p=1": searchPage}}
	svc, _ := newTestService(site)
	src := testSource()
	src.RuleSearch.BookList = "-" + src.RuleSearch.BookList

	books, err := svc.SearchBooks(context.Background(), src, "one", 1)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Book Two", books[0].Name)
}

func TestSearchLandsOnDetailPage(t *testing.T) {
	site := &fakeSite{pages: map[string]string{"https://a.com/search?q=one&p=1": detailPage}}
	svc, _ := newTestService(site)

	books, err := svc.SearchBooks(context.Background(), testSource(), "one", 1)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Book One", books[0].Name)
	assert.Equal(t, "Alice", books[0].Author)
	assert.Equal(t, "https://a.com/search?q=one&p=1", books[0].BookURL)
}

func TestSearchErrors(t *testing.T) {
	svc, sink := newTestService(&fakeSite{})
	src := testSource()

	_, err := svc.SearchBooks(context.Background(), src, "one", 1)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)

	src.SearchURL = ""
	_, err = svc.SearchBooks(context.Background(), src, "one", 1)
	assert.ErrorIs(t, err, apperrors.ErrSourceInvalid)
	assert.Equal(t, 2, sink.count(logging.StateError))
}

func TestExploreBooksFallsBackToSearchRule(t *testing.T) {
	site := &fakeSite{pages: map[string]string{"https://a.com/hot/2": searchPage}}
	svc, _ := newTestService(site)

	books, err := svc.ExploreBooks(context.Background(), testSource(), "/hot/{{page}}", 2)
	require.NoError(t, err)
	assert.Len(t, books, 2)
}

func TestExploreKinds(t *testing.T) {
	svc, _ := newTestService(&fakeSite{})
	src := testSource()

	kinds, err := svc.ExploreKinds(context.Background(), src)
	require.NoError(t, err)
	want := []source.ExploreKind{{Title: "Hot", URL: "/hot/{{page}}"}, {Title: "New", URL: "/new/{{page}}"}}
	assert.Equal(t, want, kinds)

	kinds, err = svc.ExploreKinds(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, want, kinds)

	src.ExploreURL = `[{"title":"All","url":"/all"}]`
	kinds, err = svc.ExploreKinds(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []source.ExploreKind{{Title: "All", URL: "/all"}}, kinds)
}

func TestClearExploreKinds(t *testing.T) {
	kinds := explore.NewCache(time.Hour)
	svc := New(Options{Fetcher: &fakeSite{}, Sink: &sinkRecorder{}, Kinds: kinds, Config: config.DefaultConfig()})
	src := testSource()

	stale := []source.ExploreKind{{Title: "Stale", URL: "/old"}}
	_, err := kinds.GetOrCompute(explore.Key(src.URL, src.ExploreURL), func() (any, error) { return stale, nil })
	require.NoError(t, err)

	got, err := svc.ExploreKinds(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, stale, got)

	svc.ClearExploreKinds(src)
	got, err = svc.ExploreKinds(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "Hot", got[0].Title)
}

func TestBookInfoThenChapterList(t *testing.T) {
	site := &fakeSite{pages: map[string]string{"https://a.com/b/1": detailPage}}
	svc, _ := newTestService(site)
	ctx := context.Background()

	book := &source.Book{
		BookURL:         "https://a.com/b/1",
		Name:            "old name",
		WordCount:       "100k",
		TotalChapterNum: 2,
		DurChapterIndex: 1,
		DurChapterTitle: "Ch 2",
	}
	require.NoError(t, svc.GetBookInfo(ctx, testSource(), book))

	assert.Equal(t, "Book One", book.Name)
	assert.Equal(t, "Alice", book.Author)
	assert.Equal(t, "An intro", book.Intro)
	assert.Equal(t, "100k", book.WordCount)
	assert.Equal(t, "https://a.com/img/1.jpg", book.CoverURL)
	assert.Equal(t, "https://a.com/b/1", book.TocURL)
	assert.Equal(t, "https://a.com", book.Origin)
	assert.NotEmpty(t, book.InfoHTML)

	list, err := svc.GetChapterList(ctx, testSource(), book)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 1, site.callCount())
	assert.Equal(t, "https://a.com/b/1/1.html", list[1].URL)
	assert.Equal(t, 3, book.TotalChapterNum)
	assert.Equal(t, 2, book.DurChapterIndex)
	assert.Equal(t, "Ch 2", book.DurChapterTitle)
}

func TestChapterListSeparateTocPage(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"https://a.com/b/1":     `<html><body><h1 class="title">Book One</h1><a class="toc" href="/b/1/toc">toc</a></body></html>`,
		"https://a.com/b/1/toc": detailPage,
	}}
	svc, _ := newTestService(site)
	src := testSource()
	src.RuleBookInfo.TocURL = "class.toc@href"
	book := &source.Book{BookURL: "https://a.com/b/1"}

	require.NoError(t, svc.GetBookInfo(context.Background(), src, book))
	assert.Equal(t, "https://a.com/b/1/toc", book.TocURL)
	assert.Empty(t, book.InfoHTML)

	list, err := svc.GetChapterList(context.Background(), src, book)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, 2, site.callCount())
}

func TestChapterListReusesRedirectedDetailPage(t *testing.T) {
	site := &fakeSite{
		pages:     map[string]string{"https://a.com/book/1": `<a class="toc" href="/book/1">toc</a>` + detailPage},
		redirects: map[string]string{"https://a.com/b/1": "https://a.com/book/1"},
	}
	svc, _ := newTestService(site)
	src := testSource()
	src.RuleBookInfo.TocURL = "class.toc@href"
	book := &source.Book{BookURL: "https://a.com/b/1"}

	require.NoError(t, svc.GetBookInfo(context.Background(), src, book))
	assert.Equal(t, "https://a.com/book/1", book.TocURL)
	assert.Equal(t, "https://a.com/book/1", book.InfoURL)
	require.NotEmpty(t, book.InfoHTML)

	list, err := svc.GetChapterList(context.Background(), src, book)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "https://a.com/book/1/1.html", list[1].URL)
	assert.Equal(t, 1, site.callCount())
}

func TestGetContentFollowsLinksLiterally(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"https://a.com/c/1.html":                         contentPage("<p>A</p>", nextLink("/c/1.html?searchPage=2&amp;searchKey=x")),
		"https://a.com/c/1.html?searchPage=2&searchKey=x": contentPage("<p>B</p>", ""),
	}}
	svc, _ := newTestService(site)
	chapter := &source.BookChapter{Title: "Ch 1", URL: "https://a.com/c/1.html"}

	text, err := svc.GetContent(context.Background(), testSource(), nil, chapter, "")
	require.NoError(t, err)
	assert.Equal(t, "　　A\n　　B", text)
	assert.Equal(t, 2, site.callCount())
}

func contentPage(body, next string) string {
	return `<html><body><div id="content">` + body + `</div>` + next + `</body></html>`
}

func nextLink(href string) string {
	return `<a class="next" href="` + href + `">next</a>`
}

func TestGetContentStopsAtNextChapter(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"https://a.com/c/1.html":   contentPage("<p>第一段</p><p>广告</p>", nextLink("/c/1_2.html")),
		"https://a.com/c/1_2.html": contentPage("<p>第二段</p>", nextLink("/c/2.html")),
		"https://a.com/c/2.html":   contentPage("<p>下一章</p>", ""),
	}}
	svc, _ := newTestService(site)
	chapter := &source.BookChapter{Title: "第一章", URL: "https://a.com/c/1.html", BaseURL: "https://a.com/toc"}

	text, err := svc.GetContent(context.Background(), testSource(), nil, chapter, "/c/2.html")
	require.NoError(t, err)
	assert.Equal(t, "　　第一段\n　　第二段", text)
	assert.Equal(t, 2, site.callCount())
}

func TestGetContentFanOut(t *testing.T) {
	pages := nextLink("/c/1_2.html") + nextLink("/c/1_3.html")
	site := &fakeSite{pages: map[string]string{
		"https://a.com/c/1.html":   contentPage("<p>A</p>", pages),
		"https://a.com/c/1_2.html": contentPage("<p>B</p>", pages),
		"https://a.com/c/1_3.html": contentPage("<p>C</p>", pages),
	}}
	svc, _ := newTestService(site)
	chapter := &source.BookChapter{Title: "Ch", URL: "https://a.com/c/1.html"}

	text, err := svc.GetContent(context.Background(), testSource(), nil, chapter, "")
	require.NoError(t, err)
	assert.Equal(t, "　　A\n　　B\n　　C", text)
	assert.Equal(t, 3, site.callCount())
}

func TestGetContentEmpty(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"https://a.com/c/1.html": `<html><body><p>nothing</p></body></html>`,
	}}
	svc, _ := newTestService(site)

	_, err := svc.GetContent(context.Background(), testSource(), nil, &source.BookChapter{URL: "https://a.com/c/1.html"}, "")
	require.ErrorIs(t, err, apperrors.ErrContentEmpty)

	src := testSource()
	src.RuleContent.Content = ""
	_, err = svc.GetContent(context.Background(), src, nil, &source.BookChapter{URL: "https://a.com/c/1.html"}, "")
	assert.ErrorIs(t, err, apperrors.ErrSourceInvalid)
}

func TestGetContentTextImageStyle(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"https://a.com/c/1.html": contentPage(`<p>a</p><img src="/i.png"><p>b</p>`, ""),
	}}
	svc, _ := newTestService(site)
	src := testSource()
	chapter := &source.BookChapter{URL: "https://a.com/c/1.html"}

	text, err := svc.GetContent(context.Background(), src, nil, chapter, "")
	require.NoError(t, err)
	assert.Contains(t, text, `<img src="https://a.com/i.png">`)

	src.RuleContent.ImageStyle = source.ImageStyleText
	text, err = svc.GetContent(context.Background(), src, nil, chapter, "")
	require.NoError(t, err)
	assert.Equal(t, "　　a\n　　b", text)
}
