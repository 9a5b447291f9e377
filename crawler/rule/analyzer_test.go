package rule

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/logging"
)

const bookPage = `<html><head><title>Book</title></head><body>
<div class="book-info"><h1 id="title">Book One</h1><span class="author">Alice</span></div>
<ul class="chapters">
  <li><a href="/c/1.html">Chapter 1</a></li>
  <li><a href="/c/2.html">Chapter 2</a></li>
  <li><a href="c/3.html">Chapter 3</a></li>
</ul>
<div id="mixed">Own <b>bold</b> tail</div>
<div id="content"><p>Line one</p><p>Line two</p></div>
</body></html>`

const bookJSON = `{"title":"T","data":{"list":[{"name":"A","url":"/a","n":1},{"name":"B","url":"/b","n":2}]}}`

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Feed</title>
<item><title>A</title><link>https://a.com/1</link></item>
<item><title>B</title><link>https://a.com/2</link></item>
</channel></rss>`

const base = "https://a.com/book/"

type recordingSink struct {
	mu     sync.Mutex
	lines  []string
	states []int
}

func (s *recordingSink) Log(_ string, message string, state int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, message)
	s.states = append(s.states, state)
}

func (s *recordingSink) errors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if st == logging.StateError {
			n++
		}
	}
	return n
}

func newTestAnalyzer() (*Analyzer, *recordingSink) {
	sink := &recordingSink{}
	return NewAnalyzer(Options{
		Sink:         sink,
		Scripts:      script.NewLuaEvaluator(&script.LuaEvaluatorConfig{Timeout: time.Second}),
		RegexTimeout: 50 * time.Millisecond,
	}), sink
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		expr     string
		backend  Backend
		stripped string
	}{
		{"@css:div.a@text", BackendCSS, "div.a@text"},
		{"@CSS:div", BackendCSS, "div"},
		{"@xpath://a/@href", BackendXPath, "//a/@href"},
		{"//div[@id='x']", BackendXPath, "//div[@id='x']"},
		{"@json:$.a", BackendJSON, "$.a"},
		{"$.data.list[*]", BackendJSON, "$.data.list[*]"},
		{"class.item@tag.a@href", BackendChain, "class.item@tag.a@href"},
		{"text", BackendChain, "text"},
	}
	for _, tt := range tests {
		b, s := Dispatch(tt.expr)
		assert.Equal(t, tt.backend, b, tt.expr)
		assert.Equal(t, tt.stripped, s, tt.expr)
	}
}

func TestEvaluateHTML(t *testing.T) {
	a, sink := newTestAnalyzer()
	ctx := context.Background()

	tests := []struct {
		name string
		rule string
		want []string
	}{
		{"chain text", "class.chapters@tag.a@text", []string{"Chapter 1", "Chapter 2", "Chapter 3"}},
		{"id", "id.title@text", []string{"Book One"}},
		{"last index", "tag.li.-1@tag.a@href", []string{"https://a.com/book/c/3.html"}},
		{"exclusion", "tag.li.!0@tag.a@text", []string{"Chapter 2", "Chapter 3"}},
		{"bracket index", "tag.li[1]@tag.a@text", []string{"Chapter 2"}},
		{"fallback tag", "li.0@a@text", []string{"Chapter 1"}},
		{"out of range", "tag.div.9@text", nil},
		{"no instruction", "tag.li@tag.a", []string{"Chapter 1", "Chapter 2", "Chapter 3"}},
		{"text selector", "text.Chapter 2@href", []string{"https://a.com/c/2.html"}},
		{"own text", "id.mixed@ownText", []string{"Own  tail"}},
		{"text nodes", "id.mixed@textNodes", []string{"Own\ntail"}},
		{"html", "id.content@html", []string{"<p>Line one</p><p>Line two</p>"}},
		{"purify", "class.author@text##^A##a", []string{"alice"}},
		{"purify noop", "id.title@text##$x##", []string{"Book One"}},
		{"purify first only", "class.chapters@tag.a@text##\\d##N###", []string{"Chapter N", "Chapter N", "Chapter N"}},
		{"css attr", "@css:ul.chapters a@href", []string{"https://a.com/c/1.html", "https://a.com/c/2.html", "https://a.com/book/c/3.html"}},
		{"css text", "@css:h1#title", []string{"Book One"}},
		{"xpath text", "//ul[@class='chapters']/li/a/text()", []string{"Chapter 1", "Chapter 2", "Chapter 3"}},
		{"xpath element", "//h1", []string{"Book One"}},
		{"xpath scalar", "@xpath:count(//li)", []string{"3"}},
		{"or", "id.none@text||class.author@text", []string{"Alice"}},
		{"and", "id.title@text&&class.author@text", []string{"Book One", "Alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Evaluate(ctx, NewContext(bookPage), tt.rule, base)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Zero(t, sink.errors())
}

func TestEvaluateJSON(t *testing.T) {
	a, _ := newTestAnalyzer()
	ctx := context.Background()
	c := NewContext(bookJSON)
	require.Equal(t, KindJSON, c.Kind())

	assert.Equal(t, []string{"A", "B"}, a.Evaluate(ctx, c, "$.data.list[*].name", ""))
	assert.Equal(t, []string{"B"}, a.Evaluate(ctx, c, "$.data.list[1].name", ""))
	assert.Equal(t, []string{"T"}, a.Evaluate(ctx, c, "@json:$.title", ""))
	assert.Equal(t, []string{"A", "B"}, a.Evaluate(ctx, c, "$..name", ""))
	assert.Equal(t, []string{"1"}, a.Evaluate(ctx, c, "$.data.list[0].n", ""))
	assert.Empty(t, a.Evaluate(ctx, c, "$.missing", ""))

	elems := a.Elements(ctx, c, "$.data.list[*]", "")
	require.Len(t, elems, 2)
	assert.Equal(t, "B", a.String(ctx, elems[1], "$.name", ""))
	assert.Equal(t, "/a", a.String(ctx, elems[0], "$.url", ""))
}

func TestEvaluateXML(t *testing.T) {
	a, sink := newTestAnalyzer()
	ctx := context.Background()
	c := NewContext(feedXML)
	require.Equal(t, KindXML, c.Kind())

	tests := []struct {
		name string
		rule string
		want []string
	}{
		{"elements", "//item/title", []string{"A", "B"}},
		{"text nodes", "//channel/title/text()", []string{"Feed"}},
		{"prefixed", "@xpath://item[2]/link", []string{"https://a.com/2"}},
		{"scalar", "@xpath:count(//item)", []string{"2"}},
		{"or", "//item/missing||//item[1]/title", []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Evaluate(ctx, c, tt.rule, ""))
		})
	}

	elems := a.Elements(ctx, c, "//item", "")
	require.Len(t, elems, 2)
	for i, want := range []string{"A", "B"} {
		assert.Equal(t, KindXML, elems[i].Kind())
		assert.Equal(t, want, a.String(ctx, elems[i], "@xpath:title", ""))
	}
	assert.Equal(t, "https://a.com/1", a.String(ctx, elems[0], "@xpath:link", ""))
	assert.Zero(t, sink.errors())
}

func TestOrFallsBackToJSON(t *testing.T) {
	a, sink := newTestAnalyzer()
	ctx := context.Background()
	c := NewContext(bookJSON)

	assert.Equal(t, []string{"T"}, a.Evaluate(ctx, c, "class.none@text||$.title", ""))
	assert.Equal(t, []string{"A", "B"}, a.Evaluate(ctx, c, "$.missing||@json:$.data.list[*].name", ""))
	assert.Zero(t, sink.errors())
}

func TestElementsHTML(t *testing.T) {
	a, _ := newTestAnalyzer()
	ctx := context.Background()
	page := NewContext(bookPage)

	for _, listRule := range []string{"class.chapters@tag.li", "@css:ul.chapters > li", "//ul/li"} {
		elems := a.Elements(ctx, page, listRule, base)
		require.Len(t, elems, 3, listRule)
		assert.Equal(t, "Chapter 2", a.String(ctx, elems[1], "tag.a@text", base), listRule)
		assert.Equal(t, "https://a.com/c/1.html", a.String(ctx, elems[0], "tag.a@href", base), listRule)
	}
}

func TestEvaluateErrorsAreSwallowed(t *testing.T) {
	a, sink := newTestAnalyzer()
	ctx := context.Background()

	assert.Empty(t, a.Evaluate(ctx, NewContext(bookPage), "@css:div[", base))
	assert.Empty(t, a.Evaluate(ctx, NewContext(bookPage), "//div[", base))
	assert.Equal(t, 2, sink.errors())

	// a broken pattern keeps the unpurified value
	assert.Equal(t, []string{"Book One"}, a.Evaluate(ctx, NewContext(bookPage), "id.title@text##(unclosed", base))
	assert.Equal(t, 3, sink.errors())
}

func TestPurificationTimeoutKeepsValue(t *testing.T) {
	a, _ := newTestAnalyzer()
	input := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaa!"
	c := NewContext(`<p id="x">` + input + `</p>`)
	assert.Equal(t, []string{input}, a.Evaluate(context.Background(), c, "id.x@text##(a+)+$##", ""))
}

func TestPurificationTimeoutIsPerValue(t *testing.T) {
	a, sink := newTestAnalyzer()
	slow := strings.Repeat("a", 40) + "!"
	c := NewContext("<p>aa</p><p>" + slow + "</p>")

	got := a.Evaluate(context.Background(), c, "tag.p@text##(a+)+$##X", "")
	assert.Equal(t, []string{"X", slow}, got)
	assert.Equal(t, 1, sink.errors())
}

func TestDefaultRegexTimeout(t *testing.T) {
	a := NewAnalyzer(Options{Sink: &recordingSink{}})
	assert.Equal(t, DefaultRegexTimeout, a.regex.timeout)

	slow := strings.Repeat("a", 34) + "!"
	done := make(chan []string, 1)
	go func() {
		done <- a.Evaluate(context.Background(), NewContext("<p>"+slow+"</p>"), "tag.p@text##(a+)+$##X", "")
	}()
	select {
	case got := <-done:
		assert.Equal(t, []string{slow}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("purification ran without a time budget")
	}
}

func TestScriptSteps(t *testing.T) {
	a, _ := newTestAnalyzer()
	ctx := context.Background()
	page := NewContext(bookPage)

	assert.Equal(t, []string{"BOOK ONE"}, a.Evaluate(ctx, page, "id.title@text<js>string.upper(result)</js>", base))
	assert.Equal(t, []string{"Book One!"}, a.Evaluate(ctx, page, "id.title@text@js:result .. '!'", base))
	assert.Equal(t, []string{base}, a.Evaluate(ctx, page, "@js:baseUrl", base))

	elems := a.Elements(ctx, page, "@js:{'x', 'y'}", base)
	require.Len(t, elems, 2)
	assert.Equal(t, "y", elems[1].Text())
}

func TestScriptsDisabled(t *testing.T) {
	sink := &recordingSink{}
	a := NewAnalyzer(Options{Sink: sink})
	assert.Empty(t, a.Evaluate(context.Background(), NewContext(bookPage), "@js:1", ""))
	assert.Equal(t, 1, sink.errors())
}

func TestSplitSteps(t *testing.T) {
	steps := splitSteps("a@text<js>x</js>b@href@js:y")
	require.Len(t, steps, 4)
	assert.False(t, steps[0].script)
	assert.Equal(t, "a@text", steps[0].code)
	assert.True(t, steps[1].script)
	assert.Equal(t, "x", steps[1].code)
	assert.Equal(t, "b@href", steps[2].code)
	assert.True(t, steps[3].script)
	assert.Equal(t, "y", steps[3].code)
}

func TestSplitCombinator(t *testing.T) {
	op, parts := splitCombinator("a||b||c")
	assert.Equal(t, "||", op)
	assert.Equal(t, []string{"a", "b", "c"}, parts)

	op, parts = splitCombinator("//a[@x='1' and (b||c)]")
	assert.Empty(t, op)
	assert.Len(t, parts, 1)

	op, parts = splitCombinator("$.a[?(@.x&&@.y)]&&$.b")
	assert.Equal(t, "&&", op)
	assert.Equal(t, []string{"$.a[?(@.x&&@.y)]", "$.b"}, parts)
}

func TestIndexSpec(t *testing.T) {
	nodes := wrapNodesForTest(4)
	assert.Len(t, parseIndex("").apply(nodes), 4)
	assert.Equal(t, nodes[3:], parseIndex("-1").apply(nodes))
	assert.Len(t, parseIndex("!1").apply(nodes), 3)
	assert.Len(t, parseIndex("!9").apply(nodes), 4)
	assert.Empty(t, parseIndex("9").apply(nodes))
	assert.Len(t, parseIndex("abc").apply(nodes), 4)
}

func TestParseSegment(t *testing.T) {
	s := parseSegment("class.a b.2")
	assert.Equal(t, selClass, s.kind)
	assert.Equal(t, "a b", s.name)
	assert.Equal(t, indexSpec{set: true, pos: 2}, s.index)

	s = parseSegment("div[!0]")
	assert.Equal(t, selTag, s.kind)
	assert.Equal(t, "div", s.name)
	assert.Equal(t, indexSpec{set: true, exclude: true}, s.index)

	s = parseSegment("children.1")
	assert.Equal(t, selChildren, s.kind)
	assert.Equal(t, 1, s.index.pos)
}

func wrapNodesForTest(n int) []*html.Node {
	out := make([]*html.Node, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &html.Node{Type: html.ElementNode, Data: "li"})
	}
	return out
}

func TestPurify(t *testing.T) {
	a, sink := newTestAnalyzer()
	ctx := context.Background()
	assert.Equal(t, "正文", a.Purify(ctx, "广告正文广告", "##广告"))
	assert.Equal(t, "x-b-a", a.Purify(ctx, "a-b-a", "##a##x###"))
	assert.Equal(t, "keep", a.Purify(ctx, "keep", ""))
	assert.Equal(t, "keep", a.Purify(ctx, "keep", "##(bad"))
	assert.Equal(t, 1, sink.errors())
}
