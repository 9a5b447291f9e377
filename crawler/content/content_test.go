package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResegment(t *testing.T) {
	tests := []struct {
		name    string
		content string
		title   string
		want    string
	}{
		{
			name:    "glues unterminated line",
			content: "今天天气很好\n，我们去公园。\n他说：“你好”",
			title:   "第一章",
			want:    "今天天气很好，我们去公园。\n他说：“你好”",
		},
		{
			name:    "drops repeated title",
			content: "  第一章 开始 \n正文。\n下一段！",
			title:   "第一章 开始",
			want:    "正文。\n下一段！",
		},
		{
			name:    "quote entities",
			content: "&ldquo;走吧&rdquo;他说。",
			want:    "“走吧”他说。",
		},
		{
			name:    "whitespace next to CJK removed",
			content: "他　　说 ：  好。\n\n  \n下一行",
			want:    "他说：好。\n下一行",
		},
		{
			name:    "latin words keep one space",
			content: "Hello   big\nworld!\nNext line",
			want:    "Hello bigworld!\nNext line",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resegment(tt.content, tt.title))
		})
	}
}

func TestHTMLFormat(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		keep  bool
		base  string
		want  string
	}{
		{name: "paragraphs", in: "<p>Hello</p><p>World</p>", want: "Hello\nWorld"},
		{name: "nbsp run", in: "A&nbsp;&nbsp;B", want: "A B"},
		{name: "em space", in: "A&emsp;B&ensp;C", want: "A B C"},
		{name: "invisible", in: "A\u200bB\ufeff", want: "AB"},
		{name: "br and div", in: "<div>one<br/>two<br>three</div>", want: "one\ntwo\nthree"},
		{name: "comments and tags", in: "<!-- ad --><span>text</span> <b>bold</b>", want: "text bold"},
		{name: "entities", in: "<p>Tom &amp; Jerry &lt;3</p>", want: "Tom & Jerry <3"},
		{name: "whitespace lines", in: "<p> a </p>\n \n<p> b </p>", want: "a\nb"},
		{
			name: "images dropped",
			in:   `<p>x</p><img src="/i/1.jpg"><p>y</p>`,
			want: "x\ny",
		},
		{
			name: "images kept absolute",
			in:   `<p>x</p><img class="lazy" src="/loading.gif" data-src="1.jpg"><p>y</p>`,
			keep: true,
			base: "https://a.com/book/c/",
			want: "x\n<img src=\"https://a.com/book/c/1.jpg\">\ny",
		},
		{
			name: "image option suffix",
			in:   `<img src='/i/2.jpg,{"headers":{"Referer":"https://a.com"}}'/>`,
			keep: true,
			base: "https://a.com/x/",
			want: `<img src="https://a.com/i/2.jpg,{"headers":{"Referer":"https://a.com"}}">`,
		},
		{name: "empty", in: "<p> </p><br/>", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTMLFormat(tt.in, tt.keep, tt.base))
		})
	}
}

func TestFormatterIndent(t *testing.T) {
	f := Formatter{Indent: "　　"}
	assert.Equal(t, "　　Hello\n　　World", f.Format("<p>Hello</p><p>World</p>", false, ""))
	assert.Equal(t, "", f.Format("<br>", false, ""))
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "> a\n\n> b", Indent("a\n\nb", "> "))
	assert.Equal(t, "a", Indent("a", ""))
}
