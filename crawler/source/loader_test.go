package source

import (
	"encoding/json"
	"testing"

	apperrors "github.com/dotecxy/legado2-sub001/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `{
  "bookSourceUrl": "https://www.example.com/",
  "bookSourceName": "Example",
  "enabled": true,
  "header": "{\"User-Agent\":\"bookrule\",\"X-Num\":1}",
  "searchUrl": "/search?q={{key}}&p={{page}}",
  "ruleSearch": {"bookList": "class.result@tag.li", "name": "tag.h3@text", "bookUrl": "tag.a@href"},
  "ruleToc": {"chapterList": "-id.list@tag.a", "chapterName": "text", "chapterUrl": "href"},
  "ruleContent": {"content": "id.content@html"}
}`

func TestParseSingle(t *testing.T) {
	sources, err := Parse([]byte(sampleSource))
	require.NoError(t, err)
	require.Len(t, sources, 1)

	s := sources[0]
	assert.Equal(t, "https://www.example.com", s.URL)
	assert.Equal(t, "Example", s.Name)
	assert.Equal(t, "class.result@tag.li", s.RuleSearch.BookList)
	assert.Equal(t, "-id.list@tag.a", s.RuleToc.ChapterList)
	assert.True(t, s.RuleExplore.IsEmpty())
	assert.Equal(t, map[string]string{"User-Agent": "bookrule"}, s.Headers())
}

func TestParseArray(t *testing.T) {
	sources, err := Parse([]byte("[" + sampleSource + "," + sampleSource + "]"))
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte(`{"bookSourceName":"no url"}`))
	assert.ErrorIs(t, err, apperrors.ErrSourceInvalid)

	_, err = Parse([]byte(`not json`))
	assert.ErrorIs(t, err, apperrors.ErrSourceInvalid)
	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)

	_, err = Parse(nil)
	assert.ErrorIs(t, err, apperrors.ErrSourceInvalid)
}

func TestHeadersMalformed(t *testing.T) {
	s := &BookSource{Header: "{broken"}
	assert.Empty(t, s.Headers())
}

func TestSearchBookToBook(t *testing.T) {
	sb := &SearchBook{BookURL: "u", Name: "n", LastChapter: "c"}
	b := sb.ToBook()
	assert.Equal(t, "u", b.BookURL)
	assert.Equal(t, "c", b.LatestChapterTitle)
}
