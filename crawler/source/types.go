package source

import (
	"encoding/json"
	"strings"
	"time"
)

// BookSource is a declarative rule document describing one website
type BookSource struct {
	URL     string `json:"bookSourceUrl"`
	Name    string `json:"bookSourceName"`
	Group   string `json:"bookSourceGroup,omitempty"`
	Type    int    `json:"bookSourceType,omitempty"`
	Enabled bool   `json:"enabled"`
	Comment string `json:"bookSourceComment,omitempty"`

	// Header is a JSON object string merged into every request
	Header string `json:"header,omitempty"`

	SearchURL  string `json:"searchUrl,omitempty"`
	ExploreURL string `json:"exploreUrl,omitempty"`

	RuleSearch   SearchRule   `json:"ruleSearch"`
	RuleExplore  SearchRule   `json:"ruleExplore"`
	RuleBookInfo BookInfoRule `json:"ruleBookInfo"`
	RuleToc      TocRule      `json:"ruleToc"`
	RuleContent  ContentRule  `json:"ruleContent"`
}

// SearchRule extracts result rows from search and explore pages
type SearchRule struct {
	BookList    string `json:"bookList,omitempty"`
	Name        string `json:"name,omitempty"`
	Author      string `json:"author,omitempty"`
	Kind        string `json:"kind,omitempty"`
	WordCount   string `json:"wordCount,omitempty"`
	LastChapter string `json:"lastChapter,omitempty"`
	Intro       string `json:"intro,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	BookURL     string `json:"bookUrl,omitempty"`
}

// IsEmpty reports whether no list rule is configured
func (r SearchRule) IsEmpty() bool {
	return strings.TrimSpace(r.BookList) == ""
}

// BookInfoRule extracts book detail fields
type BookInfoRule struct {
	Init        string `json:"init,omitempty"`
	Name        string `json:"name,omitempty"`
	Author      string `json:"author,omitempty"`
	Kind        string `json:"kind,omitempty"`
	WordCount   string `json:"wordCount,omitempty"`
	LastChapter string `json:"lastChapter,omitempty"`
	Intro       string `json:"intro,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	TocURL      string `json:"tocUrl,omitempty"`
}

// TocRule extracts the chapter list
type TocRule struct {
	ChapterList string `json:"chapterList,omitempty"`
	ChapterName string `json:"chapterName,omitempty"`
	ChapterURL  string `json:"chapterUrl,omitempty"`
	IsVolume    string `json:"isVolume,omitempty"`
	IsVip       string `json:"isVip,omitempty"`
	IsPay       string `json:"isPay,omitempty"`
	UpdateTime  string `json:"updateTime,omitempty"`
	NextTocURL  string `json:"nextTocUrl,omitempty"`
	FormatJs    string `json:"formatJs,omitempty"`
}

// ContentRule extracts chapter text
type ContentRule struct {
	Content        string `json:"content,omitempty"`
	Title          string `json:"title,omitempty"`
	NextContentURL string `json:"nextContentUrl,omitempty"`
	ReplaceRegex   string `json:"replaceRegex,omitempty"`
	ImageStyle     string `json:"imageStyle,omitempty"`
}

// ImageStyleText drops images from chapter text
const ImageStyleText = "TEXT"

// Headers decodes the source header JSON; malformed headers are ignored
func (s *BookSource) Headers() map[string]string {
	headers := make(map[string]string)
	raw := strings.TrimSpace(s.Header)
	if raw == "" {
		return headers
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return headers
	}
	for k, v := range decoded {
		if str, ok := v.(string); ok {
			headers[k] = str
		}
	}
	return headers
}

// Key identifies the source in logs and caches
func (s *BookSource) Key() string {
	return s.URL
}

// Book is the host-owned record of one book and the reader's position in it
type Book struct {
	BookURL            string    `json:"bookUrl"`
	TocURL             string    `json:"tocUrl,omitempty"`
	Origin             string    `json:"origin"`
	OriginName         string    `json:"originName,omitempty"`
	Name               string    `json:"name"`
	Author             string    `json:"author,omitempty"`
	Kind               string    `json:"kind,omitempty"`
	Intro              string    `json:"intro,omitempty"`
	CoverURL           string    `json:"coverUrl,omitempty"`
	WordCount          string    `json:"wordCount,omitempty"`
	LatestChapterTitle string    `json:"latestChapterTitle,omitempty"`
	LatestChapterTime  time.Time `json:"latestChapterTime,omitempty"`
	LastCheckTime      time.Time `json:"lastCheckTime,omitempty"`
	LastCheckCount     int       `json:"lastCheckCount,omitempty"`
	TotalChapterNum    int       `json:"totalChapterNum"`
	DurChapterIndex    int       `json:"durChapterIndex"`
	DurChapterTitle    string    `json:"durChapterTitle,omitempty"`
	DurChapterPos      int       `json:"durChapterPos"`

	// InfoHTML holds the detail page body when the TOC lives on the same
	// page; InfoURL is that page's final URL after redirects
	InfoHTML string `json:"-"`
	InfoURL  string `json:"-"`
}

// BookChapter is one entry of a table of contents
type BookChapter struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	BaseURL  string `json:"baseUrl"`
	BookURL  string `json:"bookUrl"`
	IsVolume bool   `json:"isVolume,omitempty"`
	IsVip    bool   `json:"isVip,omitempty"`
	IsPay    bool   `json:"isPay,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

// SearchBook is one row of a search or explore result page
type SearchBook struct {
	BookURL     string `json:"bookUrl"`
	Origin      string `json:"origin"`
	OriginName  string `json:"originName,omitempty"`
	Name        string `json:"name"`
	Author      string `json:"author,omitempty"`
	Kind        string `json:"kind,omitempty"`
	WordCount   string `json:"wordCount,omitempty"`
	LastChapter string `json:"latestChapterTitle,omitempty"`
	Intro       string `json:"intro,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
}

// ToBook converts a result row into a book record
func (sb *SearchBook) ToBook() *Book {
	return &Book{
		BookURL:            sb.BookURL,
		Origin:             sb.Origin,
		OriginName:         sb.OriginName,
		Name:               sb.Name,
		Author:             sb.Author,
		Kind:               sb.Kind,
		WordCount:          sb.WordCount,
		LatestChapterTitle: sb.LastChapter,
		Intro:              sb.Intro,
		CoverURL:           sb.CoverURL,
	}
}

// ExploreKind is one discovery category of a source
type ExploreKind struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}
