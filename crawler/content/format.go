package content

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/dotecxy/legado2-sub001/crawler/urlutil"
)

var (
	nbspRun    = regexp.MustCompile(`(?i)(?:&nbsp;)+`)
	wideSpace  = regexp.MustCompile(`(?i)&(?:ensp|emsp);`)
	invisible  = regexp.MustCompile(`[\x{200B}-\x{200F}\x{202A}-\x{202E}\x{2060}\x{FEFF}\x{00AD}]`)
	blockTag   = regexp.MustCompile(`(?i)</?(?:div|p|br|hr|h[1-6]|article|dd|dl)(?:\s[^>]*)?/?>`)
	comment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	anyTag     = regexp.MustCompile(`<[^>]*>`)
	imgTag     = regexp.MustCompile(`(?i)^<img[\s/>]`)
	imgSrc     = regexp.MustCompile(`(?i)\s(data-src|src)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	lineBreaks = regexp.MustCompile(`\s*\n+\s*`)
)

// Formatter converts chapter markup to plain paragraphs
type Formatter struct {
	// Indent is written at the start of every paragraph
	Indent string
}

// HTMLFormat formats markup without paragraph indent
func HTMLFormat(markup string, keepImages bool, baseURL string) string {
	return Formatter{}.Format(markup, keepImages, baseURL)
}

// Format runs the cleanup pipeline: entity spaces, invisible characters,
// block tags to line breaks, comments and remaining tags removed (img tags
// survive with absolute URLs when keepImages is set), line breaks collapsed.
func (f Formatter) Format(markup string, keepImages bool, baseURL string) string {
	s := nbspRun.ReplaceAllString(markup, " ")
	s = wideSpace.ReplaceAllString(s, " ")
	s = invisible.ReplaceAllString(s, "")
	s = blockTag.ReplaceAllString(s, "\n")
	s = comment.ReplaceAllString(s, "")
	s = stripTags(s, keepImages, baseURL)
	s = lineBreaks.ReplaceAllString(s, "\n"+f.Indent)
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	if s == "" {
		return ""
	}
	return f.Indent + s
}

// stripTags removes tags and unescapes the text between them
func stripTags(s string, keepImages bool, baseURL string) string {
	var sb strings.Builder
	last := 0
	for _, loc := range anyTag.FindAllStringIndex(s, -1) {
		sb.WriteString(html.UnescapeString(s[last:loc[0]]))
		tag := s[loc[0]:loc[1]]
		if keepImages && imgTag.MatchString(tag) {
			sb.WriteString(rewriteImage(tag, baseURL))
		}
		last = loc[1]
	}
	sb.WriteString(html.UnescapeString(s[last:]))
	return sb.String()
}

// rewriteImage keeps an img tag with an absolute src, preferring data-src.
// A ",{...}" option suffix on the URL is carried over.
func rewriteImage(tag, baseURL string) string {
	var src string
	for _, m := range imgSrc.FindAllStringSubmatch(tag, -1) {
		v := m[2] + m[3] + m[4]
		if v == "" {
			continue
		}
		if strings.EqualFold(m[1], "data-src") {
			src = v
			break
		}
		if src == "" {
			src = v
		}
	}
	if src == "" {
		return ""
	}
	u, option := urlutil.SplitOption(html.UnescapeString(src))
	u = urlutil.Absolute(baseURL, u)
	if option != "" {
		u += "," + option
	}
	return `<img src="` + u + `">`
}
