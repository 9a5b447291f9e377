// Package content turns extracted chapter markup into reading text.
package content

import (
	"strings"
	"unicode"
)

var quoteEntities = strings.NewReplacer(
	"&ldquo;", "“",
	"&rdquo;", "”",
	"&lsquo;", "‘",
	"&rsquo;", "’",
)

// Resegment glues lines that a source hard-wrapped mid-sentence. A line
// starts a new paragraph only when the text before it ends with a sentence
// terminal mark. A first line repeating the chapter title is dropped.
func Resegment(content, chapterTitle string) string {
	lines := strings.Split(quoteEntities.Replace(content), "\n")
	if title := strings.TrimSpace(chapterTitle); title != "" && len(lines) > 0 && strings.TrimSpace(lines[0]) == title {
		lines = lines[1:]
	}

	var sb strings.Builder
	var last rune
	for _, line := range lines {
		line = squeeze(line)
		if line == "" {
			continue
		}
		if sb.Len() > 0 && isTerminal(last) {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
		last = lastRune(line)
	}
	return sb.String()
}

func isTerminal(r rune) bool {
	return strings.ContainsRune("？。！?!~", r)
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}

// squeeze drops whitespace runs next to CJK text and collapses the rest to
// one space, so Latin words stay separated.
func squeeze(line string) string {
	runes := []rune(line)
	var sb strings.Builder
	for i := 0; i < len(runes); {
		if !unicode.IsSpace(runes[i]) {
			sb.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if i > 0 && j < len(runes) && !isWide(runes[i-1]) && !isWide(runes[j]) {
			sb.WriteByte(' ')
		}
		i = j
	}
	return sb.String()
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF) || (r >= 0x2018 && r <= 0x201F)
}

// Indent prefixes every non-empty line with indent
func Indent(text, indent string) string {
	if indent == "" || text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = indent + l
		}
	}
	return strings.Join(lines, "\n")
}
