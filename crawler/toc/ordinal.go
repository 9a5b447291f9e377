package toc

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/width"
)

const numeralChars = `\d零〇一二两三四五六七八九十百千万壹贰叁肆伍陆柒捌玖拾佰仟`

var (
	// 第十二章 style marker, not at the end of the title
	chapterMarker = regexp2.MustCompile(`^.*?第([`+numeralChars+`]+)[章节篇回集话](?!$)`, regexp2.None)
	// "12," / "12:" / "12." style prefix
	bareMarker = regexp2.MustCompile(`^(?:[`+numeralChars+`]+[,:、])*([`+numeralChars+`]+)(?:[,:、](?!$)|\.(?=[^\d]))`, regexp2.None)
	brackets   = regexp2.MustCompile(`^[(\[（【][^)\]）】]*[)\]）】]|[(\[（【][^)\]）】]*[)\]）】]$`, regexp2.None)
)

func matchMarker(title string) *regexp2.Match {
	for _, re := range []*regexp2.Regexp{chapterMarker, bareMarker} {
		if m, err := re.FindStringMatch(title); err == nil && m != nil {
			return m
		}
	}
	return nil
}

// Strip reduces a chapter title to the characters used for similarity:
// ordinal markers, whitespace and one bracket group at each end are removed
// and only letters, digits, underscores and CJK ideographs are kept.
func Strip(title string) string {
	s := width.Narrow.String(title)
	if m := matchMarker(s); m != nil {
		s = string([]rune(s)[m.Index+m.Length:])
	}
	s = strings.Join(strings.Fields(s), "")
	if r, err := brackets.Replace(s, "", -1, 2); err == nil {
		s = r
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '_', r == '〇', unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Han, r):
			return r
		}
		return -1
	}, s)
}

// ExtractOrdinal returns the chapter number a title starts with, or -1
func ExtractOrdinal(title string) int {
	m := matchMarker(width.Narrow.String(title))
	if m == nil {
		return -1
	}
	g := m.GroupByNumber(1)
	if g == nil || g.Length == 0 {
		return -1
	}
	return ParseNumeral(g.String())
}

var (
	numeralDigits = map[rune]int{
		'零': 0, '〇': 0,
		'一': 1, '壹': 1,
		'二': 2, '两': 2, '贰': 2,
		'三': 3, '叁': 3,
		'四': 4, '肆': 4,
		'五': 5, '伍': 5,
		'六': 6, '陆': 6,
		'七': 7, '柒': 7,
		'八': 8, '捌': 8,
		'九': 9, '玖': 9,
	}
	numeralUnits = map[rune]int{
		'十': 10, '拾': 10,
		'百': 100, '佰': 100,
		'千': 1000, '仟': 1000,
		'万': 10000,
	}
)

// ParseNumeral converts an Arabic or Chinese numeral to an integer. Chinese
// numerals without units ("一二三") are read digit by digit. Returns -1 for
// anything else.
func ParseNumeral(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}

	digit := func(r rune) (int, bool) {
		if r >= '0' && r <= '9' {
			return int(r - '0'), true
		}
		d, ok := numeralDigits[r]
		return d, ok
	}

	hasUnit := false
	for _, r := range s {
		if _, ok := numeralUnits[r]; ok {
			hasUnit = true
			break
		}
	}

	if !hasUnit {
		n := 0
		for _, r := range s {
			d, ok := digit(r)
			if !ok {
				return -1
			}
			n = n*10 + d
		}
		return n
	}

	total, section, num := 0, 0, 0
	for _, r := range s {
		if d, ok := digit(r); ok {
			num = num*10 + d
			continue
		}
		unit, ok := numeralUnits[r]
		if !ok {
			return -1
		}
		if unit == 10000 {
			total += (section + num) * unit
			section, num = 0, 0
			continue
		}
		if num == 0 && unit == 10 {
			num = 1
		}
		section += num * unit
		num = 0
	}
	return total + section + num
}
