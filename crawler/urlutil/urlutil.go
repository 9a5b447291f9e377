// Package urlutil resolves the relative links found in fetched pages.
package urlutil

import (
	"net/url"
	"strings"
)

// Absolute merges ref with base using RFC 3986 reference resolution.
// Absolute references, data URIs and unparsable input pass through.
func Absolute(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if HasScheme(ref) {
		return ref
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || b.Scheme == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// HasScheme reports whether s starts with a URI scheme such as http: or data:
func HasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9', c == '+', c == '-', c == '.':
			if i == 0 {
				return false
			}
		case c == ':':
			return i > 0
		default:
			return false
		}
	}
	return false
}

// SplitOption separates a trailing ",{...}" option object from a URL
func SplitOption(s string) (string, string) {
	idx := strings.Index(s, ",{")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}
