package rule

import (
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// purifier is the trailing "##pattern##replacement" part of a rule.
// A trailing "###" replaces only the first match.
type purifier struct {
	pattern     string
	replacement string
	firstOnly   bool
}

// splitPurification cuts the purification suffix off a rule
func splitPurification(expr string) (string, *purifier) {
	parts := strings.SplitN(expr, "##", 4)
	if len(parts) == 1 {
		return expr, nil
	}
	p := &purifier{pattern: parts[1]}
	if len(parts) > 2 {
		p.replacement = parts[2]
	}
	if len(parts) > 3 {
		p.firstOnly = true
	}
	if p.pattern == "" {
		return parts[0], nil
	}
	return parts[0], p
}

type regexCache struct {
	timeout time.Duration
	cache   sync.Map // pattern -> *regexp2.Regexp
}

func (c *regexCache) compile(pattern string) (*regexp2.Regexp, error) {
	if v, ok := c.cache.Load(pattern); ok {
		return v.(*regexp2.Regexp), nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = c.timeout
	c.cache.Store(pattern, re)
	return re, nil
}

// apply rewrites each value independently. A value the regex fails on is
// kept as is; the first failure is returned for reporting.
func (c *regexCache) apply(p *purifier, values []string) ([]string, error) {
	re, err := c.compile(p.pattern)
	if err != nil {
		return values, err
	}
	count := -1
	if p.firstOnly {
		count = 1
	}
	out := make([]string, len(values))
	var firstErr error
	for i, v := range values {
		r, err := re.Replace(v, p.replacement, -1, count)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			r = v
		}
		out[i] = r
	}
	return out, firstErr
}
