package explore

import (
	"context"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/errors"
)

var kindSeparator = regexp.MustCompile(`(?:&&|\n)+`)

// ParseKinds reads the exploreUrl of a source. It accepts a JSON array of
// {"title","url"} objects or "title::url" entries separated by newlines or
// &&. A <js> or @js: value is evaluated first and its output parsed.
func ParseKinds(ctx context.Context, scripts script.Evaluator, src *source.BookSource) ([]source.ExploreKind, error) {
	raw := strings.TrimSpace(src.ExploreURL)
	if code, ok := scriptBody(raw); ok {
		if scripts == nil {
			return nil, errors.ErrScriptFailed.WithURL(src.URL)
		}
		v, err := scripts.Evaluate(ctx, code, map[string]any{
			"baseUrl": src.URL,
			"source":  map[string]any{"url": src.URL, "name": src.Name},
		})
		if err != nil {
			return nil, errors.ErrScriptFailed.WithCause(err).WithURL(src.URL)
		}
		raw = strings.TrimSpace(script.ToString(v))
	}
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "[") && gjson.Valid(raw) {
		var kinds []source.ExploreKind
		gjson.Parse(raw).ForEach(func(_, item gjson.Result) bool {
			if title := strings.TrimSpace(item.Get("title").String()); title != "" {
				kinds = append(kinds, source.ExploreKind{Title: title, URL: strings.TrimSpace(item.Get("url").String())})
			}
			return true
		})
		return kinds, nil
	}

	var kinds []source.ExploreKind
	for _, entry := range kindSeparator.Split(raw, -1) {
		title, u, _ := strings.Cut(entry, "::")
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		kinds = append(kinds, source.ExploreKind{Title: title, URL: strings.TrimSpace(u)})
	}
	return kinds, nil
}

func scriptBody(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "@js:"):
		return raw[len("@js:"):], true
	case strings.HasPrefix(lower, "<js>"):
		end := strings.LastIndex(lower, "</js>")
		if end < 0 {
			end = len(raw)
		}
		return raw[len("<js>"):end], true
	}
	return "", false
}
