package rule

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

type jsonBackend struct{}

func (jsonBackend) name() string { return "json" }

// toGJSON translates the JSONPath subset used by book sources into gjson
// path syntax: dotted members, [n] indexes, ['key'] members and [*].
// A path ending in [*] spreads the array.
func toGJSON(path string) (string, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		ch := path[i]
		if ch != '[' {
			sb.WriteByte(ch)
			continue
		}
		end := strings.IndexByte(path[i:], ']')
		if end < 0 {
			return "", fmt.Errorf("unclosed bracket in %q", path)
		}
		inner := strings.TrimSpace(path[i+1 : i+end])
		i += end
		if inner == "*" {
			if i == len(path)-1 {
				continue
			}
			inner = "#"
		}
		inner = strings.Trim(inner, `'"`)
		if strings.ContainsAny(inner, "?():") {
			return "", fmt.Errorf("unsupported JSONPath segment [%s]", inner)
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(inner)
	}
	return sb.String(), nil
}

// jsonQuery resolves a JSONPath, expanding ".." into a recursive search
func jsonQuery(root gjson.Result, path string) ([]gjson.Result, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$")
	head, tail, deep := strings.Cut(path, "..")
	if !deep {
		p, err := toGJSON(path)
		if err != nil {
			return nil, err
		}
		return flatten(getPath(root, p)), nil
	}

	bases, err := jsonQuery(root, head)
	if err != nil {
		return nil, err
	}
	key, rest := splitFirstMember(tail)
	var out []gjson.Result
	for _, base := range bases {
		for _, hit := range findKey(base, key) {
			if rest == "" {
				out = append(out, flatten(hit)...)
				continue
			}
			sub, err := jsonQuery(hit, rest)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

func getPath(root gjson.Result, p string) gjson.Result {
	if p == "" {
		return root
	}
	return root.Get(p)
}

func splitFirstMember(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == '[' {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

// findKey collects every value stored under key at any depth
func findKey(v gjson.Result, key string) []gjson.Result {
	var out []gjson.Result
	var walk func(gjson.Result)
	walk = func(r gjson.Result) {
		if !r.IsObject() && !r.IsArray() {
			return
		}
		r.ForEach(func(k, val gjson.Result) bool {
			if r.IsObject() && (key == "*" || k.Str == key) {
				out = append(out, val)
			}
			walk(val)
			return true
		})
	}
	walk(v)
	return out
}

func flatten(r gjson.Result) []gjson.Result {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	if r.IsArray() {
		return r.Array()
	}
	return []gjson.Result{r}
}

func jsonString(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Null:
		return ""
	default:
		return r.Raw
	}
}

func (jsonBackend) strings(c *Context, expr, _ string) ([]string, error) {
	results, err := jsonQuery(c.JSON(), expr)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		if s := jsonString(r); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (jsonBackend) elements(c *Context, expr string) ([]*Context, error) {
	results, err := jsonQuery(c.JSON(), expr)
	if err != nil {
		return nil, err
	}
	out := make([]*Context, 0, len(results))
	for _, r := range results {
		out = append(out, FromJSON(r))
	}
	return out, nil
}
