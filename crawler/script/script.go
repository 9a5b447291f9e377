package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Evaluator runs inline script expressions embedded in rule documents
type Evaluator interface {
	// Evaluate runs code with bindings exposed as globals and returns the
	// script result converted to plain Go values
	Evaluate(ctx context.Context, code string, bindings map[string]any) (any, error)
}

// ToString flattens a script result into rule text
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		return strings.Join(ToStrings(val), "\n")
	case []string:
		return strings.Join(val, "\n")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ToStrings converts a script result into a string list
func ToStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, ToString(item))
		}
		return out
	default:
		s := ToString(val)
		if s == "" {
			return nil
		}
		return []string{s}
	}
}
