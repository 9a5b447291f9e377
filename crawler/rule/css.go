package rule

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

type cssBackend struct{}

func (cssBackend) name() string { return "css" }

// splitCSS separates "selector@attr"; an @ inside brackets or quotes
// belongs to the selector.
func splitCSS(expr string) (string, string) {
	depth := 0
	var quote byte
	at := -1
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			depth--
		case ch == '@' && depth == 0:
			at = i
		}
	}
	if at <= 0 {
		return strings.TrimSpace(expr), ""
	}
	return strings.TrimSpace(expr[:at]), strings.TrimSpace(expr[at+1:])
}

func cssSelect(c *Context, selector string) ([]*html.Node, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	roots, err := c.Nodes()
	if err != nil {
		return nil, err
	}
	return selectionOf(roots).FindMatcher(m).Nodes, nil
}

func (cssBackend) strings(c *Context, expr, baseURL string) ([]string, error) {
	selector, attr := splitCSS(expr)
	nodes, err := cssSelect(c, selector)
	if err != nil {
		return nil, err
	}
	if attr == "" {
		return extract(nodes, instrText, "", baseURL), nil
	}
	return extract(nodes, parseInstruction(attr), attr, baseURL), nil
}

func (cssBackend) elements(c *Context, expr string) ([]*Context, error) {
	selector, _ := splitCSS(expr)
	nodes, err := cssSelect(c, selector)
	if err != nil {
		return nil, err
	}
	return wrapNodes(nodes), nil
}
