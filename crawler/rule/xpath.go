package rule

import (
	"strconv"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

type xpathBackend struct {
	compiled sync.Map // expression -> *xpath.Expr
}

func (*xpathBackend) name() string { return "xpath" }

func (b *xpathBackend) compile(expr string) (*xpath.Expr, error) {
	if v, ok := b.compiled.Load(expr); ok {
		return v.(*xpath.Expr), nil
	}
	e, err := xpath.Compile(expr)
	if err != nil {
		return nil, err
	}
	b.compiled.Store(expr, e)
	return e, nil
}

// xpathMatch is one result of an XPath evaluation
type xpathMatch struct {
	value   string
	element *Context
}

func (b *xpathBackend) eval(c *Context, expr string) ([]xpathMatch, error) {
	e, err := b.compile(expr)
	if err != nil {
		return nil, err
	}
	if c.Kind() == KindXML {
		root, err := c.XML()
		if err != nil {
			return nil, err
		}
		return evalNavigator(e, xmlquery.CreateXPathNavigator(root), func(nav xpath.NodeNavigator) xpathMatch {
			n := nav.(*xmlquery.NodeNavigator)
			if nav.NodeType() == xpath.ElementNode {
				node := n.Current()
				return xpathMatch{value: strings.TrimSpace(node.InnerText()), element: FromXML(node)}
			}
			return xpathMatch{value: strings.TrimSpace(nav.Value())}
		}), nil
	}

	roots, err := c.Nodes()
	if err != nil {
		return nil, err
	}
	var out []xpathMatch
	for _, root := range roots {
		out = append(out, evalNavigator(e, htmlquery.CreateXPathNavigator(root), func(nav xpath.NodeNavigator) xpathMatch {
			n := nav.(*htmlquery.NodeNavigator)
			if nav.NodeType() == xpath.ElementNode {
				node := n.Current()
				return xpathMatch{value: strings.TrimSpace(nodeText(node)), element: FromNodes(node)}
			}
			return xpathMatch{value: strings.TrimSpace(nav.Value())}
		})...)
	}
	return out, nil
}

// evalNavigator stringifies scalar results and walks node-set results
func evalNavigator(e *xpath.Expr, nav xpath.NodeNavigator, convert func(xpath.NodeNavigator) xpathMatch) []xpathMatch {
	switch v := e.Evaluate(nav).(type) {
	case *xpath.NodeIterator:
		var out []xpathMatch
		for v.MoveNext() {
			out = append(out, convert(v.Current()))
		}
		return out
	case string:
		return []xpathMatch{{value: v}}
	case float64:
		return []xpathMatch{{value: strconv.FormatFloat(v, 'f', -1, 64)}}
	case bool:
		return []xpathMatch{{value: strconv.FormatBool(v)}}
	}
	return nil
}

func (b *xpathBackend) strings(c *Context, expr, _ string) ([]string, error) {
	matches, err := b.eval(c, expr)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.value != "" {
			out = append(out, m.value)
		}
	}
	return out, nil
}

func (b *xpathBackend) elements(c *Context, expr string) ([]*Context, error) {
	matches, err := b.eval(c, expr)
	if err != nil {
		return nil, err
	}
	out := make([]*Context, 0, len(matches))
	for _, m := range matches {
		if m.element != nil {
			out = append(out, m.element)
		}
	}
	return out, nil
}
