package rule

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

// Kind is the document model a Context holds
type Kind int

const (
	KindHTML Kind = iota
	KindJSON
	KindXML
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindXML:
		return "xml"
	default:
		return "html"
	}
}

// Context is the input a rule expression is evaluated against: a whole page
// or one element produced by a list rule. Parsing is lazy and the value is
// not safe for concurrent use.
type Context struct {
	kind Kind
	raw  string

	nodes   []*html.Node
	parsed  bool
	json    gjson.Result
	xmlRoot *xmlquery.Node
}

// NewContext wraps a response body, detecting JSON and XML documents.
// Anything else is treated as HTML.
func NewContext(body string) *Context {
	c := &Context{raw: body, kind: KindHTML}
	trimmed := strings.TrimSpace(body)
	switch {
	case (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && gjson.Valid(trimmed):
		c.kind = KindJSON
		c.json = gjson.Parse(trimmed)
	case strings.HasPrefix(trimmed, "<?xml") && !strings.Contains(strings.ToLower(trimmed[:min(len(trimmed), 512)]), "<html"):
		c.kind = KindXML
	}
	return c
}

// FromNodes wraps already parsed HTML nodes
func FromNodes(nodes ...*html.Node) *Context {
	return &Context{kind: KindHTML, nodes: nodes, parsed: true}
}

// FromJSON wraps a parsed JSON value
func FromJSON(v gjson.Result) *Context {
	return &Context{kind: KindJSON, raw: v.Raw, json: v}
}

// FromXML wraps a parsed XML node
func FromXML(n *xmlquery.Node) *Context {
	return &Context{kind: KindXML, xmlRoot: n}
}

// Kind returns the detected document model
func (c *Context) Kind() Kind {
	return c.kind
}

// Text returns the serialized form of the context
func (c *Context) Text() string {
	switch {
	case c.kind == KindJSON:
		if c.json.Type == gjson.String {
			return c.json.Str
		}
		return c.json.Raw
	case c.kind == KindXML && c.xmlRoot != nil:
		return c.xmlRoot.OutputXML(true)
	case c.nodes != nil && c.raw == "":
		var buf bytes.Buffer
		for _, n := range c.nodes {
			_ = html.Render(&buf, n)
		}
		return buf.String()
	}
	return c.raw
}

// Nodes returns the HTML nodes of the context, parsing the raw text on first use
func (c *Context) Nodes() ([]*html.Node, error) {
	if c.parsed {
		return c.nodes, nil
	}
	doc, err := html.Parse(strings.NewReader(c.Text()))
	if err != nil {
		return nil, err
	}
	c.nodes = []*html.Node{doc}
	c.parsed = true
	return c.nodes, nil
}

// Selection returns the context as a goquery selection
func (c *Context) Selection() (*goquery.Selection, error) {
	nodes, err := c.Nodes()
	if err != nil {
		return nil, err
	}
	return selectionOf(nodes), nil
}

// JSON returns the context as a JSON value
func (c *Context) JSON() gjson.Result {
	if c.kind == KindJSON {
		return c.json
	}
	return gjson.Parse(c.Text())
}

// XML returns the XML document root, parsing the raw text on first use
func (c *Context) XML() (*xmlquery.Node, error) {
	if c.xmlRoot != nil {
		return c.xmlRoot, nil
	}
	n, err := xmlquery.Parse(strings.NewReader(c.raw))
	if err != nil {
		return nil, err
	}
	c.xmlRoot = n
	return n, nil
}

func selectionOf(nodes []*html.Node) *goquery.Selection {
	if len(nodes) == 0 {
		return &goquery.Selection{}
	}
	sel := goquery.NewDocumentFromNode(nodes[0]).Selection
	if len(nodes) > 1 {
		sel = sel.AddNodes(nodes[1:]...)
	}
	return sel
}
