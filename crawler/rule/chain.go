package rule

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/dotecxy/legado2-sub001/crawler/urlutil"
)

// instruction is the terminal segment of a chain or CSS expression
type instruction int

const (
	instrNone instruction = iota
	instrText
	instrOwnText
	instrTextNodes
	instrHTML
	instrHref
	instrSrc
	instrAll
)

func parseInstruction(s string) instruction {
	switch s {
	case "text":
		return instrText
	case "ownText":
		return instrOwnText
	case "textNodes":
		return instrTextNodes
	case "html":
		return instrHTML
	case "href":
		return instrHref
	case "src":
		return instrSrc
	case "all":
		return instrAll
	}
	return instrNone
}

type selectorKind int

const (
	selClass selectorKind = iota
	selID
	selTag
	selChildren
	selText
)

// indexSpec picks or excludes one position of a match list
type indexSpec struct {
	set     bool
	exclude bool
	pos     int
}

func parseIndex(s string) indexSpec {
	if s == "" {
		return indexSpec{}
	}
	exclude := strings.HasPrefix(s, "!")
	n, err := strconv.Atoi(strings.TrimPrefix(s, "!"))
	if err != nil {
		return indexSpec{}
	}
	return indexSpec{set: true, exclude: exclude, pos: n}
}

func (s indexSpec) apply(nodes []*html.Node) []*html.Node {
	if !s.set {
		return nodes
	}
	i := s.pos
	if i < 0 {
		i += len(nodes)
	}
	inRange := i >= 0 && i < len(nodes)
	if s.exclude {
		if !inRange {
			return nodes
		}
		out := make([]*html.Node, 0, len(nodes)-1)
		out = append(out, nodes[:i]...)
		return append(out, nodes[i+1:]...)
	}
	if !inRange {
		return nil
	}
	return []*html.Node{nodes[i]}
}

type segment struct {
	kind  selectorKind
	name  string
	index indexSpec
}

// parseSegment reads kind.name.index, also accepting name[index]
func parseSegment(seg string) segment {
	if open := strings.LastIndex(seg, "["); open > 0 && strings.HasSuffix(seg, "]") {
		seg = seg[:open] + "." + seg[open+1:len(seg)-1]
	}
	parts := strings.Split(seg, ".")
	var s segment
	switch parts[0] {
	case "class":
		s.kind = selClass
	case "id":
		s.kind = selID
	case "tag":
		s.kind = selTag
	case "text":
		s.kind = selText
	case "children":
		s.kind = selChildren
		if len(parts) > 1 {
			s.index = parseIndex(parts[len(parts)-1])
		}
		return s
	default:
		s.kind = selTag
		s.name = parts[0]
		if len(parts) > 1 {
			s.index = parseIndex(parts[len(parts)-1])
		}
		return s
	}
	if len(parts) > 1 {
		s.name = parts[1]
	}
	if len(parts) > 2 {
		s.index = parseIndex(parts[2])
	}
	return s
}

func (s segment) selectFrom(n *html.Node) ([]*html.Node, error) {
	sel := goquery.NewDocumentFromNode(n).Selection
	switch s.kind {
	case selClass:
		m, err := cascadia.Compile("." + strings.Join(strings.Fields(s.name), "."))
		if err != nil {
			return nil, err
		}
		return sel.FindMatcher(m).Nodes, nil
	case selID:
		var out []*html.Node
		sel.Find("*").Each(func(_ int, e *goquery.Selection) {
			if id, _ := e.Attr("id"); id == s.name {
				out = append(out, e.Nodes[0])
			}
		})
		return out, nil
	case selTag:
		m, err := cascadia.Compile(s.name)
		if err != nil {
			return nil, err
		}
		return sel.FindMatcher(m).Nodes, nil
	case selChildren:
		return sel.Children().Nodes, nil
	case selText:
		var out []*html.Node
		sel.Find("*").Each(func(_ int, e *goquery.Selection) {
			if strings.Contains(ownText(e.Nodes[0]), s.name) {
				out = append(out, e.Nodes[0])
			}
		})
		return out, nil
	}
	return nil, nil
}

// chainNodes walks the selector segments of a chain expression
func chainNodes(roots []*html.Node, segments []string) ([]*html.Node, error) {
	current := roots
	for _, raw := range segments {
		if raw == "" {
			continue
		}
		seg := parseSegment(raw)
		var next []*html.Node
		for _, n := range current {
			found, err := seg.selectFrom(n)
			if err != nil {
				return nil, err
			}
			next = append(next, found...)
		}
		current = seg.index.apply(next)
		if len(current) == 0 {
			return nil, nil
		}
	}
	return current, nil
}

type chainBackend struct{}

func (chainBackend) name() string { return "chain" }

func (chainBackend) strings(c *Context, expr, baseURL string) ([]string, error) {
	roots, err := c.Nodes()
	if err != nil {
		return nil, err
	}
	parts := strings.Split(expr, "@")
	last := parts[len(parts)-1]
	instr := parseInstruction(last)
	selectors := parts
	if instr != instrNone {
		selectors = parts[:len(parts)-1]
	} else {
		instr = instrText
	}
	nodes, err := chainNodes(roots, selectors)
	if err != nil {
		return nil, err
	}
	return extract(nodes, instr, "", baseURL), nil
}

func (chainBackend) elements(c *Context, expr string) ([]*Context, error) {
	roots, err := c.Nodes()
	if err != nil {
		return nil, err
	}
	nodes, err := chainNodes(roots, strings.Split(expr, "@"))
	if err != nil {
		return nil, err
	}
	return wrapNodes(nodes), nil
}

func wrapNodes(nodes []*html.Node) []*Context {
	out := make([]*Context, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, FromNodes(n))
	}
	return out
}

// extract applies an instruction, or reads attr when instr is instrNone
func extract(nodes []*html.Node, instr instruction, attr, baseURL string) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		var v string
		switch instr {
		case instrText:
			v = strings.TrimSpace(nodeText(n))
		case instrOwnText:
			v = strings.TrimSpace(ownText(n))
		case instrTextNodes:
			v = strings.Join(textNodes(n), "\n")
		case instrHTML:
			v, _ = goquery.NewDocumentFromNode(n).Html()
		case instrAll:
			v, _ = goquery.OuterHtml(goquery.NewDocumentFromNode(n).Selection)
		case instrHref:
			v = urlutil.Absolute(baseURL, attrOf(n, "href"))
		case instrSrc:
			v = urlutil.Absolute(baseURL, attrOf(n, "src"))
		default:
			v = strings.TrimSpace(attrOf(n, attr))
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return sb.String()
}

func ownText(n *html.Node) string {
	var sb strings.Builder
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.TextNode {
			sb.WriteString(ch.Data)
		}
	}
	return sb.String()
}

func textNodes(n *html.Node) []string {
	var out []string
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type != html.TextNode {
			continue
		}
		if t := strings.TrimSpace(ch.Data); t != "" {
			out = append(out, t)
		}
	}
	return out
}
