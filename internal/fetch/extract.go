package fetch

import (
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// noise holds elements whose subtree never carries page text.
var noise = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
}

// breaks holds elements that start a new paragraph in the output.
var breaks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Table: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true, atom.Hr: true,
	atom.Br: true, atom.Figure: true, atom.Figcaption: true,
}

// readable parses an HTML document and returns its title and body
// text. When the page marks up an <article> or <main> region only that
// region is rendered.
func readable(r io.Reader) (title, text string) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", ""
	}
	if n := first(doc, atom.Title); n != nil {
		var w textWriter
		w.node(n)
		title = w.String()
	}

	root := doc
	for _, a := range []atom.Atom{atom.Article, atom.Main, atom.Body} {
		if n := first(doc, a); n != nil {
			root = n
			break
		}
	}
	var w textWriter
	w.node(root)
	return title, w.String()
}

// first returns the first element of kind a in document order.
func first(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := first(c, a); found != nil {
			return found
		}
	}
	return nil
}

// textWriter accumulates words, collapsing runs of whitespace to one
// space and paragraph boundaries to one blank line.
type textWriter struct {
	b     strings.Builder
	space bool
	para  bool
}

func (w *textWriter) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.words(n.Data)
		return
	case html.ElementNode:
		if noise[n.DataAtom] {
			return
		}
		if breaks[n.DataAtom] {
			w.paragraph()
			defer w.paragraph()
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

func (w *textWriter) words(s string) {
	if s != "" && unicode.IsSpace(rune(s[0])) {
		w.space = true
	}
	for i, word := range strings.FieldsFunc(s, unicode.IsSpace) {
		if i > 0 {
			w.space = true
		}
		switch {
		case w.b.Len() == 0:
		case w.para:
			w.b.WriteString("\n\n")
		case w.space:
			w.b.WriteByte(' ')
		}
		w.b.WriteString(word)
		w.space, w.para = false, false
	}
	if s != "" && unicode.IsSpace(rune(s[len(s)-1])) {
		w.space = true
	}
}

func (w *textWriter) paragraph() { w.para = true }

func (w *textWriter) String() string { return w.b.String() }
