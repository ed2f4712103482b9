package ingest

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is the plain text under one h1-h3 heading of a Markdown
// document.
type Section struct {
	Key     string // slugged heading path, e.g. "guide/returns/refunds"
	Title   string // enclosing h1 text
	Content string
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// MarkdownSections splits src at h1, h2 and h3 headings and renders each
// part as plain text. Text before the first heading gets an empty key;
// deeper headings stay inside their section. Sections without text are
// dropped.
func MarkdownSections(src []byte) []Section {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var (
		out   []Section
		path  [3]string
		title string
		body  []string
	)
	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if content == "" {
			return
		}
		var parts []string
		for _, p := range path {
			if p != "" {
				parts = append(parts, p)
			}
		}
		out = append(out, Section{Key: strings.Join(parts, "/"), Title: title, Content: content})
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level <= 3 {
			flush()
			heading := plainText(h, src)
			path[h.Level-1] = slugify(heading)
			for i := h.Level; i < len(path); i++ {
				path[i] = ""
			}
			if h.Level == 1 {
				title = heading
			}
			continue
		}
		if s := plainText(n, src); s != "" {
			body = append(body, s)
		}
	}
	flush()
	return out
}

// plainText renders the text inside n: emphasis, links and inline code
// lose their markup and code blocks keep their lines verbatim.
func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := range lines.Len() {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		default:
			if !entering && n.Type() == ast.TypeBlock && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
