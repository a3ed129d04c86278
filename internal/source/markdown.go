package source

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Headings close the
// current passage; the blocks between headings join into one passage.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var b passageBuilder
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if _, ok := n.(*ast.Heading); ok {
			b.flush()
			continue
		}
		b.add(nodeText(n, src))
	}

	return &Document{
		Title:    titleFromFilename(filename),
		Passages: b.result(),
	}, nil
}

// nodeText extracts the plain text of a goldmark AST node. Blocks with
// source lines use them directly; containers recurse into their children.
func nodeText(n ast.Node, src []byte) string {
	if n.Type() == ast.TypeBlock {
		if lines := n.Lines(); lines.Len() > 0 {
			var buf bytes.Buffer
			for i := 0; i < lines.Len(); i++ {
				buf.Write(lines.At(i).Value(src))
			}
			return strings.TrimSpace(buf.String())
		}
	}
	if t, ok := n.(*ast.Text); ok {
		return strings.TrimSpace(string(t.Value(src)))
	}

	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := nodeText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
