// Package source extracts plain text passages from uploaded documents.
// Each parser flattens its format into an ordered passage list; headings
// act as passage boundaries and never appear in the output text.
package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Document is a parsed upload: a display title and the passages extracted
// from it, in document order.
type Document struct {
	Title    string
	Passages []string
}

// Parser extracts a Document from raw file bytes.
type Parser interface {
	Parse(r io.Reader, filename string) (*Document, error)
}

// SupportedExtensions lists the file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupported checks whether a filename has a supported extension.
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// passageBuilder accumulates text blocks into passages. Blocks added
// between flushes are joined with blank lines into one passage.
type passageBuilder struct {
	passages []string
	current  strings.Builder
}

func (b *passageBuilder) add(text string) {
	if text == "" {
		return
	}
	if b.current.Len() > 0 {
		b.current.WriteString("\n\n")
	}
	b.current.WriteString(text)
}

func (b *passageBuilder) flush() {
	if t := strings.TrimSpace(b.current.String()); t != "" {
		b.passages = append(b.passages, t)
	}
	b.current.Reset()
}

func (b *passageBuilder) result() []string {
	b.flush()
	return b.passages
}
