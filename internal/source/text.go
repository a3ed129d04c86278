package source

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. Blank lines separate passages;
// single newlines within a paragraph are kept.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var passages []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				passages = append(passages, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		passages = append(passages, current.String())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Document{
		Title:    titleFromFilename(filename),
		Passages: passages,
	}, nil
}
