// Package encode turns raw text into model-ready feature sequences:
// highlight insertion, task prefixing, token budget enforcement, and
// tokenization into padded id/mask/label rows.
package encode

import "strings"

// HighlightToken wraps the focused span inside an input sequence. It must be
// registered with the tokenizer as a special token before encoding.
const HighlightToken = "<hl>"

// InsertHighlight wraps the first occurrence of span in text with highlight
// markers: "Tokyo is..." with span "Tokyo" becomes "<hl> Tokyo <hl> is...".
// Text outside the replaced window is left byte for byte intact.
func InsertHighlight(text, span string) (string, error) {
	pos := strings.Index(text, span)
	if pos == -1 {
		return "", &HighlightNotFoundError{Span: span, Context: text}
	}
	return text[:pos] + HighlightToken + " " + span + " " + HighlightToken + text[pos+len(span):], nil
}

// StripHighlights removes every highlight marker and normalizes the spacing
// the removal leaves behind. It is the practical inverse of InsertHighlight
// for whitespace-normalized text.
func StripHighlights(s string) string {
	s = strings.ReplaceAll(s, HighlightToken, "")
	return strings.Join(strings.Fields(s), " ")
}
