package textseg

import (
	"strings"
	"unicode"
)

// Splitter breaks a text into sentences.
type Splitter interface {
	Split(text string) []string
}

// RuleSplitter is a deterministic rule-based sentence splitter. A terminator
// (. ! ?) followed by whitespace ends a sentence; periods after common
// abbreviations and single-letter initials do not. Decimal points never
// match because they are not followed by whitespace.
type RuleSplitter struct{}

func NewRuleSplitter() *RuleSplitter {
	return &RuleSplitter{}
}

func (s *RuleSplitter) Split(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if i+1 == len(runes) {
			// Trailing terminator is handled by the final flush.
			continue
		}
		if r == '.' && abbreviationBefore(runes, i) {
			continue
		}
		if sent := strings.TrimSpace(current.String()); sent != "" {
			sentences = append(sentences, sent)
		}
		current.Reset()
	}
	if sent := strings.TrimSpace(current.String()); sent != "" {
		sentences = append(sentences, sent)
	}

	return sentences
}

var abbreviations = map[string]bool{
	"mr":     true,
	"mrs":    true,
	"ms":     true,
	"dr":     true,
	"prof":   true,
	"st":     true,
	"no":     true,
	"vs":     true,
	"etc":    true,
	"fig":    true,
	"jr":     true,
	"sr":     true,
	"inc":    true,
	"approx": true,
}

// abbreviationBefore reports whether the period at runes[i] terminates an
// abbreviation or a single-letter initial rather than a sentence.
func abbreviationBefore(runes []rune, i int) bool {
	end := i
	start := end
	for start > 0 && unicode.IsLetter(runes[start-1]) {
		start--
	}
	if start == end {
		return false
	}
	word := strings.ToLower(string(runes[start:end]))
	if len(word) == 1 && unicode.IsUpper(runes[start]) {
		return true
	}
	return abbreviations[word]
}

// Clean collapses runs of whitespace to single spaces and trims the ends.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
