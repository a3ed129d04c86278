package textseg

import "strings"

// PassageConfig controls passage segmentation for document ingestion.
type PassageConfig struct {
	MaxTokens int // Target passage size in estimated tokens.
	MinTokens int // Minimum passage size to emit.
}

// DefaultPassageConfig returns sensible defaults for a 512-token input budget,
// leaving headroom for the task prefix and highlight markers.
func DefaultPassageConfig() PassageConfig {
	return PassageConfig{
		MaxTokens: 380,
		MinTokens: 8,
	}
}

// SplitPassages segments text into passages that fit the token budget.
// Paragraphs are packed greedily; a paragraph over budget is re-packed by
// sentence, and a single oversized sentence is hard-split on whitespace.
func SplitPassages(text string, cfg PassageConfig) []string {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 380
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = 1
	}

	var passages []string
	emit := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && EstimateTokens(s) >= cfg.MinTokens {
			passages = append(passages, s)
		}
	}

	var current strings.Builder
	currentTokens := 0
	flush := func() {
		if currentTokens > 0 {
			emit(current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, para := range splitParagraphs(text) {
		paraTokens := EstimateTokens(para)

		if paraTokens > cfg.MaxTokens {
			flush()
			for _, part := range packSentences(para, cfg.MaxTokens) {
				emit(part)
			}
			continue
		}

		if currentTokens+paraTokens > cfg.MaxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}
	flush()

	return passages
}

// splitParagraphs splits on blank lines.
func splitParagraphs(text string) []string {
	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// packSentences groups the sentences of an oversized paragraph into parts
// under the token budget.
func packSentences(text string, maxTokens int) []string {
	var splitter RuleSplitter

	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, sent := range splitter.Split(text) {
		sentTokens := EstimateTokens(sent)

		if sentTokens > maxTokens {
			if currentTokens > 0 {
				result = append(result, current.String())
				current.Reset()
				currentTokens = 0
			}
			result = append(result, hardSplit(sent, maxTokens)...)
			continue
		}

		if currentTokens+sentTokens > maxTokens && currentTokens > 0 {
			result = append(result, current.String())
			current.Reset()
			currentTokens = 0
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}
	if currentTokens > 0 {
		result = append(result, current.String())
	}

	return result
}

// hardSplit breaks a single runaway sentence on whitespace.
func hardSplit(text string, maxTokens int) []string {
	words := strings.Fields(text)

	var result []string
	var current []string
	currentLen := 0

	for _, w := range words {
		joinedLen := currentLen + len(w)
		if len(current) > 0 {
			joinedLen++ // joining space
		}
		if (joinedLen+3)/4 > maxTokens && len(current) > 0 {
			result = append(result, strings.Join(current, " "))
			current = current[:0]
			joinedLen = len(w)
		}
		current = append(current, w)
		currentLen = joinedLen
	}
	if len(current) > 0 {
		result = append(result, strings.Join(current, " "))
	}

	return result
}
