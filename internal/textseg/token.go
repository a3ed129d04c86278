package textseg

// EstimateTokens gives a rough token count using the ~4 chars/token heuristic.
// Exact tokenization is not needed for sizing passages; the encoder enforces
// the real budget later.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
