package tokenizer

import "strings"

// WordLevel is a whitespace word tokenizer over a fixed vocabulary. Unknown
// words map to the unknown token. It backs the local model and tests, where
// an exact, inspectable vocabulary matters more than subword coverage.
type WordLevel struct {
	tokens  []string
	ids     map[string]int
	special map[string]bool
}

// NewWordLevel builds a word tokenizer whose vocabulary is the reserved
// tokens followed by words in order (duplicates skipped).
func NewWordLevel(words []string) *WordLevel {
	t := &WordLevel{
		ids:     make(map[string]int),
		special: make(map[string]bool),
	}
	for _, s := range []string{PadToken, EOSToken, UnkToken} {
		t.add(s)
		t.special[s] = true
	}
	for _, w := range words {
		t.add(w)
	}
	return t
}

func (t *WordLevel) add(token string) int {
	if id, ok := t.ids[token]; ok {
		return id
	}
	id := len(t.tokens)
	t.tokens = append(t.tokens, token)
	t.ids[token] = id
	return id
}

func (t *WordLevel) Encode(text string) []int {
	words := strings.Fields(text)
	ids := make([]int, 0, len(words)+1)
	for _, w := range words {
		if id, ok := t.ids[w]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, t.ids[UnkToken])
		}
	}
	return append(ids, t.ids[EOSToken])
}

func (t *WordLevel) EncodePlus(text string, opts EncodeOptions) Encoding {
	return buildEncoding(t.Encode(text), t.ids[EOSToken], t.PadID(), opts)
}

func (t *WordLevel) Decode(ids []int, skipSpecial bool) string {
	var words []string
	for _, id := range ids {
		if id < 0 || id >= len(t.tokens) {
			words = append(words, UnkToken)
			continue
		}
		token := t.tokens[id]
		if skipSpecial && t.special[token] {
			continue
		}
		words = append(words, token)
	}
	return strings.Join(words, " ")
}

func (t *WordLevel) BatchDecode(batch [][]int, skipSpecial bool) []string {
	return decodeBatch(t, batch, skipSpecial)
}

func (t *WordLevel) AddSpecialTokens(tokens []string) int {
	for _, s := range tokens {
		t.add(s)
		t.special[s] = true
	}
	return len(t.tokens)
}

func (t *WordLevel) VocabSize() int {
	return len(t.tokens)
}

func (t *WordLevel) PadID() int {
	return t.ids[PadToken]
}

// IDFor returns the id for a token, or the unknown id if absent.
func (t *WordLevel) IDFor(token string) int {
	if id, ok := t.ids[token]; ok {
		return id
	}
	return t.ids[UnkToken]
}

// EOSID returns the end-of-sequence id.
func (t *WordLevel) EOSID() int {
	return t.ids[EOSToken]
}
