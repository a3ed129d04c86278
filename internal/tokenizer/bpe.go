package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// endOfWord marks word boundaries inside BPE tokens.
const endOfWord = "</w>"

// SavedState is the on-disk BPE vocabulary format: the full token array,
// declared special tokens, and the merge list as "left right" pairs whose
// rank is their position.
type SavedState struct {
	SpecialTokens []string `json:"special_tokens"`
	Vocab         []string `json:"vocab"`
	Merges        []string `json:"merges"`
}

type mergeRule struct {
	rank   int
	result string
}

// BPE is a byte-pair tokenizer over a pretrained vocabulary and merge list.
// Words become character sequences plus an end-of-word suffix, then merge
// pairs are applied greedily by lowest rank.
type BPE struct {
	tokens  []string
	ids     map[string]int
	special map[string]bool
	merges  map[string]mergeRule // keyed "left right"
	splitRe *regexp.Regexp
}

// LoadBPE reads a saved vocabulary file.
func LoadBPE(path string) (*BPE, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var state SavedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	return NewBPE(state)
}

// NewBPE builds a tokenizer from a saved state. The reserved pad, end-of-
// sequence and unknown tokens are appended to the vocabulary if absent.
func NewBPE(state SavedState) (*BPE, error) {
	b := &BPE{
		ids:     make(map[string]int),
		special: make(map[string]bool),
		merges:  make(map[string]mergeRule),
	}

	for _, tok := range state.Vocab {
		if _, ok := b.ids[tok]; ok {
			return nil, fmt.Errorf("duplicate vocabulary token %q", tok)
		}
		b.ids[tok] = len(b.tokens)
		b.tokens = append(b.tokens, tok)
	}

	for _, sp := range state.SpecialTokens {
		if _, ok := b.ids[sp]; !ok {
			return nil, fmt.Errorf("special token %q not in vocabulary", sp)
		}
		b.special[sp] = true
	}
	for _, sp := range []string{PadToken, EOSToken, UnkToken} {
		if _, ok := b.ids[sp]; !ok {
			b.ids[sp] = len(b.tokens)
			b.tokens = append(b.tokens, sp)
		}
		b.special[sp] = true
	}

	for rank, m := range state.Merges {
		parts := strings.Fields(m)
		if len(parts) != 2 {
			return nil, fmt.Errorf("merge %d: expected \"left right\", got %q", rank, m)
		}
		result := parts[0] + parts[1]
		if _, ok := b.ids[result]; !ok {
			return nil, fmt.Errorf("merge %d: result %q not in vocabulary", rank, result)
		}
		key := parts[0] + " " + parts[1]
		if _, ok := b.merges[key]; !ok {
			b.merges[key] = mergeRule{rank: rank, result: result}
		}
	}

	b.rebuildSplitRegex()
	return b, nil
}

// rebuildSplitRegex compiles the pre-tokenization pattern: special tokens
// (longest first) or whitespace-delimited words.
func (b *BPE) rebuildSplitRegex() {
	specials := make([]string, 0, len(b.special))
	for sp := range b.special {
		specials = append(specials, sp)
	}
	sort.Slice(specials, func(i, j int) bool {
		if len(specials[i]) != len(specials[j]) {
			return len(specials[i]) > len(specials[j])
		}
		return specials[i] < specials[j]
	})
	escaped := make([]string, len(specials))
	for i, sp := range specials {
		escaped[i] = regexp.QuoteMeta(sp)
	}
	b.splitRe = regexp.MustCompile(fmt.Sprintf(`(%s)|(\S+)`, strings.Join(escaped, "|")))
}

func (b *BPE) Encode(text string) []int {
	return append(b.encode(text), b.ids[EOSToken])
}

func (b *BPE) encode(text string) []int {
	var ids []int
	for _, m := range b.splitRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			ids = append(ids, b.idFor(m[1]))
			continue
		}
		ids = append(ids, b.encodeWord(m[2])...)
	}
	return ids
}

// encodeWord splits a word into characters plus the end-of-word suffix and
// applies merges by lowest rank until none apply.
func (b *BPE) encodeWord(word string) []int {
	parts := strings.Split(word, "")
	parts = append(parts, endOfWord)

	for len(parts) > 1 {
		bestIdx := -1
		var best mergeRule
		for i := 0; i < len(parts)-1; i++ {
			rule, ok := b.merges[parts[i]+" "+parts[i+1]]
			if !ok {
				continue
			}
			if bestIdx < 0 || rule.rank < best.rank {
				bestIdx = i
				best = rule
			}
		}
		if bestIdx < 0 {
			break
		}
		merged := make([]string, 0, len(parts)-1)
		merged = append(merged, parts[:bestIdx]...)
		merged = append(merged, best.result)
		merged = append(merged, parts[bestIdx+2:]...)
		parts = merged
	}

	ids := make([]int, len(parts))
	for i, tok := range parts {
		ids[i] = b.idFor(tok)
	}
	return ids
}

func (b *BPE) idFor(token string) int {
	if id, ok := b.ids[token]; ok {
		return id
	}
	return b.ids[UnkToken]
}

func (b *BPE) EncodePlus(text string, opts EncodeOptions) Encoding {
	return buildEncoding(b.Encode(text), b.ids[EOSToken], b.PadID(), opts)
}

func (b *BPE) Decode(ids []int, skipSpecial bool) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(b.tokens) {
			sb.WriteString(UnkToken)
			continue
		}
		token := b.tokens[id]
		if skipSpecial && b.special[token] {
			continue
		}
		sb.WriteString(token)
	}
	text := strings.ReplaceAll(sb.String(), endOfWord, " ")
	return strings.Join(strings.Fields(text), " ")
}

func (b *BPE) BatchDecode(batch [][]int, skipSpecial bool) []string {
	return decodeBatch(b, batch, skipSpecial)
}

func (b *BPE) AddSpecialTokens(tokens []string) int {
	changed := false
	for _, sp := range tokens {
		if _, ok := b.ids[sp]; !ok {
			b.ids[sp] = len(b.tokens)
			b.tokens = append(b.tokens, sp)
		}
		if !b.special[sp] {
			b.special[sp] = true
			changed = true
		}
	}
	if changed {
		b.rebuildSplitRegex()
	}
	return len(b.tokens)
}

func (b *BPE) VocabSize() int {
	return len(b.tokens)
}

func (b *BPE) PadID() int {
	return b.ids[PadToken]
}

func (b *BPE) EOSID() int {
	return b.ids[EOSToken]
}
