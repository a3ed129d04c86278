// Package tokenizer provides the text-to-ids capability used by the encoding
// and generation layers. Implementations share T5-style conventions: a fixed
// pad/end-of-sequence/unknown token set, ids ending with the end-of-sequence
// id, and registerable extra marker tokens.
package tokenizer

// Reserved token names shared by all implementations.
const (
	PadToken = "<pad>"
	EOSToken = "</s>"
	UnkToken = "<unk>"
)

// EncodeOptions controls truncation and padding for EncodePlus.
type EncodeOptions struct {
	MaxLength int
	Truncate  bool
	Pad       bool
}

// Encoding is a model-ready id sequence. AttentionMask is 1 over real tokens
// and 0 over padding.
type Encoding struct {
	InputIDs      []int `json:"input_ids"`
	AttentionMask []int `json:"attention_mask"`
}

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	// Encode returns the ids for text, ending with the end-of-sequence id.
	// No truncation or padding is applied.
	Encode(text string) []int

	// EncodePlus encodes with truncation to MaxLength (the end-of-sequence
	// id survives truncation) and optional padding up to MaxLength.
	EncodePlus(text string, opts EncodeOptions) Encoding

	// Decode converts ids back to text. skipSpecial drops every registered
	// special token, including markers added via AddSpecialTokens.
	Decode(ids []int, skipSpecial bool) string

	// BatchDecode decodes each row of a batch.
	BatchDecode(batch [][]int, skipSpecial bool) []string

	// AddSpecialTokens registers extra marker tokens and returns the new
	// vocabulary size. Already-known tokens are left in place. Not safe to
	// call concurrently with Encode.
	AddSpecialTokens(tokens []string) int

	VocabSize() int
	PadID() int
	EOSID() int
}

// buildEncoding applies truncation and padding to a raw id sequence.
func buildEncoding(ids []int, eosID, padID int, opts EncodeOptions) Encoding {
	if opts.Truncate && opts.MaxLength > 0 && len(ids) > opts.MaxLength {
		ids = ids[:opts.MaxLength]
		ids[opts.MaxLength-1] = eosID
	}

	mask := make([]int, len(ids))
	for i := range mask {
		mask[i] = 1
	}

	if opts.Pad && opts.MaxLength > 0 {
		for len(ids) < opts.MaxLength {
			ids = append(ids, padID)
			mask = append(mask, 0)
		}
	}

	return Encoding{InputIDs: ids, AttentionMask: mask}
}

func decodeBatch(t Tokenizer, batch [][]int, skipSpecial bool) []string {
	out := make([]string, len(batch))
	for i, ids := range batch {
		out[i] = t.Decode(ids, skipSpecial)
	}
	return out
}
