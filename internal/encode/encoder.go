package encode

import (
	"quizgen/internal/tokenizer"
)

// Example is one encoded feature row. Labels is nil when the item carried no
// target sequence. Attention masks are stored as ints and converted to
// floats at the model boundary.
type Example struct {
	InputIDs      []int `json:"input_ids"`
	AttentionMask []int `json:"attention_mask"`
	Labels        []int `json:"labels,omitempty"`
}

// Encoder prepares single feature rows under fixed token budgets.
//
// The overflow gate runs only when DropOverflow is set or SkipOverflowError
// is unset; with SkipOverflowError and no DropOverflow, oversized inputs are
// silently truncated at tokenization time instead.
type Encoder struct {
	Tok             tokenizer.Tokenizer
	MaxLength       int
	MaxLengthOutput int

	Prefix *TaskPrefix // nil means no task prefix

	DropOverflow       bool // drop oversized items instead of raising
	SkipOverflowError  bool // do not raise on oversized items
	SkipHighlightError bool // drop items whose highlight is absent

	Pad bool
}

// EncodeItem encodes one item. target and highlight are optional; a nil
// return with nil error means the item was dropped under the configured
// suppression flags.
func (e *Encoder) EncodeItem(input string, target, highlight *string) (*Example, error) {
	if highlight != nil {
		marked, err := InsertHighlight(input, *highlight)
		if err != nil {
			if e.SkipHighlightError {
				return nil, nil
			}
			return nil, err
		}
		input = marked
	}

	if e.Prefix != nil {
		input = e.Prefix.Text() + ": " + input
	}

	if e.DropOverflow || !e.SkipOverflowError {
		if len(e.Tok.Encode(input)) > e.MaxLength {
			if e.DropOverflow {
				return nil, nil
			}
			return nil, &ExceedMaxLengthError{Limit: e.MaxLength}
		}
		if target != nil && len(e.Tok.Encode(*target)) > e.MaxLengthOutput {
			if e.DropOverflow {
				return nil, nil
			}
			// The input-side limit is reported for target overflow too.
			return nil, &ExceedMaxLengthError{Limit: e.MaxLength}
		}
	}

	enc := e.Tok.EncodePlus(input, tokenizer.EncodeOptions{
		MaxLength: e.MaxLength,
		Truncate:  true,
		Pad:       e.Pad,
	})
	ex := &Example{InputIDs: enc.InputIDs, AttentionMask: enc.AttentionMask}

	if target != nil {
		ex.Labels = e.Tok.EncodePlus(*target, tokenizer.EncodeOptions{
			MaxLength: e.MaxLengthOutput,
			Truncate:  true,
			Pad:       e.Pad,
		}).InputIDs
	}

	return ex, nil
}
