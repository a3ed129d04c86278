package encode

import "fmt"

// HighlightNotFoundError reports a highlight span that does not occur in the
// text it was meant to mark.
type HighlightNotFoundError struct {
	Span    string
	Context string
}

func (e *HighlightNotFoundError) Error() string {
	return fmt.Sprintf("highlight span not found in the input text: %s (%s)", e.Span, e.Context)
}

// ExceedMaxLengthError reports an input whose token count is over the
// configured budget while the encoder is set to raise rather than truncate.
type ExceedMaxLengthError struct {
	Limit int
}

func (e *ExceedMaxLengthError) Error() string {
	return fmt.Sprintf("input exceeds max token length of %d", e.Limit)
}
