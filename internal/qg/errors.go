package qg

import "fmt"

// AnswerNotFoundError reports that answer extraction produced no usable
// candidate for a passage: every decoded answer was empty or absent from
// the passage text.
type AnswerNotFoundError struct {
	Context string
}

func (e *AnswerNotFoundError) Error() string {
	return fmt.Sprintf("no answer candidates found in the input text: %s", e.Context)
}
