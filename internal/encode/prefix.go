package encode

// TaskPrefix selects which task the model is asked to perform. The prefix
// text is prepended to the input sequence as "<text>: ".
type TaskPrefix string

const (
	PrefixAnswerExt TaskPrefix = "ans_ext"
	PrefixEndToEnd  TaskPrefix = "e2e_qg"
	PrefixQA        TaskPrefix = "qa"
	PrefixQG        TaskPrefix = "qg"
)

var prefixText = map[TaskPrefix]string{
	PrefixAnswerExt: "extract answers",
	PrefixEndToEnd:  "generate questions",
	PrefixQA:        "question",
	PrefixQG:        "generate question",
}

// Valid reports whether p is one of the known task prefixes.
func (p TaskPrefix) Valid() bool {
	_, ok := prefixText[p]
	return ok
}

// Text returns the natural-language prefix sent to the model.
func (p TaskPrefix) Text() string {
	return prefixText[p]
}
