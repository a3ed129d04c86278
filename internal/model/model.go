// Package model defines the sequence-to-sequence capability behind question
// generation: a closed set of supported model variants, the Generate/Forward
// interface, and the backends that implement it.
package model

import (
	"context"
	"fmt"
	"strings"
)

// ModelType is the closed set of supported seq2seq variants. The variant is
// resolved once from the configuration-reported type string at load time.
type ModelType string

const (
	T5    ModelType = "t5"
	MT5   ModelType = "mt5"
	BART  ModelType = "bart"
	MBART ModelType = "mbart"
)

// ParseModelType maps a reported type string onto the closed variant set.
func ParseModelType(s string) (ModelType, error) {
	switch ModelType(strings.ToLower(s)) {
	case T5:
		return T5, nil
	case MT5:
		return MT5, nil
	case BART:
		return BART, nil
	case MBART:
		return MBART, nil
	}
	return "", fmt.Errorf("unsupported model type: %s", s)
}

// UsesPrefix reports whether the variant was trained with task prefixes.
// BART-family models were not.
func (t ModelType) UsesPrefix() bool {
	return t != BART && t != MBART
}

func (t ModelType) String() string {
	return string(t)
}

// UnsupportedPrefixError reports prefix-dependent behavior requested on a
// variant trained without task prefixes.
type UnsupportedPrefixError struct {
	Type ModelType
}

func (e *UnsupportedPrefixError) Error() string {
	return fmt.Sprintf("model is not trained with prefix (type %s)", e.Type)
}

// GenerateRequest is one decoding batch. Rows are padded to a common length;
// MaxLength bounds the generated sequence and NumBeams sets the beam width.
type GenerateRequest struct {
	InputIDs      [][]int
	AttentionMask [][]int
	MaxLength     int
	NumBeams      int
}

// ForwardRequest is one teacher-forced scoring batch.
type ForwardRequest struct {
	InputIDs      [][]int
	AttentionMask [][]int
	Labels        [][]int
}

// ForwardResult carries the backend loss and the raw logits with shape
// batch x target length x vocab.
type ForwardResult struct {
	Loss   float64
	Logits [][][]float64
}

// Card describes a served model, as reported by the inference server.
type Card struct {
	Name      string `json:"name"`
	ModelType string `json:"model_type"`
	VocabSize int    `json:"vocab_size"`
	MaxLength int    `json:"max_length"`
}

// Seq2Seq generates output sequences and scores teacher-forced batches.
// Implementations run in inference mode; Generate preserves batch order and
// its errors propagate to callers unchanged, never retried.
type Seq2Seq interface {
	Generate(ctx context.Context, req GenerateRequest) ([][]int, error)
	Forward(ctx context.Context, req ForwardRequest) (*ForwardResult, error)
	Type() ModelType
	Name() string
}
