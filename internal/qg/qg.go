// Package qg drives question generation over a seq2seq model. The two-stage
// flow first extracts answer candidates sentence by sentence, then generates
// one question per extracted answer with the answer highlighted in the
// passage. Single-stage end-to-end generation is available for models
// trained that way.
package qg

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"quizgen/internal/batch"
	"quizgen/internal/encode"
	"quizgen/internal/loss"
	"quizgen/internal/model"
	"quizgen/internal/textseg"
	"quizgen/internal/tokenizer"
)

const (
	defaultMaxLength       = 512
	defaultMaxLengthOutput = 32
	defaultNumBeams        = 4
)

// Config sets up a Pipeline. Zero values fall back to the inference
// defaults.
type Config struct {
	Splitter        textseg.Splitter // nil means the rule-based splitter
	MaxLength       int              // input token budget
	MaxLengthOutput int              // generated token budget
	Logger          *slog.Logger
}

// Options tunes a single generation call. The zero value reproduces the
// inference defaults: beam width 4, everything in one batch, serial
// encoding, oversized items truncated rather than dropped or raised.
type Options struct {
	// NumBeams is the beam width. Zero means 4.
	NumBeams int
	// BatchSize caps the examples per model call. Zero means a single
	// batch holding everything.
	BatchSize int
	// EncodeWorkers fans encoding out over a worker pool. Values below
	// two encode serially.
	EncodeWorkers int
	// DropOverflow silently drops items whose input or target exceeds
	// the token budget.
	DropOverflow bool
	// FailOnOverflow raises ExceedMaxLengthError for oversized items
	// instead of truncating them at tokenization time.
	FailOnOverflow bool
	// CachePath persists encoded features between calls. A cache file
	// belongs to one input set; two-stage calls must leave it empty.
	CachePath string
}

// QAPair is one generated question with the answer it was generated for.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Pipeline generates questions and answers from passages.
type Pipeline struct {
	tok             tokenizer.Tokenizer
	model           model.Seq2Seq
	splitter        textseg.Splitter
	maxLength       int
	maxLengthOutput int
	logger          *slog.Logger
}

// New builds a Pipeline. The highlight marker is registered with the
// tokenizer here so every encode path sees it as a single token.
func New(tok tokenizer.Tokenizer, m model.Seq2Seq, cfg Config) *Pipeline {
	splitter := cfg.Splitter
	if splitter == nil {
		splitter = textseg.NewRuleSplitter()
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	maxLengthOutput := cfg.MaxLengthOutput
	if maxLengthOutput <= 0 {
		maxLengthOutput = defaultMaxLengthOutput
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tok.AddSpecialTokens([]string{encode.HighlightToken})

	return &Pipeline{
		tok:             tok,
		model:           m,
		splitter:        splitter,
		maxLength:       maxLength,
		maxLengthOutput: maxLengthOutput,
		logger:          logger,
	}
}

// Model returns the backing seq2seq model.
func (p *Pipeline) Model() model.Seq2Seq {
	return p.model
}

// Predict encodes inputs and decodes one generated sequence per input, in
// input order. highlights may be nil, or carry a nil entry for items
// without a highlight; prefix may be nil for prefix-free input.
func (p *Pipeline) Predict(ctx context.Context, inputs []string, highlights []*string, prefix *encode.TaskPrefix, opts Options) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	prefix, err := p.resolvePrefix(prefix)
	if err != nil {
		return nil, err
	}

	enc := &encode.Encoder{
		Tok:               p.tok,
		MaxLength:         p.maxLength,
		MaxLengthOutput:   p.maxLengthOutput,
		Prefix:            prefix,
		DropOverflow:      opts.DropOverflow,
		SkipOverflowError: !opts.FailOnOverflow,
		Pad:               true,
	}
	ds, err := batch.Load(ctx, enc, inputs, nil, highlights, batch.Options{
		Workers:   opts.EncodeWorkers,
		CachePath: opts.CachePath,
	}, p.logger)
	if err != nil {
		return nil, err
	}

	batches, err := ds.Batches(opts.BatchSize, false, false)
	if err != nil {
		return nil, err
	}

	numBeams := opts.NumBeams
	if numBeams <= 0 {
		numBeams = defaultNumBeams
	}

	// Batches go through the model one at a time; outputs keep the
	// encoded order.
	out := make([]string, 0, ds.Len())
	for _, b := range batches {
		ids, err := p.model.Generate(ctx, model.GenerateRequest{
			InputIDs:      b.InputIDs,
			AttentionMask: b.AttentionMask,
			MaxLength:     p.maxLengthOutput,
			NumBeams:      numBeams,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, p.tok.BatchDecode(ids, true)...)
	}
	return out, nil
}

// resolvePrefix checks the requested task prefix against the model variant.
// Prefix-free variants accept a plain question generation request by
// dropping the prefix; any other prefixed task is unsupported on them.
func (p *Pipeline) resolvePrefix(prefix *encode.TaskPrefix) (*encode.TaskPrefix, error) {
	if prefix == nil {
		return nil, nil
	}
	if !prefix.Valid() {
		return nil, fmt.Errorf("unknown task prefix: %s", *prefix)
	}
	if p.model.Type().UsesPrefix() {
		return prefix, nil
	}
	if *prefix == encode.PrefixQG {
		return nil, nil
	}
	return nil, &model.UnsupportedPrefixError{Type: p.model.Type()}
}

// GenerateAnswers extracts answer candidates from a passage, one model
// request per sentence with that sentence highlighted in the full passage.
// Decoded candidates survive only if non-empty and present verbatim in the
// passage. Duplicates are kept. An empty survivor set is an
// AnswerNotFoundError.
func (p *Pipeline) GenerateAnswers(ctx context.Context, passage string, opts Options) ([]string, error) {
	if !p.model.Type().UsesPrefix() {
		return nil, &model.UnsupportedPrefixError{Type: p.model.Type()}
	}

	sentences := p.splitter.Split(passage)
	if len(sentences) == 0 {
		return nil, &AnswerNotFoundError{Context: passage}
	}

	inputs := make([]string, len(sentences))
	highlights := make([]*string, len(sentences))
	for i, sent := range sentences {
		inputs[i] = passage
		// Surrounding whitespace only, so the sentence stays findable
		// verbatim in the passage.
		if s := strings.TrimSpace(sent); s != "" {
			highlights[i] = &s
		}
	}

	prefix := encode.PrefixAnswerExt
	decoded, err := p.Predict(ctx, inputs, highlights, &prefix, opts)
	if err != nil {
		return nil, err
	}

	answers := make([]string, 0, len(decoded))
	for _, a := range decoded {
		a = strings.TrimSpace(a)
		if a == "" || !strings.Contains(passage, a) {
			continue
		}
		answers = append(answers, a)
	}
	if len(answers) == 0 {
		return nil, &AnswerNotFoundError{Context: passage}
	}

	p.logger.Debug("extracted answer candidates",
		"sentences", len(sentences), "answers", len(answers))
	return answers, nil
}

// GenerateQuestions generates one question per passage with the paired
// answer highlighted. answers may be nil when the passages already carry
// highlight markers.
func (p *Pipeline) GenerateQuestions(ctx context.Context, passages []string, answers []*string, opts Options) ([]string, error) {
	prefix := encode.PrefixQG
	return p.Predict(ctx, passages, answers, &prefix, opts)
}

// GenerateQA runs the two-stage flow on a passage: extract answers, then
// generate one question per answer. Pairs keep the answer extraction order.
func (p *Pipeline) GenerateQA(ctx context.Context, passage string, opts Options) ([]QAPair, error) {
	answers, err := p.GenerateAnswers(ctx, passage, opts)
	if err != nil {
		return nil, err
	}

	passages := make([]string, len(answers))
	highlights := make([]*string, len(answers))
	for i := range answers {
		passages[i] = passage
		highlights[i] = &answers[i]
	}

	questions, err := p.GenerateQuestions(ctx, passages, highlights, opts)
	if err != nil {
		return nil, err
	}
	if len(questions) != len(answers) {
		return nil, fmt.Errorf("question count does not match answer count: %d != %d", len(questions), len(answers))
	}

	pairs := make([]QAPair, len(answers))
	for i := range answers {
		pairs[i] = QAPair{Question: questions[i], Answer: answers[i]}
	}
	return pairs, nil
}

// EndToEnd generates questions directly from plain passages, for models
// trained on the end-to-end task.
func (p *Pipeline) EndToEnd(ctx context.Context, passages []string, opts Options) ([]string, error) {
	prefix := encode.PrefixEndToEnd
	return p.Predict(ctx, passages, nil, &prefix, opts)
}

// EncodeToLoss scores a labeled batch. epsilon > 0 applies label smoothing
// over the returned logits; otherwise the backend-reported loss is used.
func (p *Pipeline) EncodeToLoss(ctx context.Context, b *batch.Batch, epsilon float64) (float64, error) {
	if b == nil || len(b.Labels) == 0 {
		return 0, fmt.Errorf("batch carries no labels")
	}

	res, err := p.model.Forward(ctx, model.ForwardRequest{
		InputIDs:      b.InputIDs,
		AttentionMask: b.AttentionMask,
		Labels:        b.Labels,
	})
	if err != nil {
		return 0, err
	}
	if epsilon <= 0 {
		return res.Loss, nil
	}
	return loss.LabelSmoothed(res.Logits, b.Labels, epsilon)
}
