package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quizgen/internal/qg"
	"quizgen/internal/source"
	"quizgen/internal/store"
	"quizgen/internal/textseg"
)

// Worker processes a single document job.
type Worker struct {
	gen    *qg.Pipeline
	events *store.Store
	log    *slog.Logger

	passageCfg  textseg.PassageConfig
	genOpts     qg.Options
	pdfFallback bool
}

func NewWorker(gen *qg.Pipeline, events *store.Store, log *slog.Logger, passageCfg textseg.PassageConfig, genOpts qg.Options, pdfFallback bool) *Worker {
	return &Worker{
		gen:         gen,
		events:      events,
		log:         log,
		passageCfg:  passageCfg,
		genOpts:     genOpts,
		pdfFallback: pdfFallback,
	}
}

// Process runs the full document-to-quiz pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	start := time.Now()

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := source.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if pp, ok := p.(*source.PDFParser); ok {
		pp.FallbackPdftotext = w.pdfFallback
	}

	doc, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if job.Title == "" && doc.Title != "" {
		job.SetTitle(doc.Title)
	}
	job.SetContentHash(ContentHashHex([]byte(strings.Join(doc.Passages, "\n"))))

	// Phase 2: Segment into passages that fit the input budget.
	job.SetStatus(StatusSegmenting, "segmenting")
	var passages []string
	for _, raw := range doc.Passages {
		passages = append(passages, textseg.SplitPassages(raw, w.passageCfg)...)
	}
	job.SetTotalPassages(len(passages))
	log.Info("segmented document", "passages", len(passages))

	if len(passages) == 0 {
		log.Warn("no passages produced")
		job.AddError("no extractable text")
		job.SetStatus(StatusFailed, "segmenting")
		return
	}

	// Phase 3: Generate pairs passage by passage. The model is one
	// device-bound resource, so passages run sequentially.
	job.SetStatus(StatusGenerating, "generating")
	totalChars := 0
	pairCount := 0
	hadErrors := false
	firstErr := ""
	for i, passage := range passages {
		totalChars += len(passage)
		pairs, err := w.generatePassage(ctx, passage)
		job.IncrPassagesProcessed()
		if err != nil {
			if ctx.Err() != nil {
				job.AddError(ctx.Err().Error())
				job.SetStatus(StatusFailed, "generating")
				return
			}
			log.Warn("passage generation failed", "passage", i, "error", err)
			job.AddError(fmt.Sprintf("passage %d: %s", i, err))
			if firstErr == "" {
				firstErr = err.Error()
			}
			hadErrors = true
			continue
		}
		pairCount += len(pairs)
		job.AddPairs(pairs)
	}
	log.Info("generation complete", "pairs", pairCount, "errors", hadErrors)

	final := StatusCompleted
	if hadErrors && pairCount > 0 {
		final = StatusPartial
	} else if hadErrors {
		final = StatusFailed
	}

	// Phase 4: Record the run.
	ev := store.Event{
		Kind:         "document",
		Source:       job.Filename,
		PassageChars: totalChars,
		NumBeams:     w.genOpts.NumBeams,
		PairCount:    pairCount,
		LatencyMS:    time.Since(start).Milliseconds(),
		OK:           final != StatusFailed,
		Error:        firstErr,
	}
	if err := w.events.Append(ctx, ev); err != nil {
		log.Error("event append failed", "error", err)
	}

	phase := "done"
	if final == StatusFailed {
		phase = "generating"
	}
	job.SetStatus(final, phase)
}

// generatePassage runs two-stage generation, retrying transient model
// failures with backoff.
func (w *Worker) generatePassage(ctx context.Context, passage string) ([]qg.QAPair, error) {
	var pairs []qg.QAPair
	var lastErr error
	for attempt := range MaxRetries {
		pairs, lastErr = w.gen.GenerateQA(ctx, passage, w.genOpts)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
		w.log.Warn("retryable generation error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return pairs, nil
}
