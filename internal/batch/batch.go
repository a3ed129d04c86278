// Package batch turns raw text items into model-ready feature batches. It
// encodes items through a configured encoder, optionally fanning the work out
// over a worker pool, caches encoded features on disk, and serves the result
// as collated batches.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"quizgen/internal/encode"
)

// Options controls loading and batching.
type Options struct {
	// BatchSize is the number of examples per batch. Zero or negative
	// means the whole dataset as a single batch.
	BatchSize int
	// Workers is the number of parallel encoding goroutines. Values
	// below two encode serially.
	Workers int
	Shuffle bool
	// DropLast discards a trailing batch smaller than BatchSize.
	DropLast bool
	// CachePath, when set, is a JSON file the encoded features are read
	// from when present and written to after encoding. A cached load
	// skips encoding entirely.
	CachePath string
}

// Load encodes inputs into a Dataset. targets must be nil or match inputs in
// length; highlights likewise, with nil entries meaning no highlight for
// that item. Items dropped by the encoder's suppression flags are filtered
// out. Encoded feature order always follows input order, regardless of the
// worker count.
func Load(ctx context.Context, enc *encode.Encoder, inputs, targets []string, highlights []*string, opts Options, logger *slog.Logger) (*Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if targets != nil && len(targets) != len(inputs) {
		return nil, fmt.Errorf("target count does not match input count: %d != %d", len(targets), len(inputs))
	}
	if highlights != nil && len(highlights) != len(inputs) {
		return nil, fmt.Errorf("highlight count does not match input count: %d != %d", len(highlights), len(inputs))
	}

	if opts.CachePath != "" {
		examples, err := loadCache(opts.CachePath)
		switch {
		case err == nil:
			logger.Info("loaded cached features", "path", opts.CachePath, "examples", len(examples))
			return &Dataset{examples: examples}, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	// A single item is encoded without padding.
	if len(inputs) == 1 && enc.Pad {
		unpadded := *enc
		unpadded.Pad = false
		enc = &unpadded
	}

	var encoded []*encode.Example
	var err error
	if opts.Workers > 1 {
		encoded, err = encodeParallel(ctx, enc, inputs, targets, highlights, opts.Workers)
	} else {
		encoded, err = encodeSerial(ctx, enc, inputs, targets, highlights)
	}
	if err != nil {
		return nil, err
	}

	kept := make([]encode.Example, 0, len(encoded))
	for _, ex := range encoded {
		if ex != nil {
			kept = append(kept, *ex)
		}
	}
	if len(kept) < len(encoded) {
		logger.Info("dropped examples during encoding", "before", len(encoded), "after", len(kept))
	}

	if opts.CachePath != "" {
		if err := storeCache(opts.CachePath, kept); err != nil {
			return nil, err
		}
		logger.Info("cached features", "path", opts.CachePath, "examples", len(kept))
	}

	return &Dataset{examples: kept}, nil
}

func encodeSerial(ctx context.Context, enc *encode.Encoder, inputs, targets []string, highlights []*string) ([]*encode.Example, error) {
	out := make([]*encode.Example, 0, len(inputs))
	for i := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ex, err := enc.EncodeItem(inputs[i], targetAt(targets, i), highlightAt(highlights, i))
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

// encodeParallel fans items out to a fixed pool of workers. Every result is
// written into the slot of its submission index, so output order matches
// input order whatever order the workers finish in.
func encodeParallel(ctx context.Context, enc *encode.Encoder, inputs, targets []string, highlights []*string, workers int) ([]*encode.Example, error) {
	results := make([]*encode.Example, len(inputs))
	errs := make([]error, len(inputs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	var failed atomic.Bool

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				ex, err := enc.EncodeItem(inputs[i], targetAt(targets, i), highlightAt(highlights, i))
				results[i] = ex
				if err != nil {
					errs[i] = err
					failed.Store(true)
				}
			}
		}()
	}

submit:
	for i := range inputs {
		if failed.Load() {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break submit
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func targetAt(targets []string, i int) *string {
	if targets == nil {
		return nil
	}
	return &targets[i]
}

func highlightAt(highlights []*string, i int) *string {
	if highlights == nil {
		return nil
	}
	return highlights[i]
}

func loadCache(path string) ([]encode.Example, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var examples []encode.Example
	if err := json.Unmarshal(raw, &examples); err != nil {
		return nil, fmt.Errorf("decode feature cache %s: %w", path, err)
	}
	return examples, nil
}

func storeCache(path string, examples []encode.Example) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	raw, err := json.Marshal(examples)
	if err != nil {
		return fmt.Errorf("encode feature cache: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write feature cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write feature cache: %w", err)
	}
	return nil
}
