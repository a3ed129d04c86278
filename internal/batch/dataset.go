package batch

import (
	"fmt"
	"math/rand/v2"

	"quizgen/internal/encode"
)

// Batch is a columnar view over collated examples. Labels is nil when the
// batch carries no target sequences.
type Batch struct {
	InputIDs      [][]int
	AttentionMask [][]int
	Labels        [][]int
}

// Size returns the number of rows in the batch.
func (b *Batch) Size() int {
	return len(b.InputIDs)
}

// Dataset holds the encoded examples that survived loading.
type Dataset struct {
	examples []encode.Example
}

// NewDataset wraps already-encoded examples.
func NewDataset(examples []encode.Example) *Dataset {
	return &Dataset{examples: examples}
}

func (d *Dataset) Len() int {
	return len(d.examples)
}

// Examples returns the underlying example slice in load order.
func (d *Dataset) Examples() []encode.Example {
	return d.examples
}

// Batches splits the dataset into collated batches. batchSize zero or
// negative yields a single batch with everything; shuffle permutes example
// order first; dropLast discards a trailing batch smaller than batchSize.
func (d *Dataset) Batches(batchSize int, shuffle, dropLast bool) ([]*Batch, error) {
	if len(d.examples) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(d.examples)
	}

	idx := make([]int, len(d.examples))
	for i := range idx {
		idx[i] = i
	}
	if shuffle {
		rand.Shuffle(len(idx), func(i, j int) {
			idx[i], idx[j] = idx[j], idx[i]
		})
	}

	var batches []*Batch
	for start := 0; start < len(idx); start += batchSize {
		end := min(start+batchSize, len(idx))
		if end-start < batchSize && dropLast {
			break
		}
		chunk := make([]encode.Example, 0, end-start)
		for _, j := range idx[start:end] {
			chunk = append(chunk, d.examples[j])
		}
		b, err := Collate(chunk)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// Collate stacks examples into a columnar batch. All rows must share the
// input length, masks must match their rows, and label presence must be
// uniform across the batch.
func Collate(examples []encode.Example) (*Batch, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("collate: empty batch")
	}

	first := examples[0]
	hasLabels := first.Labels != nil
	for _, ex := range examples {
		if len(ex.InputIDs) != len(first.InputIDs) {
			return nil, fmt.Errorf("collate: ragged input lengths: %d vs %d", len(ex.InputIDs), len(first.InputIDs))
		}
		if len(ex.AttentionMask) != len(ex.InputIDs) {
			return nil, fmt.Errorf("collate: attention mask length %d does not match input length %d", len(ex.AttentionMask), len(ex.InputIDs))
		}
		if (ex.Labels != nil) != hasLabels {
			return nil, fmt.Errorf("collate: mixed labeled and unlabeled examples in one batch")
		}
		if hasLabels && len(ex.Labels) != len(first.Labels) {
			return nil, fmt.Errorf("collate: ragged label lengths: %d vs %d", len(ex.Labels), len(first.Labels))
		}
	}

	b := &Batch{
		InputIDs:      make([][]int, 0, len(examples)),
		AttentionMask: make([][]int, 0, len(examples)),
	}
	if hasLabels {
		b.Labels = make([][]int, 0, len(examples))
	}
	for _, ex := range examples {
		b.InputIDs = append(b.InputIDs, ex.InputIDs)
		b.AttentionMask = append(b.AttentionMask, ex.AttentionMask)
		if hasLabels {
			b.Labels = append(b.Labels, ex.Labels)
		}
	}
	return b, nil
}
