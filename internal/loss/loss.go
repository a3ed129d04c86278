// Package loss implements the label-smoothed negative log-likelihood used to
// score teacher-forced batches.
package loss

import (
	"fmt"
	"math"
)

// IgnoreIndex marks label positions excluded from the loss.
const IgnoreIndex = -100

// LabelSmoothed computes label-smoothed NLL over a batch of logits with
// shape batch x target length x vocab. Positions labeled IgnoreIndex
// contribute nothing to either term. epsilon 0 reduces exactly to the mean
// NLL over active positions.
func LabelSmoothed(logits [][][]float64, labels [][]int, epsilon float64) (float64, error) {
	if len(logits) != len(labels) {
		return 0, fmt.Errorf("batch size mismatch: %d logit rows, %d label rows", len(logits), len(labels))
	}

	var nllSum, smoothSum float64
	active := 0
	vocab := 0

	for i := range logits {
		if len(labels[i]) > len(logits[i]) {
			return 0, fmt.Errorf("row %d: %d labels for %d logit positions", i, len(labels[i]), len(logits[i]))
		}
		for t, label := range labels[i] {
			row := logits[i][t]
			if vocab == 0 {
				vocab = len(row)
			} else if len(row) != vocab {
				return 0, fmt.Errorf("row %d position %d: vocab size %d, expected %d", i, t, len(row), vocab)
			}
			if label == IgnoreIndex {
				continue
			}
			if label < 0 || label >= len(row) {
				return 0, fmt.Errorf("row %d position %d: label %d outside vocab of %d", i, t, label, len(row))
			}

			// Stable log-softmax: subtract the row max before exponentiating.
			max := row[0]
			for _, x := range row[1:] {
				if x > max {
					max = x
				}
			}
			var sumExp float64
			for _, x := range row {
				sumExp += math.Exp(x - max)
			}
			logZ := max + math.Log(sumExp)

			nllSum += logZ - row[label]
			for _, x := range row {
				smoothSum += logZ - x
			}
			active++
		}
	}

	if active == 0 || vocab == 0 {
		return 0, nil
	}

	nll := nllSum / float64(active)
	smooth := smoothSum / float64(active*vocab)
	return (1-epsilon)*nll + epsilon*smooth, nil
}
