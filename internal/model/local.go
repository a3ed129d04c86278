package model

import (
	"context"
	"math"
	"sort"

	"quizgen/internal/loss"
	"quizgen/internal/tokenizer"
)

// Local is a self-contained seq2seq backend for offline development and
// tests. The next token is scored by a bigram table built from the input row
// itself, so generated text echoes fragments of the input, and decoding runs
// real beam search. Beam width is observable behavior without an inference
// server.
type Local struct {
	tok  tokenizer.Tokenizer
	typ  ModelType
	name string
}

func NewLocal(tok tokenizer.Tokenizer, typ ModelType) *Local {
	return &Local{tok: tok, typ: typ, name: "local-" + string(typ)}
}

func (l *Local) Generate(ctx context.Context, req GenerateRequest) ([][]int, error) {
	numBeams := req.NumBeams
	if numBeams <= 0 {
		numBeams = 1
	}
	maxLength := req.MaxLength
	if maxLength <= 1 {
		maxLength = 2
	}

	out := make([][]int, 0, len(req.InputIDs))
	for i, row := range req.InputIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var mask []int
		if i < len(req.AttentionMask) {
			mask = req.AttentionMask[i]
		}
		table := l.bigramTable(row, mask)
		out = append(out, l.beamSearch(table, maxLength, numBeams))
	}
	return out, nil
}

// bigramTable counts transitions between consecutive unmasked ids, seeded
// with a start transition from the pad id (the decoder start token).
func (l *Local) bigramTable(row, mask []int) map[int]map[int]int {
	live := func(j int) bool {
		return mask == nil || (j < len(mask) && mask[j] == 1)
	}

	table := make(map[int]map[int]int)
	add := func(from, to int) {
		m, ok := table[from]
		if !ok {
			m = make(map[int]int)
			table[from] = m
		}
		m[to]++
	}

	prev := l.tok.PadID()
	for j, id := range row {
		if !live(j) {
			break
		}
		add(prev, id)
		prev = id
	}
	return table
}

type beamState struct {
	ids   []int
	score float64
	done  bool
}

func (b beamState) normScore() float64 {
	n := len(b.ids) - 1 // exclude the start token
	if n < 1 {
		n = 1
	}
	return b.score / float64(n)
}

// beamSearch decodes from the bigram table with numBeams beams. Candidates
// are the observed successors of the last token plus the end-of-sequence id;
// scores are smoothed log-probabilities, compared length-normalized.
func (l *Local) beamSearch(table map[int]map[int]int, maxLength, numBeams int) []int {
	padID := l.tok.PadID()
	eosID := l.tok.EOSID()
	vocab := float64(l.tok.VocabSize())

	logProb := func(from, to int) float64 {
		row := table[from]
		total := 0
		for _, c := range row {
			total += c
		}
		return math.Log(float64(row[to]+1) / (float64(total) + vocab))
	}

	beams := []beamState{{ids: []int{padID}}}
	var finished []beamState

	for step := 1; step < maxLength; step++ {
		var next []beamState
		for _, b := range beams {
			if b.done {
				continue
			}
			last := b.ids[len(b.ids)-1]

			cands := make([]int, 0, len(table[last])+1)
			for id := range table[last] {
				if id != eosID {
					cands = append(cands, id)
				}
			}
			sort.Ints(cands)
			cands = append(cands, eosID)

			for _, id := range cands {
				ids := make([]int, len(b.ids), len(b.ids)+1)
				copy(ids, b.ids)
				ids = append(ids, id)
				next = append(next, beamState{
					ids:   ids,
					score: b.score + logProb(last, id),
					done:  id == eosID,
				})
			}
		}
		if len(next) == 0 {
			break
		}

		sort.SliceStable(next, func(i, j int) bool {
			return next[i].score > next[j].score
		})
		if len(next) > numBeams {
			next = next[:numBeams]
		}

		beams = beams[:0]
		allDone := true
		for _, b := range next {
			if b.done {
				finished = append(finished, b)
			} else {
				beams = append(beams, b)
				allDone = false
			}
		}
		if allDone && len(beams) == 0 {
			break
		}
	}

	best := beamState{score: math.Inf(-1)}
	hasBest := false
	for _, b := range finished {
		if !hasBest || b.normScore() > best.normScore() {
			best = b
			hasBest = true
		}
	}
	if !hasBest {
		for _, b := range beams {
			if !hasBest || b.normScore() > best.normScore() {
				best = b
				hasBest = true
			}
		}
	}
	if !hasBest {
		return []int{padID, eosID}
	}
	if !best.done {
		if len(best.ids) >= maxLength {
			best.ids[len(best.ids)-1] = eosID
		} else {
			best.ids = append(best.ids, eosID)
		}
	}
	return best.ids
}

// Forward scores a teacher-forced batch with the same bigram tables. Logits
// are smoothed transition counts over the full vocabulary.
func (l *Local) Forward(ctx context.Context, req ForwardRequest) (*ForwardResult, error) {
	padID := l.tok.PadID()
	vocabSize := l.tok.VocabSize()

	logits := make([][][]float64, len(req.Labels))
	for i, labels := range req.Labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var mask []int
		if i < len(req.AttentionMask) {
			mask = req.AttentionMask[i]
		}
		var row []int
		if i < len(req.InputIDs) {
			row = req.InputIDs[i]
		}
		table := l.bigramTable(row, mask)

		rows := make([][]float64, len(labels))
		prev := padID
		for t, label := range labels {
			scores := make([]float64, vocabSize)
			for v := 0; v < vocabSize; v++ {
				scores[v] = math.Log(float64(table[prev][v] + 1))
			}
			rows[t] = scores
			if label >= 0 {
				prev = label
			} else {
				prev = padID
			}
		}
		logits[i] = rows
	}

	nll, err := loss.LabelSmoothed(logits, req.Labels, 0)
	if err != nil {
		return nil, err
	}
	return &ForwardResult{Loss: nll, Logits: logits}, nil
}

func (l *Local) Type() ModelType {
	return l.typ
}

func (l *Local) Name() string {
	return l.name
}
