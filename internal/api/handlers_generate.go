package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"quizgen/internal/cache"
	"quizgen/internal/encode"
	"quizgen/internal/model"
	"quizgen/internal/qg"
	"quizgen/internal/store"
)

type generationRequest struct {
	InputText string `json:"input_text"`
	Highlight string `json:"highlight,omitempty"`
	NumBeams  int    `json:"num_beams,omitempty"`
}

type generationResponse struct {
	QA []qg.QAPair `json:"qa"`
}

func (s *Server) handleQuestionGeneration(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.InputText) == "" {
		jsonError(w, "Input text is empty string.", http.StatusBadRequest)
		return
	}

	numBeams := req.NumBeams
	if numBeams <= 0 {
		numBeams = s.cfg.NumBeams
	}
	opts := qg.Options{
		NumBeams:      numBeams,
		EncodeWorkers: s.cfg.EncodeWorkers,
	}

	start := time.Now()
	var pairs []qg.QAPair
	var err error

	if req.Highlight != "" {
		// Single-question mode: the caller supplies the answer span.
		var questions []string
		questions, err = s.gen.GenerateQuestions(r.Context(),
			[]string{req.InputText}, []*string{&req.Highlight}, opts)
		if err == nil {
			pairs = make([]qg.QAPair, len(questions))
			for i, q := range questions {
				pairs[i] = qg.QAPair{Question: q, Answer: req.Highlight}
			}
		}
	} else {
		key := cache.Key(s.gen.Model().Name(), numBeams, req.InputText)
		if cached, ok := s.results.Lookup(key); ok {
			pairs = cached
		} else {
			pairs, err = s.gen.GenerateQA(r.Context(), req.InputText, opts)
			if err == nil {
				s.results.Store(key, pairs)
			}
		}
	}

	latency := time.Since(start).Milliseconds()
	s.stats.Record(latency)

	ev := store.Event{
		Kind:         "sync",
		Source:       "question_generation",
		PassageChars: len(req.InputText),
		NumBeams:     numBeams,
		PairCount:    len(pairs),
		LatencyMS:    latency,
		OK:           err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if appendErr := s.events.Append(r.Context(), ev); appendErr != nil {
		s.log.Error("event append failed", "error", appendErr)
	}

	if err != nil {
		status, msg := mapGenerationError(err)
		if status == http.StatusInternalServerError {
			s.log.Error("generation failed", "error", err)
		}
		jsonError(w, msg, status)
		return
	}

	if pairs == nil {
		pairs = []qg.QAPair{}
	}
	writeJSON(w, http.StatusOK, generationResponse{QA: pairs})
}

// handleQuestionGenerationDummy returns canned pairs so frontends can be
// exercised without a model behind the service.
func (s *Server) handleQuestionGenerationDummy(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.InputText) == "" {
		jsonError(w, "Input text is empty string.", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, generationResponse{QA: []qg.QAPair{
		{Question: "What is the capital city of Japan?", Answer: "Tokyo"},
		{Question: "Which city hosts the national government of Japan?", Answer: "Tokyo"},
	}})
}

// mapGenerationError translates pipeline failures into HTTP responses.
// Input-shape problems are the caller's fault; everything else stays
// opaque to the client.
func mapGenerationError(err error) (int, string) {
	var hlErr *encode.HighlightNotFoundError
	var lenErr *encode.ExceedMaxLengthError
	var ansErr *qg.AnswerNotFoundError
	var prefixErr *model.UnsupportedPrefixError
	switch {
	case errors.As(err, &hlErr),
		errors.As(err, &lenErr),
		errors.As(err, &ansErr),
		errors.As(err, &prefixErr):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}
