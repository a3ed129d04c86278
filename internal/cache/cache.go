// Package cache memoizes full-passage generation results so repeated
// requests skip the model round trip.
package cache

import (
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"quizgen/internal/qg"
)

// Results is an LRU cache of question-answer pairs keyed by model, beam
// width, and passage text. A nil *Results disables caching.
type Results struct {
	lru *lru.Cache[string, []qg.QAPair]
}

// New creates a cache holding up to size entries. Size 0 or negative
// returns nil, which disables caching.
func New(size int) (*Results, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, []qg.QAPair](size)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Results{lru: c}, nil
}

// Key derives the cache key for one generation request. Beam width is part
// of the key because it changes the decoded output.
func Key(modelName string, numBeams int, passage string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", modelName, numBeams, passage))
	return fmt.Sprintf("%x", h[:])
}

// Lookup returns the cached pairs for key, if present.
func (r *Results) Lookup(key string) ([]qg.QAPair, bool) {
	if r == nil {
		return nil, false
	}
	return r.lru.Get(key)
}

// Store saves pairs under key.
func (r *Results) Store(key string, pairs []qg.QAPair) {
	if r == nil {
		return
	}
	r.lru.Add(key, pairs)
}

// Len reports the number of cached entries.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return r.lru.Len()
}
