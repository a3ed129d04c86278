package model

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedReply is one canned Generate result.
type ScriptedReply struct {
	Output [][]int
	Err    error
}

// Scripted is a deterministic Seq2Seq for tests. It returns canned replies
// in FIFO order, one per Generate call, and records every request.
type Scripted struct {
	mu      sync.Mutex
	typ     ModelType
	replies []ScriptedReply

	forwardResult *ForwardResult
	forwardErr    error

	GenerateCalls []GenerateRequest
	ForwardCalls  []ForwardRequest
}

func NewScripted(typ ModelType, replies ...ScriptedReply) *Scripted {
	return &Scripted{typ: typ, replies: replies}
}

// AddReply appends a canned reply to the queue.
func (s *Scripted) AddReply(r ScriptedReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
}

// SetForward fixes the result of every Forward call.
func (s *Scripted) SetForward(res *ForwardResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwardResult = res
	s.forwardErr = err
}

func (s *Scripted) Generate(_ context.Context, req GenerateRequest) ([][]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.GenerateCalls = append(s.GenerateCalls, req)

	if len(s.replies) == 0 {
		return nil, fmt.Errorf("scripted model: no reply queued for call %d", len(s.GenerateCalls))
	}
	r := s.replies[0]
	s.replies = s.replies[1:]

	if r.Err != nil {
		return nil, r.Err
	}
	return r.Output, nil
}

func (s *Scripted) Forward(_ context.Context, req ForwardRequest) (*ForwardResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ForwardCalls = append(s.ForwardCalls, req)

	if s.forwardErr != nil {
		return nil, s.forwardErr
	}
	if s.forwardResult != nil {
		return s.forwardResult, nil
	}
	return &ForwardResult{}, nil
}

func (s *Scripted) Type() ModelType {
	return s.typ
}

func (s *Scripted) Name() string {
	return "scripted"
}

// CallCount returns the number of Generate calls made.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.GenerateCalls)
}
