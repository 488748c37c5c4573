package llm

import (
	"context"
	"sync"

	"github.com/virtualpytest/pilot/pkg/core"
)

// ScriptEntry is one scripted completion outcome: either Text or Err.
type ScriptEntry struct {
	Text string
	Err  error
}

// Scripted replays completions in order and records every request it saw.
// Planner and end-to-end tests drive the pipeline with it; production code
// never constructs one.
type Scripted struct {
	mu       sync.Mutex
	script   []ScriptEntry
	index    int
	requests []Request
}

// NewScripted builds a scripted client preloaded with entries.
func NewScripted(entries ...ScriptEntry) *Scripted {
	return &Scripted{script: entries}
}

// Add appends an entry to the script.
func (s *Scripted) Add(entry ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, entry)
}

// Complete implements Client by consuming the next script entry.
func (s *Scripted) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.index >= len(s.script) {
		return Response{}, core.Errf(core.KindInternal, "llm script exhausted after %d calls", s.index)
	}
	entry := s.script[s.index]
	s.index++

	if entry.Err != nil {
		return Response{}, entry.Err
	}
	return Response{Text: entry.Text}, nil
}

// Requests returns a copy of every request seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls reports how many completions were consumed.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
