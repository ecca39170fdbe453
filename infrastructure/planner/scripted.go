package planner

import (
	"context"
	"sync"
)

// ScriptedDecisionMaker replays a fixed list of replies, one per turn.
// It is used for dry runs, demos and tests.
type ScriptedDecisionMaker struct {
	mu       sync.Mutex
	replies  []string
	index    int
	fallback string
	prompts  []Prompt
}

// NewScriptedDecisionMaker creates a decision-maker that returns replies in
// order and then answers "done" forever.
func NewScriptedDecisionMaker(replies ...string) *ScriptedDecisionMaker {
	return &ScriptedDecisionMaker{
		replies:  replies,
		fallback: `{"action_id": "done", "reason": "script exhausted"}`,
	}
}

// WithFallback sets the reply used once the script is exhausted.
func (s *ScriptedDecisionMaker) WithFallback(reply string) *ScriptedDecisionMaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = reply
	return s
}

// Decide implements DecisionMaker.
func (s *ScriptedDecisionMaker) Decide(_ context.Context, p Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, p)
	if s.index >= len(s.replies) {
		return s.fallback, nil
	}
	reply := s.replies[s.index]
	s.index++
	return reply, nil
}

// Prompts returns the prompts seen so far.
func (s *ScriptedDecisionMaker) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Prompt, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Reset rewinds the script.
func (s *ScriptedDecisionMaker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
	s.prompts = nil
}
