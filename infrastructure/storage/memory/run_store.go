// Package memory provides in-memory implementations of storage interfaces.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// RunStore is an in-memory implementation of run.Store. Records are kept
// as JSON so callers never share memory with the store.
type RunStore struct {
	runs map[string][]byte
	mu   sync.RWMutex
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string][]byte),
	}
}

// Save persists a new run.
func (s *RunStore) Save(ctx context.Context, rec *run.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[rec.ID]; exists {
		return run.ErrRunExists
	}
	s.runs[rec.ID] = data
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (*run.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, run.ErrInvalidRunID
	}

	s.mu.RLock()
	data, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, run.ErrRunNotFound
	}
	return decode(data)
}

// Update updates an existing run.
func (s *RunStore) Update(ctx context.Context, rec *run.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[rec.ID]; !exists {
		return run.ErrRunNotFound
	}
	s.runs[rec.ID] = data
	return nil
}

// Delete removes a run by ID.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return run.ErrInvalidRunID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; !exists {
		return run.ErrRunNotFound
	}
	delete(s.runs, id)
	return nil
}

// List returns runs matching the filter.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(all), nil
}

// Count returns the number of runs matching the filter.
func (s *RunStore) Count(ctx context.Context, filter run.ListFilter) (int64, error) {
	all, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range all {
		if filter.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Summary returns aggregate statistics.
func (s *RunStore) Summary(ctx context.Context, filter run.ListFilter) (run.Summary, error) {
	filter.Limit, filter.Offset = 0, 0
	records, err := s.List(ctx, filter)
	if err != nil {
		return run.Summary{}, err
	}
	return run.Summarize(records), nil
}

func (s *RunStore) all(ctx context.Context) ([]*run.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*run.Record, 0, len(s.runs))
	for _, data := range s.runs {
		r, err := decode(data)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func decode(data []byte) (*run.Record, error) {
	var r run.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

var (
	_ run.Store           = (*RunStore)(nil)
	_ run.SummaryProvider = (*RunStore)(nil)
)
