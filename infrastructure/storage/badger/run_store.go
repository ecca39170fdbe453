package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// RunStore is a BadgerDB-backed implementation of run.Store.
// Key format: prefix + "run:" + id.
type RunStore struct {
	db        *badger.DB
	keyPrefix string
	ownsDB    bool

	gcStop chan struct{}
	gcWg   sync.WaitGroup
	once   sync.Once
}

// NewRunStore opens a database and creates a run store on it.
func NewRunStore(cfg Config) (*RunStore, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &RunStore{
		db:        db,
		keyPrefix: cfg.KeyPrefix,
		ownsDB:    true,
		gcStop:    make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory() {
		s.startGC(cfg.GCInterval, 0.5)
	}
	return s, nil
}

// NewRunStoreFromDB creates a run store on an existing database. Close does
// not close db.
func NewRunStoreFromDB(db *badger.DB, keyPrefix string) *RunStore {
	return &RunStore{
		db:        db,
		keyPrefix: keyPrefix,
		gcStop:    make(chan struct{}),
	}
}

func (s *RunStore) startGC(interval time.Duration, discardRatio float64) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
				for s.db.RunValueLogGC(discardRatio) == nil {
				}
			}
		}
	}()
}

func (s *RunStore) prefix() []byte {
	return []byte(s.keyPrefix + "run:")
}

func (s *RunStore) runKey(id string) []byte {
	return append(s.prefix(), id...)
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
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := s.runKey(rec.ID)
		if _, err := txn.Get(key); err == nil {
			return run.ErrRunExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (*run.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, run.ErrInvalidRunID
	}

	var r run.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.runKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return run.ErrRunNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
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
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := s.runKey(rec.ID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return run.ErrRunNotFound
			}
			return err
		}
		return txn.Set(key, data)
	})
}

// Delete removes a run by ID.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return run.ErrInvalidRunID
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := s.runKey(id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return run.ErrRunNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// List returns runs matching the filter.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	all, err := s.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return filter.Apply(all), nil
}

// Count returns the number of runs matching the filter.
func (s *RunStore) Count(ctx context.Context, filter run.ListFilter) (int64, error) {
	matched, err := s.scan(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Summary returns aggregate statistics.
func (s *RunStore) Summary(ctx context.Context, filter run.ListFilter) (run.Summary, error) {
	matched, err := s.scan(ctx, filter)
	if err != nil {
		return run.Summary{}, err
	}
	return run.Summarize(matched), nil
}

// scan iterates the run prefix and keeps records matching the filter.
func (s *RunStore) scan(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := []*run.Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.prefix()

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r run.Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				continue // Skip malformed entries
			}
			if filter.Matches(&r) {
				records = append(records, &r)
			}
		}
		return nil
	})
	return records, err
}

// Close stops GC and closes the database if the store opened it.
func (s *RunStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()
		if s.ownsDB {
			err = s.db.Close()
		}
	})
	return err
}

var (
	_ run.Store           = (*RunStore)(nil)
	_ run.SummaryProvider = (*RunStore)(nil)
)
