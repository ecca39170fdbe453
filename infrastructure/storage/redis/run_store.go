package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// RunStore is a Redis-backed implementation of run.Store. Each record is a
// JSON string; a sorted set scored by start time indexes them.
type RunStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRunStore connects to Redis and verifies the connection.
func NewRunStore(cfg Config) (*RunStore, error) {
	client := redis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(run.ErrConnectionFailed, err)
	}

	return NewRunStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRunStoreFromClient creates a store from an existing client.
func NewRunStoreFromClient(client *redis.Client, keyPrefix string) *RunStore {
	return &RunStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RunStore) runKey(id string) string {
	return s.keyPrefix + "run:" + id
}

func (s *RunStore) indexKey() string {
	return s.keyPrefix + "runs"
}

// Save persists a new run.
func (s *RunStore) Save(ctx context.Context, rec *run.Record) error {
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.runKey(rec.ID), data, 0).Result()
	if err != nil {
		return s.wrapError(err)
	}
	if !ok {
		return run.ErrRunExists
	}

	score := float64(rec.StartTime.UnixNano())
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: rec.ID}).Err(); err != nil {
		return s.wrapError(err)
	}
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (*run.Record, error) {
	if id == "" {
		return nil, run.ErrInvalidRunID
	}

	data, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, run.ErrRunNotFound
		}
		return nil, s.wrapError(err)
	}

	var r run.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

// Update updates an existing run.
func (s *RunStore) Update(ctx context.Context, rec *run.Record) error {
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	ok, err := s.client.SetXX(ctx, s.runKey(rec.ID), data, 0).Result()
	if err != nil {
		return s.wrapError(err)
	}
	if !ok {
		return run.ErrRunNotFound
	}
	return nil
}

// Delete removes a run by ID.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return run.ErrInvalidRunID
	}

	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.runKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return s.wrapError(err)
	}
	if del.Val() == 0 {
		return run.ErrRunNotFound
	}
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

// all loads every indexed record. Index entries whose record has expired
// or been removed out of band are skipped.
func (s *RunStore) all(ctx context.Context) ([]*run.Record, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, s.wrapError(err)
	}
	if len(ids) == 0 {
		return []*run.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.wrapError(err)
	}

	records := make([]*run.Record, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r run.Record
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			continue
		}
		records = append(records, &r)
	}
	return records, nil
}

// Close closes the client.
func (s *RunStore) Close() error {
	return s.client.Close()
}

func (s *RunStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(run.ErrOperationTimeout, err)
	}
	return errors.Join(run.ErrConnectionFailed, err)
}

var _ run.Store = (*RunStore)(nil)
