package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// runDocument keeps the queryable fields beside the JSON-encoded record.
type runDocument struct {
	ID        string     `bson:"_id"`
	Target    string     `bson:"target"`
	GoalID    string     `bson:"goal_id"`
	Status    string     `bson:"status"`
	StartTime time.Time  `bson:"start_time"`
	EndTime   *time.Time `bson:"end_time,omitempty"`
	Data      string     `bson:"data"`
}

// RunStore is a MongoDB-backed implementation of run.Store.
type RunStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewRunStore creates a new MongoDB run store.
func NewRunStore(client *Client, collectionName string) *RunStore {
	if collectionName == "" {
		collectionName = "scan_runs"
	}
	return &RunStore{
		collection:   client.Collection(collectionName),
		queryTimeout: client.config.QueryTimeout,
	}
}

// EnsureIndexes creates the secondary indexes used by List.
func (s *RunStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "target", Value: 1}}},
		{Keys: bson.D{{Key: "start_time", Value: 1}}},
	})
	return s.wrapError(err)
}

// Save persists a new run.
func (s *RunStore) Save(ctx context.Context, rec *run.Record) error {
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	doc, err := toDocument(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return run.ErrRunExists
		}
		return s.wrapError(err)
	}
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (*run.Record, error) {
	if id == "" {
		return nil, run.ErrInvalidRunID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc runDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, run.ErrRunNotFound
		}
		return nil, s.wrapError(err)
	}
	return fromDocument(&doc)
}

// Update updates an existing run.
func (s *RunStore) Update(ctx context.Context, rec *run.Record) error {
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	doc, err := toDocument(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc)
	if err != nil {
		return s.wrapError(err)
	}
	if result.MatchedCount == 0 {
		return run.ErrRunNotFound
	}
	return nil
}

// Delete removes a run by ID.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return run.ErrInvalidRunID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return s.wrapError(err)
	}
	if result.DeletedCount == 0 {
		return run.ErrRunNotFound
	}
	return nil
}

// List returns runs matching the filter.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cursor, err := s.collection.Find(ctx, buildFilter(filter), buildFindOptions(filter))
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	records := []*run.Record{}
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, s.wrapError(err)
		}
		r, err := fromDocument(&doc)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := cursor.Err(); err != nil {
		return nil, s.wrapError(err)
	}
	return records, nil
}

// Count returns the number of runs matching the filter.
func (s *RunStore) Count(ctx context.Context, filter run.ListFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	count, err := s.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, s.wrapError(err)
	}
	return count, nil
}

func countStatus(status run.Status) bson.D {
	return bson.D{{Key: "$sum", Value: bson.D{
		{Key: "$cond", Value: bson.A{bson.D{{Key: "$eq", Value: bson.A{"$status", string(status)}}}, 1, 0}},
	}}}
}

// Summary returns aggregate statistics.
func (s *RunStore) Summary(ctx context.Context, filter run.ListFilter) (run.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: buildFilter(filter)}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "done", Value: countStatus(run.StatusDone)},
			{Key: "budget", Value: countStatus(run.StatusBudget)},
			{Key: "failed", Value: countStatus(run.StatusError)},
			{Key: "running", Value: countStatus(run.StatusRunning)},
			{Key: "avg_duration", Value: bson.D{{Key: "$avg", Value: bson.D{
				{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$gt", Value: bson.A{"$end_time", nil}}},
					bson.D{{Key: "$subtract", Value: bson.A{"$end_time", "$start_time"}}},
					nil,
				}},
			}}}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return run.Summary{}, s.wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var summary run.Summary
	if cursor.Next(ctx) {
		var result struct {
			Total       int64   `bson:"total"`
			Done        int64   `bson:"done"`
			Budget      int64   `bson:"budget"`
			Failed      int64   `bson:"failed"`
			Running     int64   `bson:"running"`
			AvgDuration float64 `bson:"avg_duration"`
		}
		if err := cursor.Decode(&result); err != nil {
			return run.Summary{}, s.wrapError(err)
		}

		summary.TotalRuns = result.Total
		summary.DoneRuns = result.Done
		summary.BudgetRuns = result.Budget
		summary.FailedRuns = result.Failed
		summary.RunningRuns = result.Running
		// $subtract on dates yields milliseconds.
		summary.AverageDuration = time.Duration(result.AvgDuration * float64(time.Millisecond))
	}
	return summary, nil
}

func buildFilter(filter run.ListFilter) bson.M {
	m := bson.M{}

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		m["status"] = bson.M{"$in": statuses}
	}
	if filter.Target != "" {
		m["target"] = filter.Target
	}
	if filter.GoalID != "" {
		m["goal_id"] = filter.GoalID
	}

	window := bson.M{}
	if !filter.FromTime.IsZero() {
		window["$gte"] = filter.FromTime
	}
	if !filter.ToTime.IsZero() {
		window["$lt"] = filter.ToTime
	}
	if len(window) > 0 {
		m["start_time"] = window
	}
	return m
}

func buildFindOptions(filter run.ListFilter) *options.FindOptions {
	opts := options.Find()

	sortField := "start_time"
	switch filter.OrderBy {
	case run.OrderByEndTime:
		sortField = "end_time"
	case run.OrderByID:
		sortField = "_id"
	case run.OrderByStatus:
		sortField = "status"
	}

	sortDir := 1
	if filter.Descending {
		sortDir = -1
	}
	opts.SetSort(bson.D{{Key: sortField, Value: sortDir}})

	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	return opts
}

func toDocument(rec *run.Record) (*runDocument, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	doc := &runDocument{
		ID:        rec.ID,
		Target:    rec.Target,
		GoalID:    rec.GoalID,
		Status:    string(rec.Status),
		StartTime: rec.StartTime,
		Data:      string(data),
	}
	if !rec.EndTime.IsZero() {
		end := rec.EndTime
		doc.EndTime = &end
	}
	return doc, nil
}

func fromDocument(doc *runDocument) (*run.Record, error) {
	var r run.Record
	if err := json.Unmarshal([]byte(doc.Data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", doc.ID, err)
	}
	return &r, nil
}

// wrapError wraps MongoDB errors with domain errors.
func (s *RunStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(run.ErrOperationTimeout, err)
	}
	return errors.Join(run.ErrConnectionFailed, err)
}

var (
	_ run.Store           = (*RunStore)(nil)
	_ run.SummaryProvider = (*RunStore)(nil)
)
