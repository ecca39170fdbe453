package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// timeLayout is fixed width so start_time compares lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// runItem represents a scan run in DynamoDB.
type runItem struct {
	ID        string `dynamodbav:"id"`
	Target    string `dynamodbav:"target"`
	GoalID    string `dynamodbav:"goal_id"`
	Status    string `dynamodbav:"status"`
	StartTime string `dynamodbav:"start_time"`
	EndTime   string `dynamodbav:"end_time,omitempty"`
	Data      string `dynamodbav:"data"`
}

// RunStore is a DynamoDB-backed implementation of run.Store.
type RunStore struct {
	client       *dynamodb.Client
	tableName    string
	queryTimeout time.Duration
}

// NewRunStore wraps an existing client. The table must already exist; Open
// creates it.
func NewRunStore(client *dynamodb.Client, cfg Config) *RunStore {
	return &RunStore{
		client:       client,
		tableName:    cfg.Table,
		queryTimeout: cfg.Timeout,
	}
}

// Save persists a new run.
func (s *RunStore) Save(ctx context.Context, rec *run.Record) error {
	return s.put(ctx, rec, "attribute_not_exists(id)", run.ErrRunExists)
}

// Update updates an existing run.
func (s *RunStore) Update(ctx context.Context, rec *run.Record) error {
	return s.put(ctx, rec, "attribute_exists(id)", run.ErrRunNotFound)
}

func (s *RunStore) put(ctx context.Context, rec *run.Record, condition string, conflict error) error {
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	item, err := toItem(rec)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return conflict
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

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, s.wrapError(err)
	}
	if result.Item == nil {
		return nil, run.ErrRunNotFound
	}

	var item runItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, err
	}
	return fromItem(&item)
}

// Delete removes a run by ID.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return run.ErrInvalidRunID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return run.ErrRunNotFound
		}
		return s.wrapError(err)
	}
	return nil
}

// List returns runs matching the filter. Scans are unordered, so sorting
// and pagination happen after the filtered scan completes.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	records, err := s.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return filter.Apply(records), nil
}

func (s *RunStore) scan(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	input, err := s.scanInput(filter)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var records []*run.Record
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError(err)
		}

		var items []runItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for i := range items {
			r, err := fromItem(&items[i])
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
	}
	return records, nil
}

// Count returns the number of runs matching the filter.
func (s *RunStore) Count(ctx context.Context, filter run.ListFilter) (int64, error) {
	input, err := s.scanInput(filter)
	if err != nil {
		return 0, err
	}
	input.Select = types.SelectCount

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var count int64
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, s.wrapError(err)
		}
		count += int64(page.Count)
	}
	return count, nil
}

// Summary returns aggregate statistics computed from a filtered scan.
func (s *RunStore) Summary(ctx context.Context, filter run.ListFilter) (run.Summary, error) {
	records, err := s.scan(ctx, filter)
	if err != nil {
		return run.Summary{}, err
	}
	return run.Summarize(records), nil
}

func (s *RunStore) scanInput(filter run.ListFilter) (*dynamodb.ScanInput, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}

	cond, ok := buildCondition(filter)
	if !ok {
		return input, nil
	}

	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("build filter expression: %w", err)
	}
	input.FilterExpression = expr.Filter()
	input.ExpressionAttributeNames = expr.Names()
	input.ExpressionAttributeValues = expr.Values()
	return input, nil
}

// buildCondition translates the filter's predicates. ok is false when the
// filter matches everything.
func buildCondition(filter run.ListFilter) (cond expression.ConditionBuilder, ok bool) {
	add := func(c expression.ConditionBuilder) {
		if ok {
			cond = cond.And(c)
		} else {
			cond = c
			ok = true
		}
	}

	if len(filter.Status) > 0 {
		var status expression.ConditionBuilder
		for i, st := range filter.Status {
			c := expression.Name("status").Equal(expression.Value(string(st)))
			if i == 0 {
				status = c
			} else {
				status = status.Or(c)
			}
		}
		add(status)
	}
	if filter.Target != "" {
		add(expression.Name("target").Equal(expression.Value(filter.Target)))
	}
	if filter.GoalID != "" {
		add(expression.Name("goal_id").Equal(expression.Value(filter.GoalID)))
	}
	if !filter.FromTime.IsZero() {
		add(expression.Name("start_time").GreaterThanEqual(expression.Value(formatTime(filter.FromTime))))
	}
	if !filter.ToTime.IsZero() {
		add(expression.Name("start_time").LessThan(expression.Value(formatTime(filter.ToTime))))
	}
	return cond, ok
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func toItem(rec *run.Record) (*runItem, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	item := &runItem{
		ID:        rec.ID,
		Target:    rec.Target,
		GoalID:    rec.GoalID,
		Status:    string(rec.Status),
		StartTime: formatTime(rec.StartTime),
		Data:      string(data),
	}
	if !rec.EndTime.IsZero() {
		item.EndTime = formatTime(rec.EndTime)
	}
	return item, nil
}

func fromItem(item *runItem) (*run.Record, error) {
	var r run.Record
	if err := json.Unmarshal([]byte(item.Data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", item.ID, err)
	}
	return &r, nil
}

// wrapError wraps DynamoDB errors with domain errors.
func (s *RunStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(run.ErrOperationTimeout, err)
	}

	var throughputExceeded *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughputExceeded) {
		return errors.Join(run.ErrOperationTimeout, err)
	}
	return errors.Join(run.ErrConnectionFailed, err)
}

var (
	_ run.Store           = (*RunStore)(nil)
	_ run.SummaryProvider = (*RunStore)(nil)
)
