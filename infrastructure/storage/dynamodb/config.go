// Package dynamodb provides a DynamoDB-backed run store.
package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/recon-go/domain/config"
	"github.com/felixgeelhaar/recon-go/domain/run"
)

// statusIndex lists runs of one status ordered by start time.
const statusIndex = "status-start_time-index"

// Config configures the DynamoDB run store.
type Config struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
	Table    string
	// Timeout bounds each request the store issues.
	Timeout time.Duration
}

// ConfigFor maps the configured run store settings. Credentials come from
// the default AWS chain.
func ConfigFor(c config.RunStoreConfig) Config {
	cfg := Config{
		Region:   c.Region,
		Endpoint: c.Endpoint,
		Table:    c.Table,
		Timeout:  30 * time.Second,
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Table == "" {
		cfg.Table = "recon_runs"
	}
	return cfg
}

// Open builds a client from the default AWS configuration and makes sure the
// runs table exists.
func Open(ctx context.Context, cfg Config) (*RunStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Join(run.ErrConnectionFailed, err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	s := NewRunStore(client, cfg)
	if err := s.ensureTable(ctx); err != nil {
		return nil, errors.Join(run.ErrConnectionFailed, err)
	}
	return s, nil
}

// ensureTable creates the runs table on first use and waits for it to
// become active. An existing table is left as is.
func (s *RunStore) ensureTable(ctx context.Context) error {
	attr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
	}
	key := func(name string, kt types.KeyType) types.KeySchemaElement {
		return types.KeySchemaElement{AttributeName: aws.String(name), KeyType: kt}
	}

	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(s.tableName),
		BillingMode:          types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{attr("id"), attr("status"), attr("start_time")},
		KeySchema:            []types.KeySchemaElement{key("id", types.KeyTypeHash)},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName:  aws.String(statusIndex),
			KeySchema:  []types.KeySchemaElement{key("status", types.KeyTypeHash), key("start_time", types.KeyTypeRange)},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	})
	var inUse *types.ResourceInUseException
	switch {
	case errors.As(err, &inUse):
		return nil
	case err != nil:
		return err
	}

	return dynamodb.NewTableExistsWaiter(s.client).Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	}, 2*time.Minute)
}
