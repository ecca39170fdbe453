// Package mongodb provides a MongoDB-backed run store.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// Config configures the MongoDB connection.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// DefaultConfig returns a local development configuration.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "recon",
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   10 * time.Second,
	}
}

// Client wraps a connected mongo client and its database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	config Config
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Database == "" {
		cfg.Database = "recon"
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Join(run.ErrConnectionFailed, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Join(run.ErrConnectionFailed, err)
	}

	return &Client{
		client: client,
		db:     client.Database(cfg.Database),
		config: cfg,
	}, nil
}

// Collection returns a collection in the configured database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
