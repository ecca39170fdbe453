// Package storage opens the run and artifact backends named in the
// configuration.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/recon-go/domain/artifact"
	"github.com/felixgeelhaar/recon-go/domain/config"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/badger"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/filesystem"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/memory"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/objectstore"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/redis"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/sqlite"
)

// ErrUnknownDriver is returned for driver names no backend answers to.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Stores bundles the opened backends. Artifacts is nil when raw output is
// not kept.
type Stores struct {
	Runs      run.Store
	Artifacts artifact.Store

	closers []func() error
}

// Close releases every backend connection.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Stores) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Open connects the configured run store and artifact store.
func Open(ctx context.Context, cfg config.StorageConfig) (*Stores, error) {
	stores := &Stores{}

	runs, err := openRuns(ctx, cfg.Runs, stores)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("run store %q: %w", cfg.Runs.Driver, err)
	}
	stores.Runs = runs

	artifacts, err := openArtifacts(ctx, cfg.Artifacts, stores)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("artifact store %q: %w", cfg.Artifacts.Driver, err)
	}
	stores.Artifacts = artifacts

	return stores, nil
}

func openRuns(ctx context.Context, c config.RunStoreConfig, stores *Stores) (run.Store, error) {
	switch c.Driver {
	case "", "memory":
		return memory.NewRunStore(), nil

	case "sqlite":
		s, err := sqlite.NewRunStore(sqlite.ConfigFor(c))
		if err != nil {
			return nil, err
		}
		stores.onClose(s.Close)
		return s, nil

	case "postgres":
		pc := postgres.DefaultConfig()
		pc.DSN = c.DSN
		if c.Table != "" {
			pc.Schema = c.Table
		}
		pool, err := postgres.Connect(ctx, pc)
		if err != nil {
			return nil, err
		}
		stores.onClose(func() error { pool.Close(); return nil })

		s := postgres.NewRunStore(pool, pc.Schema)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case "redis":
		s, err := redis.NewRunStore(redis.ConfigFor(c))
		if err != nil {
			return nil, err
		}
		stores.onClose(s.Close)
		return s, nil

	case "badger":
		s, err := badger.NewRunStore(badger.ConfigFor(c))
		if err != nil {
			return nil, err
		}
		stores.onClose(s.Close)
		return s, nil

	case "mongodb":
		mc := mongodb.DefaultConfig()
		if c.DSN != "" {
			mc.URI = c.DSN
		}
		if c.Database != "" {
			mc.Database = c.Database
		}
		client, err := mongodb.Connect(ctx, mc)
		if err != nil {
			return nil, err
		}
		stores.onClose(func() error { return client.Close(context.Background()) })

		s := mongodb.NewRunStore(client, c.Table)
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case "dynamodb":
		s, err := dynamodb.Open(ctx, dynamodb.ConfigFor(c))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, ErrUnknownDriver
}

func openArtifacts(ctx context.Context, c config.ArtifactStoreConfig, stores *Stores) (artifact.Store, error) {
	var client objectstore.Client
	bucket := c.Bucket

	switch c.Driver {
	case "", "none":
		return nil, nil

	case "filesystem":
		return filesystem.NewArtifactStore(c.Dir)

	case "s3":
		s3c, err := objectstore.NewS3Client(ctx, objectstore.S3Config{Region: c.Region, Endpoint: c.Endpoint})
		if err != nil {
			return nil, err
		}
		client = s3c

	case "gcs":
		gc, err := objectstore.NewGCSClient(ctx, c.CredentialsFile)
		if err != nil {
			return nil, err
		}
		stores.onClose(gc.Close)
		client = gc

	case "azblob":
		ac, err := objectstore.NewAzureClient(c.AccountURL, nil)
		if err != nil {
			return nil, err
		}
		client = ac
		bucket = c.Container

	default:
		return nil, ErrUnknownDriver
	}

	return objectstore.NewArtifactStore(objectstore.Config{
		Client: client,
		Bucket: bucket,
		Prefix: c.Prefix,
	})
}
