// Package storage opens the catalog source or store selected by
// configuration.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/config"
	"github.com/egv/autotask/internal/contracts"
	"github.com/egv/autotask/internal/storage/pgstore"
	"github.com/egv/autotask/internal/storage/redisstore"
	"github.com/egv/autotask/internal/storage/s3store"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSource returns a read-only view of the configured catalog. The sample
// source is the only one that cannot be written.
func OpenSource(ctx context.Context, cfg config.SourceConfig) (contracts.CatalogSource, io.Closer, error) {
	if cfg.Kind == config.SourceSample {
		return catalog.Sample(), nopCloser{}, nil
	}
	return OpenStore(ctx, cfg)
}

// OpenStore returns a writable catalog store. Postgres stores are migrated
// before use.
func OpenStore(ctx context.Context, cfg config.SourceConfig) (contracts.CatalogStore, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Kind {
	case config.SourceFile:
		return catalog.NewFileSource(cfg.Path), nopCloser{}, nil
	case config.SourceRedis:
		store, err := redisstore.New(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		return store, store, nil
	case config.SourcePostgres:
		store, err := pgstore.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, store, nil
	case config.SourceS3:
		store, err := s3store.New(s3store.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Key:       cfg.S3.Key,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	case config.SourceSample:
		return nil, nil, fmt.Errorf("the sample catalog is read-only")
	default:
		return nil, nil, fmt.Errorf("unsupported source kind %q", cfg.Kind)
	}
}
