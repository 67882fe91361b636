package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
)

const DefaultKey = "catalog.yaml"

type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Key       string
	UseSSL    bool
}

// Store keeps the whole catalog as one YAML or JSON object. A put replaces
// the object in a single request, so readers see either version in full.
type Store struct {
	client     *minio.Client
	bucketName string
	key        string
	region     string
	initOnce   sync.Once
	initErr    error
}

var _ contracts.CatalogStore = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &Store{
		client:     client,
		bucketName: bucket,
		key:        objectKey(cfg.Key),
		region:     region,
	}, nil
}

func (s *Store) Key() string {
	if s == nil {
		return ""
	}
	return s.key
}

func (s *Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *Store) LoadCatalog(ctx context.Context) (contracts.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Catalog{}, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return contracts.Catalog{}, fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, s.key, minio.GetObjectOptions{})
	if err != nil {
		return contracts.Catalog{}, translateErr(err, s.key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return contracts.Catalog{}, translateErr(err, s.key)
	}
	decoded, err := catalog.Decode(data)
	if err != nil {
		return contracts.Catalog{}, fmt.Errorf("load catalog s3://%s/%s: %w", s.bucketName, s.key, err)
	}
	return decoded, nil
}

func (s *Store) SaveCatalog(ctx context.Context, value contracts.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := catalog.Validate(value); err != nil {
		return err
	}
	data, err := catalog.Encode(value, catalog.FormatForPath(s.key))
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucketName, s.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(s.key),
	})
	if err != nil {
		return fmt.Errorf("put catalog s3://%s/%s: %w", s.bucketName, s.key, err)
	}
	return nil
}

func translateErr(err error, key string) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", contracts.ErrCatalogNotFound, key)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("get catalog %s: %w", key, err)
}

func objectKey(key string) string {
	normalized := strings.TrimLeft(strings.TrimSpace(key), "/")
	if normalized == "" {
		return DefaultKey
	}
	return normalized
}

func contentType(key string) string {
	if catalog.FormatForPath(key) == catalog.FormatJSON {
		return "application/json"
	}
	return "application/yaml"
}
