// Package s3 implements storage.ObjectStore on any S3-compatible service
// through minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chatidea/chatidea/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// backend is one bucket of an S3-compatible service.
type backend interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context) error
	Name() string
}

// Store scopes every key under an optional prefix of one bucket. Keys handed
// back by Put and List are relative to that prefix.
type Store struct {
	bucket backend
	keys   keyspace
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	bucket, err := newMinioBucket(cfg)
	if err != nil {
		return nil, err
	}
	store := newStore(bucket, cfg.Prefix)
	if cfg.AutoCreateBucket {
		if err := store.createIfMissing(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(bucket backend, prefix string) *Store {
	return &Store{bucket: bucket, keys: newKeyspace(prefix)}
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := s.keys.resolve(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.bucket.Get(ctx, full)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, storage.ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket.Name(), full, err)
	}
	return reader, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	full, err := s.keys.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.Put(ctx, full, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put %s/%s: %w", s.bucket.Name(), full, err)
	}
	if info.Key == "" {
		info.Key = full
	}
	info.Key = s.keys.relative(info.Key)
	return info, nil
}

// List treats prefix as a directory: "tables" never matches "tables-old/".
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	dir, err := s.keys.dir(prefix)
	if err != nil {
		return nil, err
	}
	infos, err := s.bucket.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", s.bucket.Name(), dir, err)
	}
	for i := range infos {
		infos[i].Key = s.keys.relative(infos[i].Key)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	exists, err := s.bucket.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket.Name(), err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket.Name())
	}
	return nil
}

func (s *Store) createIfMissing(ctx context.Context) error {
	exists, err := s.bucket.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket.Name(), err)
	}
	if exists {
		return nil
	}
	if err := s.bucket.Create(ctx); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket.Name(), err)
	}
	return nil
}
