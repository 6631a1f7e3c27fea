package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chatidea/chatidea/internal/cli/chatideactl"
	"github.com/chatidea/chatidea/internal/config"
	"github.com/chatidea/chatidea/internal/query"
	pgengine "github.com/chatidea/chatidea/internal/query/postgres"
	"github.com/chatidea/chatidea/internal/storage"
	s3store "github.com/chatidea/chatidea/internal/storage/s3"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("CHATIDEA_CLI_TIMEOUT")), 10*time.Second)
	options := chatideactl.Options{
		BaseURL:         envOr("CHATIDEA_API_URL", "http://localhost:8080"),
		APIKey:          strings.TrimSpace(os.Getenv("CHATIDEA_API_KEY")),
		Timeout:         timeout,
		OpenObjectStore: openObjectStore,
		OpenSource:      openSource,
		TablePrefix:     envOr("CHATIDEA_DUCKDB_TABLE_PREFIX", "tables"),
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	}

	ctx, cancel := context.WithCancel(context.Background())
	code := chatideactl.Run(ctx, os.Args[1:], options)
	cancel()
	os.Exit(code)
}

// openObjectStore reads the same CHATIDEA_OBJECTSTORE_* and
// CHATIDEA_DOCUMENTS_PREFIX keys as the API server.
func openObjectStore(ctx context.Context) (storage.ObjectStore, string, error) {
	cfg, err := config.LoadFromEnv("chatideactl")
	if err != nil {
		return nil, "", err
	}
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, "", err
	}
	return store, cfg.Documents.Prefix, nil
}

// openSource connects to CHATIDEA_STORAGE_DSN whatever the configured
// driver is; snapshots are always taken from the relational database.
func openSource(ctx context.Context) (query.Engine, func() error, error) {
	cfg, err := config.LoadFromEnv("chatideactl")
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		return nil, nil, fmt.Errorf("CHATIDEA_STORAGE_DSN is required")
	}
	engine, err := pgengine.Open(ctx, pgengine.Config{
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxIdleTime: cfg.Storage.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		QueryTimeout:    cfg.Storage.QueryTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return engine, engine.Close, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid CHATIDEA_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
