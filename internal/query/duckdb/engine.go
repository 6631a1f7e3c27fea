package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/chatidea/chatidea/internal/query"
	"github.com/chatidea/chatidea/internal/storage"
)

type Config struct {
	// TablePrefix is the object-store prefix holding `<table>.parquet`.
	TablePrefix  string
	Tables       []string
	QueryTimeout time.Duration
}

// Engine serves queries from parquet snapshots of the explored tables. The
// snapshots are downloaded once and exposed as views named after the tables.
type Engine struct {
	db      *sql.DB
	workDir string
	timeout time.Duration
}

func Open(ctx context.Context, store storage.ObjectStore, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("no tables to load")
	}

	workDir, err := os.MkdirTemp("", "chatidea-duckdb-")
	if err != nil {
		return nil, fmt.Errorf("create snapshot temp dir: %w", err)
	}
	engine := &Engine{workDir: workDir, timeout: cfg.QueryTimeout}

	localPaths := make(map[string]string, len(cfg.Tables))
	for _, tableName := range cfg.Tables {
		objectPath, err := storage.BuildTableFilePath(cfg.TablePrefix, tableName)
		if err != nil {
			_ = engine.Close()
			return nil, err
		}
		localPath := filepath.Join(workDir, sanitizeFileComponent(tableName)+".parquet")
		if err := download(ctx, store, objectPath, localPath); err != nil {
			_ = engine.Close()
			return nil, err
		}
		localPaths[tableName] = localPath
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	engine.db = db

	for _, tableName := range cfg.Tables {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteString(localPaths[tableName]))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}
	return engine, nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	return query.Run(ctx, e.db, e.timeout, request)
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *Engine) Close() error {
	var err error
	if e.db != nil {
		err = e.db.Close()
	}
	if e.workDir != "" {
		_ = os.RemoveAll(e.workDir)
	}
	return err
}

// download copies one snapshot object to localPath.
func download(ctx context.Context, store storage.ObjectStore, key, localPath string) error {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %q: %w", localPath, err)
	}
	return file.Close()
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
