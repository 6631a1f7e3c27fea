// Package snapshot copies the explored tables from the relational source into
// parquet objects that the embedded DuckDB engine serves from.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatidea/chatidea/internal/planner"
	"github.com/chatidea/chatidea/internal/query"
	"github.com/chatidea/chatidea/internal/storage"
)

type Exporter struct {
	Source      query.Engine
	Dialect     planner.Dialect
	ObjectStore storage.ObjectStore
	// Prefix is the table prefix the DuckDB engine reads from.
	Prefix string
	Logger *slog.Logger
	Clock  func() time.Time
}

type TableResult struct {
	Table    string
	Key      string
	RowCount int64
	Bytes    int64
}

// Export writes one `<prefix>/<table>.parquet` object per table. It stops at
// the first failing table; objects already written stay in place.
func (e *Exporter) Export(ctx context.Context, tables []string) ([]TableResult, error) {
	if e.Source == nil {
		return nil, fmt.Errorf("source engine is required")
	}
	if e.ObjectStore == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables to export")
	}
	quote := e.Dialect.Quote
	if quote == nil {
		quote = planner.Postgres.Quote
	}
	clock := e.Clock
	if clock == nil {
		clock = time.Now
	}

	results := make([]TableResult, 0, len(tables))
	for _, table := range tables {
		key, err := storage.BuildTableFilePath(e.Prefix, table)
		if err != nil {
			return results, err
		}
		started := clock()
		result, err := e.Source.Execute(ctx, query.Request{SQL: "SELECT * FROM " + quote(table)})
		if err != nil {
			return results, fmt.Errorf("read table %q: %w", table, err)
		}
		encoded, err := EncodeResultToParquet(table, result)
		if err != nil {
			return results, err
		}
		info, err := e.ObjectStore.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: "application/octet-stream"})
		if err != nil {
			return results, fmt.Errorf("put %q: %w", key, err)
		}
		if info.Key != "" {
			key = info.Key
		}
		results = append(results, TableResult{
			Table:    table,
			Key:      key,
			RowCount: encoded.RowCount,
			Bytes:    int64(len(encoded.Data)),
		})
		if e.Logger != nil {
			e.Logger.InfoContext(ctx, "table snapshot written",
				slog.String("table", table),
				slog.String("key", key),
				slog.Int64("rows", encoded.RowCount),
				slog.Int("bytes", len(encoded.Data)),
				slog.Duration("duration", clock().Sub(started)),
			)
		}
	}
	return results, nil
}
