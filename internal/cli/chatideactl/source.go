package chatideactl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chatidea/chatidea/internal/introspect"
	"github.com/chatidea/chatidea/internal/planner"
	"github.com/chatidea/chatidea/internal/query"
	"github.com/chatidea/chatidea/internal/schema"
	"github.com/chatidea/chatidea/internal/snapshot"
)

// runIntrospect drafts schema.yaml and view.yaml from the source database.
// Existing files are never overwritten.
func runIntrospect(ctx context.Context, env *runEnv, args []string) error {
	outDir := args[0]
	targets := map[string]string{
		schema.DocumentSchema: filepath.Join(outDir, schema.DocumentSchema+".yaml"),
		schema.DocumentView:   filepath.Join(outDir, schema.DocumentView+".yaml"),
	}
	for _, target := range targets {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("%s already exists", target)
		}
	}

	engine, closeSource, err := env.source(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeSource() }()

	result, err := introspect.Inspect(ctx, engine)
	if err != nil {
		return err
	}
	schemaDoc, err := result.SchemaYAML()
	if err != nil {
		return err
	}
	viewDoc, err := result.ViewYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(targets[schema.DocumentSchema], schemaDoc, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(targets[schema.DocumentView], viewDoc, 0o644); err != nil {
		return err
	}
	for _, name := range result.TableNames() {
		table := result.Tables[name]
		_, _ = fmt.Fprintf(env.stdout, "%-20s columns=%d references=%d\n", name, len(table.Columns), len(table.References))
	}
	_, _ = fmt.Fprintf(env.stdout, "wrote %s and %s\n", targets[schema.DocumentSchema], targets[schema.DocumentView])
	return nil
}

// runSnapshot exports every table named by a documents directory to the
// object store, where the duckdb driver reads them.
func runSnapshot(ctx context.Context, env *runEnv, args []string) error {
	registry, err := schema.LoadDir(ctx, args[0])
	if err != nil {
		return err
	}
	store, _, err := env.objectStore(ctx)
	if err != nil {
		return err
	}
	engine, closeSource, err := env.source(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeSource() }()

	exporter := &snapshot.Exporter{
		Source:      engine,
		Dialect:     planner.Postgres,
		ObjectStore: store,
		Prefix:      env.tablePrefix,
	}
	results, err := exporter.Export(ctx, registry.TableNames())
	for _, result := range results {
		_, _ = fmt.Fprintf(env.stdout, "%-20s rows=%-8d bytes=%-10d %s\n", result.Table, result.RowCount, result.Bytes, result.Key)
	}
	return err
}

func (e *runEnv) source(ctx context.Context) (query.Engine, func() error, error) {
	if e.sourceOpener == nil {
		return nil, nil, fmt.Errorf("source database is not configured")
	}
	engine, closeSource, err := e.sourceOpener(ctx)
	if err != nil {
		return nil, nil, err
	}
	if closeSource == nil {
		closeSource = func() error { return nil }
	}
	return engine, closeSource, nil
}
