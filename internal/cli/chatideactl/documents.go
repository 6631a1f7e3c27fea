package chatideactl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chatidea/chatidea/internal/chat"
	"github.com/chatidea/chatidea/internal/schema"
	"github.com/chatidea/chatidea/internal/storage"
)

var documentNames = []string{
	schema.DocumentConcepts,
	schema.DocumentSchema,
	schema.DocumentView,
	schema.DocumentSimilars,
	schema.DocumentExtras,
}

// runValidate loads a documents directory the way the service does and
// prints what a user would be able to explore.
func runValidate(ctx context.Context, env *runEnv, args []string) error {
	dir := args[0]
	registry, err := schema.LoadDir(ctx, dir)
	if err != nil {
		return err
	}
	if _, err := chat.LoadMessages(ctx, schema.DirReader(dir)); err != nil {
		return err
	}
	for _, concept := range registry.Concepts() {
		_, _ = fmt.Fprintf(env.stdout, "%-12s %-10s table=%s attributes=%d relations=%d\n",
			concept.Name, concept.Kind, concept.Table, len(concept.Attributes), len(concept.Relations))
	}
	_, _ = fmt.Fprintf(env.stdout, "ok: %d concepts, %d primary\n", len(registry.Concepts()), len(registry.PrimaryNames()))
	return nil
}

// runPublish validates a documents directory and uploads every document
// file it holds under the configured prefix.
func runPublish(ctx context.Context, env *runEnv, args []string) error {
	dir := args[0]
	if _, err := schema.LoadDir(ctx, dir); err != nil {
		return fmt.Errorf("refusing to publish invalid documents: %w", err)
	}
	store, prefix, err := env.objectStore(ctx)
	if err != nil {
		return err
	}

	published := 0
	for _, name := range documentNames {
		for _, ext := range []string{".yaml", ".yml", ".json"} {
			data, err := os.ReadFile(filepath.Join(dir, name+ext))
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return err
			}
			key, err := storage.BuildDocumentPath(prefix, name+ext)
			if err != nil {
				return err
			}
			contentType := "application/yaml"
			if ext == ".json" {
				contentType = "application/json"
			}
			if _, err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: contentType}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(env.stdout, "uploaded %s (%d bytes)\n", key, len(data))
			published++
		}
	}
	if published == 0 {
		return fmt.Errorf("no documents found in %s", dir)
	}
	return nil
}

func runObjects(ctx context.Context, env *runEnv, args []string) error {
	store, _, err := env.objectStore(ctx)
	if err != nil {
		return err
	}
	prefix := ""
	if len(args) > 0 {
		prefix = strings.TrimSpace(args[0])
	}
	infos, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, info := range infos {
		_, _ = fmt.Fprintf(env.stdout, "%10d  %s\n", info.Size, info.Key)
	}
	return nil
}

func (e *runEnv) objectStore(ctx context.Context) (storage.ObjectStore, string, error) {
	if e.opener == nil {
		return nil, "", fmt.Errorf("object store is not configured")
	}
	return e.opener(ctx)
}
