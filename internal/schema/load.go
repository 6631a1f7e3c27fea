package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chatidea/chatidea/internal/storage"
)

const (
	DocumentConcepts = "concepts"
	DocumentSchema   = "schema"
	DocumentView     = "view"
	DocumentSimilars = "similars"
	DocumentExtras   = "extras"
)

var documentExtensions = []string{".yaml", ".yml", ".json"}

// ReadFunc fetches one named document; found is false when it does not exist.
type ReadFunc func(ctx context.Context, name string) (data []byte, found bool, err error)

type similarsEntry struct {
	Similars [][]string `json:"similars" yaml:"similars"`
}

// Load reads the concept, schema, view and optional similars documents, in
// YAML or JSON, and builds a validated Registry.
func Load(ctx context.Context, read ReadFunc) (*Registry, error) {
	var docs Documents
	if err := readDocument(ctx, read, DocumentConcepts, true, &docs.Concepts); err != nil {
		return nil, err
	}
	if err := readDocument(ctx, read, DocumentSchema, true, &docs.Tables); err != nil {
		return nil, err
	}
	if err := readDocument(ctx, read, DocumentView, false, &docs.Views); err != nil {
		return nil, err
	}
	var similars []similarsEntry
	if err := readDocument(ctx, read, DocumentSimilars, false, &similars); err != nil {
		return nil, err
	}
	for _, entry := range similars {
		docs.Similars = append(docs.Similars, entry.Similars...)
	}
	return New(docs)
}

func LoadDir(ctx context.Context, dir string) (*Registry, error) {
	return Load(ctx, DirReader(dir))
}

func LoadObjectStore(ctx context.Context, store storage.ObjectStore, prefix string) (*Registry, error) {
	return Load(ctx, ObjectStoreReader(store, prefix))
}

func DirReader(dir string) ReadFunc {
	return func(_ context.Context, name string) ([]byte, bool, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	}
}

func ObjectStoreReader(store storage.ObjectStore, prefix string) ReadFunc {
	return func(ctx context.Context, name string) ([]byte, bool, error) {
		key, err := storage.BuildDocumentPath(prefix, name)
		if err != nil {
			return nil, false, err
		}
		reader, err := store.Get(ctx, key)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		defer func() { _ = reader.Close() }()
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	}
}

// ReadOptional decodes an optional document stored next to the registry
// documents, leaving out untouched when it does not exist.
func ReadOptional(ctx context.Context, read ReadFunc, base string, out any) error {
	return readDocument(ctx, read, base, false, out)
}

func readDocument(ctx context.Context, read ReadFunc, base string, required bool, out any) error {
	for _, ext := range documentExtensions {
		name := base + ext
		data, found, err := read(ctx, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if !found {
			continue
		}
		if err := Decode(name, data, out); err != nil {
			return err
		}
		return nil
	}
	if required {
		return fmt.Errorf("%w: %s document not found", ErrInvalidConfig, base)
	}
	return nil
}

// Decode parses a document as JSON or YAML depending on the file extension.
func Decode(name string, data []byte, out any) error {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	default:
		return fmt.Errorf("decode %s: unsupported document format", name)
	}
	return nil
}
