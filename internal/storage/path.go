package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildTableFilePath is the object key of a table snapshot:
// `<prefix>/<table>.parquet`.
func BuildTableFilePath(prefix, tableName string) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return join(prefix, tableName+".parquet")
}

// BuildDocumentPath is the object key of a configuration document.
func BuildDocumentPath(prefix, documentName string) (string, error) {
	if err := validatePathComponent(documentName, "document name"); err != nil {
		return "", err
	}
	return join(prefix, documentName)
}

func join(prefix, name string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return name, nil
	}
	for _, component := range strings.Split(prefix, "/") {
		if err := validatePathComponent(component, "prefix component"); err != nil {
			return "", err
		}
	}
	return path.Join(prefix, name), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) || strings.Contains(value, "..") {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
