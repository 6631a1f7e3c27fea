package s3

import (
	"fmt"
	"path"
	"strings"
)

// keyspace maps store keys onto bucket keys under a fixed root.
type keyspace struct {
	root string
}

func newKeyspace(root string) keyspace {
	root = path.Clean("/" + strings.TrimSpace(root))
	return keyspace{root: strings.TrimPrefix(root, "/")}
}

// resolve validates key and returns its bucket key. Keys may not climb out
// of the root.
func (k keyspace) resolve(key string) (string, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("invalid object key: %q", key)
		}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return path.Join(k.root, cleaned), nil
}

// dir is the listing prefix of a directory-like key. An empty key lists the
// whole root.
func (k keyspace) dir(key string) (string, error) {
	full := k.root
	if strings.Trim(strings.TrimSpace(key), "/") != "" {
		resolved, err := k.resolve(strings.Trim(strings.TrimSpace(key), "/"))
		if err != nil {
			return "", err
		}
		full = resolved
	}
	if full == "" {
		return "", nil
	}
	return full + "/", nil
}

func (k keyspace) relative(bucketKey string) string {
	if k.root == "" {
		return bucketKey
	}
	return strings.TrimPrefix(bucketKey, k.root+"/")
}
