package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatidea/chatidea/internal/config"
)

type ReadinessCheck func(ctx context.Context) error

// Dependency is one component reported by /v1/ready.
type Dependency struct {
	Name  string
	Check ReadinessCheck
}

// handleReady runs every dependency check concurrently under one deadline
// and reports each outcome by name.
func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var mu sync.Mutex
	statuses := make(map[string]string, len(deps.Readiness))
	ready := true
	var group errgroup.Group
	for _, dependency := range deps.Readiness {
		if dependency.Check == nil {
			continue
		}
		group.Go(func() error {
			status := "ok"
			if err := dependency.Check(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			statuses[dependency.Name] = status
			if status != "ok" {
				ready = false
			}
			return nil
		})
	}
	_ = group.Wait()

	if !ready {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", "one or more dependencies are not ready", true, map[string]any{"dependencies": statuses})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "dependencies": statuses})
}

// CheckRegistry fails until the concept documents have been loaded.
func CheckRegistry(service ChatService) ReadinessCheck {
	return func(_ context.Context) error {
		if service == nil || service.Registry() == nil {
			return errors.New("concept registry is not loaded")
		}
		if len(service.Registry().PrimaryNames()) == 0 {
			return errors.New("concept registry has no primary concepts")
		}
		return nil
	}
}

// CheckObjectStoreConfig only applies when documents or table snapshots
// come from the object store.
func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		switch {
		case !cfg.UsesObjectStore():
			return nil
		case cfg.ObjectStore.Endpoint == "":
			return errors.New("object store endpoint is not configured")
		case cfg.ObjectStore.Bucket == "":
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}
