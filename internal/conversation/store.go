package conversation

import (
	"context"
	"errors"
	"time"
)

const DefaultIdleTimeout = 5 * time.Minute

var ErrSessionBusy = errors.New("session is busy")

// Store serialises turns per session. Update runs fn against a copy of the
// session stack, creating an empty one when the session is unknown or has
// been idle too long, and keeps the copy only when fn returns nil.
type Store interface {
	Update(ctx context.Context, sessionID string, fn func(*Stack) error) error
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
	Close() error
}

// View runs fn without keeping any change it makes.
func View(ctx context.Context, store Store, sessionID string, fn func(*Stack) error) error {
	errDiscard := errors.New("discard")
	err := store.Update(ctx, sessionID, func(stack *Stack) error {
		if err := fn(stack); err != nil {
			return err
		}
		return errDiscard
	})
	if errors.Is(err, errDiscard) {
		return nil
	}
	return err
}
