package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity rejects non-positive quantities before any mutation.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInvalidItem rejects malformed item identifiers before any mutation.
	ErrInvalidItem = errors.New("invalid item id")

	// ErrStoreConflict is returned by stores when a transaction lost a
	// concurrency conflict. Operations retry from scratch on it; it only
	// reaches the caller once the retry budget is exhausted.
	ErrStoreConflict = errors.New("store conflict")
)

// errLevelExhausted signals that a container has hit its fan-out ceiling and
// none of its children has room. It escalates placement to the next level and
// is never surfaced to callers.
var errLevelExhausted = errors.New("level exhausted")

// DefaultMaxRetries bounds the full-operation reruns after store conflicts.
const DefaultMaxRetries = 5

// withRetry runs op inside a fresh store transaction, committing on success.
// On ErrStoreConflict the whole operation reruns, so no partial progress from
// an aborted attempt is ever visible. Any other error rolls back and returns
// immediately.
func withRetry(ctx context.Context, store Store, attempts int, onConflict func(), op func(Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runTx(ctx, store, op)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStoreConflict) {
			return err
		}
		if onConflict != nil {
			onConflict()
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func runTx(ctx context.Context, store Store, op func(Tx) error) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := op(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
