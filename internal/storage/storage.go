// Package storage defines the append-only capture history and its implementations.
package storage

import (
	"context"
	"errors"

	"loginwatch/internal/model"
)

// ErrNotFound is returned when a capture does not exist.
var ErrNotFound = errors.New("capture not found")

// Storage is the append-only snapshot repository. Captures are never updated
// or deleted through it.
type Storage interface {
	// Append writes c atomically and sets its ID and CapturedAt.
	Append(ctx context.Context, c *model.Capture) error
	// Latest returns the newest capture of a target, ErrNotFound if none.
	Latest(ctx context.Context, targetID string) (*model.Capture, error)
	// History returns every capture of a target, oldest first.
	History(ctx context.Context, targetID string) ([]model.Capture, error)
	// Recent returns up to n captures of a target, newest first, without
	// their HTML.
	Recent(ctx context.Context, targetID string, n int) ([]model.Capture, error)
	Get(ctx context.Context, id int64) (*model.Capture, error)
	ListTargets(ctx context.Context) ([]string, error)

	Close() error
}
