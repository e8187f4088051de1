// Package generation tracks in-flight response generations so a separate
// actor can cancel them.
package generation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrGenerationExists is returned by Create when a record for the
	// message has not been cleaned up yet.
	ErrGenerationExists = errors.New("generation already exists for message")
	// ErrNotFound is returned by Get when no record exists.
	ErrNotFound = errors.New("generation not found")
)

// Generation is the record of one in-flight response.
type Generation struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Cancelled bool      `json:"cancelled"`
	Searching bool      `json:"searching"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists generation records keyed by message id. Setters are no-ops
// when the record does not exist and Delete is idempotent.
type Store interface {
	Create(ctx context.Context, gen Generation) error
	Get(ctx context.Context, messageID string) (Generation, error)
	SetCancelled(ctx context.Context, messageID string) error
	SetSearching(ctx context.Context, messageID string, searching bool) error
	SetError(ctx context.Context, messageID, errName string) error
	Delete(ctx context.Context, messageID string) error
}
