package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Controller is the lifecycle API over a Store.
type Controller struct {
	store Store
	now   func() time.Time
}

// NewController creates a controller over the given store.
func NewController(store Store) *Controller {
	return &Controller{store: store, now: time.Now}
}

// Create registers a new generation. It fails with ErrGenerationExists if
// the previous one for the message was never cleaned up.
func (c *Controller) Create(ctx context.Context, messageID, userID string) error {
	err := c.store.Create(ctx, Generation{
		MessageID: messageID,
		UserID:    userID,
		CreatedAt: c.now(),
	})
	if err != nil {
		return err
	}
	slog.Debug("generation_created", "message_id", messageID)
	return nil
}

// Cancel flags the generation as cancelled. It is a no-op when none exists.
func (c *Controller) Cancel(ctx context.Context, messageID string) error {
	if err := c.store.SetCancelled(ctx, messageID); err != nil {
		return err
	}
	slog.Info("generation_cancel_requested", "message_id", messageID)
	return nil
}

// IsCancelled reports whether a cancel was requested. Store errors are
// logged and read as not cancelled.
func (c *Controller) IsCancelled(ctx context.Context, messageID string) bool {
	gen, err := c.store.Get(ctx, messageID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("generation_lookup_failed", "message_id", messageID, "error", err)
		}
		return false
	}
	return gen.Cancelled
}

// IsGenerating reports whether a record exists for the message.
func (c *Controller) IsGenerating(ctx context.Context, messageID string) bool {
	_, err := c.store.Get(ctx, messageID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		slog.Warn("generation_lookup_failed", "message_id", messageID, "error", err)
	}
	return err == nil
}

// Status returns the record for the message.
func (c *Controller) Status(ctx context.Context, messageID string) (Generation, error) {
	return c.store.Get(ctx, messageID)
}

// SetSearching toggles the searching indicator.
func (c *Controller) SetSearching(ctx context.Context, messageID string, searching bool) {
	if err := c.store.SetSearching(ctx, messageID, searching); err != nil {
		slog.Warn("generation_searching_update_failed", "message_id", messageID, "error", err)
	}
}

// RecordError stores the normalized error name on the record.
func (c *Controller) RecordError(ctx context.Context, messageID, errName string) {
	if err := c.store.SetError(ctx, messageID, errName); err != nil {
		slog.Warn("generation_error_update_failed", "message_id", messageID, "error", err)
	}
}

// Cleanup deletes the record. Safe to call repeatedly.
func (c *Controller) Cleanup(ctx context.Context, messageID string) {
	if err := c.store.Delete(ctx, messageID); err != nil {
		slog.Warn("generation_cleanup_failed", "message_id", messageID, "error", err)
		return
	}
	slog.Debug("generation_cleaned_up", "message_id", messageID)
}
