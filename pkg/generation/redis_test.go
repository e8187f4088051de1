package generation

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("AICHAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AICHAT_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := NewRedisStore(ctx, RedisConfig{
		Addr:      addr,
		KeyPrefix: "aichat:test:" + uuid.NewString() + ":",
		TTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("NewRedisStore() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore_Lifecycle(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	c := NewController(store)

	if err := c.Create(ctx, "m1", "u1"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := c.Create(ctx, "m1", "u1"); !errors.Is(err, ErrGenerationExists) {
		t.Fatalf("Expected ErrGenerationExists, got %v", err)
	}

	if err := c.Cancel(ctx, "m1"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	c.SetSearching(ctx, "m1", true)

	gen, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !gen.Cancelled || !gen.Searching || gen.UserID != "u1" {
		t.Fatalf("Unexpected record: %#v", gen)
	}

	c.Cleanup(ctx, "m1")
	c.Cleanup(ctx, "m1")
	if _, err := store.Get(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after cleanup, got %v", err)
	}
}

func TestRedisStore_SetOnMissingRecordIsNoop(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.SetCancelled(ctx, "ghost"); err != nil {
		t.Fatalf("SetCancelled() error: %v", err)
	}
	if _, err := store.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected no record to be created, got %v", err)
	}
}
