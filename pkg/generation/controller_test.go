package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestController_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore())

	if c.IsGenerating(ctx, "m1") {
		t.Fatal("Expected no generation before Create")
	}
	if err := c.Create(ctx, "m1", "u1"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if !c.IsGenerating(ctx, "m1") {
		t.Fatal("Expected generation after Create")
	}
	if c.IsCancelled(ctx, "m1") {
		t.Fatal("Expected new generation not to be cancelled")
	}

	if err := c.Cancel(ctx, "m1"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if !c.IsCancelled(ctx, "m1") {
		t.Fatal("Expected generation to be cancelled")
	}
	// Idempotent.
	if err := c.Cancel(ctx, "m1"); err != nil {
		t.Fatalf("second Cancel() error: %v", err)
	}

	c.Cleanup(ctx, "m1")
	if c.IsGenerating(ctx, "m1") {
		t.Fatal("Expected no generation after Cleanup")
	}
	if c.IsCancelled(ctx, "m1") {
		t.Fatal("Expected IsCancelled false once the record is gone")
	}
}

func TestController_CreateTwiceFails(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore())

	if err := c.Create(ctx, "m1", "u1"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := c.Create(ctx, "m1", "u1"); !errors.Is(err, ErrGenerationExists) {
		t.Fatalf("Expected ErrGenerationExists, got %v", err)
	}

	c.Cleanup(ctx, "m1")
	if err := c.Create(ctx, "m1", "u1"); err != nil {
		t.Fatalf("Create() after cleanup error: %v", err)
	}
}

func TestController_CleanupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore())

	c.Cleanup(ctx, "missing")
	c.Cleanup(ctx, "missing")

	if err := c.Create(ctx, "m1", "u1"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	c.Cleanup(ctx, "m1")
	c.Cleanup(ctx, "m1")
	if c.IsGenerating(ctx, "m1") {
		t.Fatal("Expected no generation after double cleanup")
	}
}

func TestController_CancelWithoutGenerationIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewController(store)

	if err := c.Cancel(ctx, "ghost"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if _, err := store.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected cancel not to create a record, got %v", err)
	}
}

func TestController_SearchingAndError(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore())

	if err := c.Create(ctx, "m1", "u1"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	c.SetSearching(ctx, "m1", true)
	c.RecordError(ctx, "m1", "RequestError")

	gen, err := c.Status(ctx, "m1")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if !gen.Searching || gen.Error != "RequestError" || gen.UserID != "u1" {
		t.Fatalf("Unexpected record: %#v", gen)
	}
	if gen.CreatedAt.IsZero() {
		t.Fatal("Expected CreatedAt to be set")
	}

	c.SetSearching(ctx, "m1", false)
	gen, _ = c.Status(ctx, "m1")
	if gen.Searching {
		t.Fatal("Expected searching to be cleared")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore())
	if err := c.Create(ctx, "m1", "u1"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Cancel(ctx, "m1")
		}()
		go func() {
			defer wg.Done()
			_ = c.IsCancelled(ctx, "m1")
		}()
	}
	wg.Wait()

	if !c.IsCancelled(ctx, "m1") {
		t.Fatal("Expected generation to be cancelled")
	}
}
