package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/models"
)

func TestGameCache_ServesOnlyMatchingVersion(t *testing.T) {
	cache, err := NewGameCache(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g := newActiveGame(uuid.New(), uuid.New())
	g.Seq = 3
	cache.Store(g)

	if _, ok := cache.Lookup(g.ID, 3, models.GameActive); !ok {
		t.Fatal("expected hit at matching version")
	}
	if _, ok := cache.Lookup(g.ID, 4, models.GameActive); ok {
		t.Fatal("expected miss once the persisted seq moved on")
	}
	if cache.Len() != 0 {
		t.Fatal("stale entry should be evicted on mismatch")
	}
}

func TestGameCache_ReturnsCopies(t *testing.T) {
	cache, _ := NewGameCache(4)
	g := newActiveGame(uuid.New(), uuid.New())
	cache.Store(g)

	hit, _ := cache.Lookup(g.ID, 0, models.GameActive)
	hit.FEN = "mutated"
	again, _ := cache.Lookup(g.ID, 0, models.GameActive)
	if again.FEN != models.StartFEN {
		t.Fatal("callers must not be able to mutate cached entries")
	}
}

func TestGameCache_BoundedCapacity(t *testing.T) {
	cache, _ := NewGameCache(2)
	first := newActiveGame(uuid.New(), uuid.New())
	cache.Store(first)
	cache.Store(newActiveGame(uuid.New(), uuid.New()))
	cache.Store(newActiveGame(uuid.New(), uuid.New()))

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if _, ok := cache.Lookup(first.ID, 0, models.GameActive); ok {
		t.Fatal("least recently used entry should have been evicted")
	}
}

func TestGameCache_NilIsDisabled(t *testing.T) {
	var cache *GameCache
	cache.Store(newActiveGame(uuid.New(), uuid.New()))
	cache.Invalidate(uuid.New())
	if _, ok := cache.Lookup(uuid.New(), 0, models.GameActive); ok || cache.Len() != 0 {
		t.Fatal("nil cache must behave as always-miss")
	}
	if _, err := NewGameCache(0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}
