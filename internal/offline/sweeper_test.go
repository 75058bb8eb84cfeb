package offline

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestSweepDropsEntriesPastHorizons(t *testing.T) {
	store := newMemStore()
	queue := NewQueue(store)
	cache := NewSessionCache(store)

	mustEnqueue(t, queue, "s1")
	if err := cache.Put(context.Background(), "s1", json.RawMessage(`{}`), false); err != nil {
		t.Fatalf("put: %v", err)
	}

	sweeper := NewSweeper(queue, cache, 7*24*time.Hour, 7*24*time.Hour)

	// Nothing is old enough yet.
	removed, evicted := sweeper.Sweep(context.Background(), time.Now().UTC())
	if removed != 0 || evicted != 0 {
		t.Fatalf("sweep = (%d, %d), want (0, 0)", removed, evicted)
	}

	// Seen from past the horizon, both entries are stale. Eviction
	// ignores the unsynced flag.
	future := time.Now().UTC().Add(8 * 24 * time.Hour)
	removed, evicted = sweeper.Sweep(context.Background(), future)
	if removed != 1 || evicted != 1 {
		t.Fatalf("sweep = (%d, %d), want (1, 1)", removed, evicted)
	}
	if queue.CountPending() != 0 || cache.Len() != 0 {
		t.Fatalf("queue=%d cache=%d after sweep, want both empty", queue.CountPending(), cache.Len())
	}
}

func TestSweepUsesIndependentHorizons(t *testing.T) {
	store := newMemStore()
	queue := NewQueue(store)
	cache := NewSessionCache(store)

	mustEnqueue(t, queue, "s1")
	if err := cache.Put(context.Background(), "s1", nil, true); err != nil {
		t.Fatalf("put: %v", err)
	}

	sweeper := NewSweeper(queue, cache, time.Hour, 24*time.Hour)

	removed, evicted := sweeper.Sweep(context.Background(), time.Now().UTC().Add(2*time.Hour))
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if evicted != 0 {
		t.Fatalf("evicted = %d, want 0", evicted)
	}
}

func TestSweepToleratesPersistenceFailure(t *testing.T) {
	store := newMemStore()
	queue := NewQueue(store)
	cache := NewSessionCache(store)

	mustEnqueue(t, queue, "s1")

	store.failSets = true
	sweeper := NewSweeper(queue, cache, time.Hour, time.Hour)

	// The sweep still prunes memory; the flush failure is logged and left
	// for the next pass.
	removed, _ := sweeper.Sweep(context.Background(), time.Now().UTC().Add(2*time.Hour))
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if queue.CountPending() != 0 {
		t.Fatalf("pending = %d, want 0", queue.CountPending())
	}
}
