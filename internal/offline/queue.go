package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/storyloom/internal/storage"
)

// storageKeyQueue is the blob key holding the JSON array of queued actions.
const storageKeyQueue = "queued_actions"

// Queue is the ordered, durable log of player actions that have not yet
// been confirmed by the server. Entries survive process restart via the
// blob store and are only ever removed by the sync coordinator or the
// retention sweeper.
//
// Durability is best-effort, not transactional: when the flush after an
// in-memory enqueue fails, the entry stays queued for the current process
// lifetime but is not guaranteed to survive a crash.
type Queue struct {
	store storage.Store

	mu            sync.Mutex
	actions       []Action
	lastTimestamp time.Time
}

// NewQueue creates an empty queue persisting through store.
func NewQueue(store storage.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue records a player action and flushes the queue to the store. The
// returned action is queued in memory even when the flush error is
// non-nil; the error reports the lost durability guarantee only.
func (q *Queue) Enqueue(ctx context.Context, actionType ActionType, sessionID string, data json.RawMessage) (Action, error) {
	if !actionType.Valid() {
		return Action{}, fmt.Errorf("unknown action type %q", actionType)
	}
	if sessionID == "" {
		return Action{}, fmt.Errorf("session id is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Timestamps must be strictly increasing per enqueue so the
	// (timestamp, id) total order reproduces enqueue order exactly.
	now := time.Now().UTC()
	if !now.After(q.lastTimestamp) {
		now = q.lastTimestamp.Add(time.Nanosecond)
	}
	q.lastTimestamp = now

	action := Action{
		ID:        uuid.New().String(),
		Type:      actionType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: now,
	}
	q.actions = append(q.actions, action)

	if err := q.persistLocked(ctx); err != nil {
		log.Printf("enqueue flush failed, action %s held in memory only: %v", action.ID, err)
		return action, fmt.Errorf("flush queue: %w", err)
	}
	return action, nil
}

// Drain returns a snapshot of all queued actions in total order without
// removing them.
func (q *Queue) Drain() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]Action, len(q.actions))
	copy(snapshot, q.actions)
	return snapshot
}

// Remove deletes the actions with the given ids and flushes the queue.
// Removing an absent id is a no-op, so repeated removal of the same set is
// equivalent to a single removal.
func (q *Queue) Remove(ctx context.Context, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := q.actions[:0]
	for _, action := range q.actions {
		if _, ok := drop[action.ID]; !ok {
			kept = append(kept, action)
		}
	}
	q.actions = kept

	if err := q.persistLocked(ctx); err != nil {
		return fmt.Errorf("flush queue: %w", err)
	}
	return nil
}

// CountPending returns the number of queued actions.
func (q *Queue) CountPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// RemoveOlderThan drops actions whose enqueue time is at or past the
// retention horizon and flushes the queue. It returns the number dropped.
func (q *Queue) RemoveOlderThan(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := now.Add(-maxAge)
	kept := q.actions[:0]
	removed := 0
	for _, action := range q.actions {
		if !action.Timestamp.After(cutoff) {
			removed++
			continue
		}
		kept = append(kept, action)
	}
	q.actions = kept

	if removed == 0 {
		return 0, nil
	}
	if err := q.persistLocked(ctx); err != nil {
		return removed, fmt.Errorf("flush queue: %w", err)
	}
	return removed, nil
}

// Load replaces the in-memory queue with the persisted one, dropping
// entries already past the retention horizon. A corrupt blob degrades to
// an empty queue rather than failing.
func (q *Queue) Load(ctx context.Context, maxAge time.Duration, now time.Time) error {
	blob, ok, err := q.store.Get(ctx, storageKeyQueue)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	var actions []Action
	if ok {
		if err := json.Unmarshal(blob, &actions); err != nil {
			log.Printf("queue blob corrupt, starting empty: %v", err)
			actions = nil
		}
	}

	cutoff := now.Add(-maxAge)
	kept := actions[:0]
	for _, action := range actions {
		if maxAge > 0 && !action.Timestamp.After(cutoff) {
			continue
		}
		kept = append(kept, action)
	}
	sortActions(kept)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = kept
	q.lastTimestamp = time.Time{}
	if n := len(kept); n > 0 {
		q.lastTimestamp = kept[n-1].Timestamp
	}
	return nil
}

// Flush writes the current queue state to the store so the on-disk
// representation matches memory.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persistLocked(ctx)
}

func (q *Queue) persistLocked(ctx context.Context) error {
	blob, err := json.Marshal(q.actions)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	return q.store.Set(ctx, storageKeyQueue, blob)
}
