package offline

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Syncer submits one ordered batch of pending actions to the remote
// generation service. A returned error means the call itself failed and
// nothing in the batch was applied.
type Syncer interface {
	SyncActions(ctx context.Context, batch []Action) (SyncResult, error)
}

// SyncResult is the per-batch settlement reported by the server.
type SyncResult struct {
	Processed []string `json:"processed"`
	Failed    []string `json:"failed"`
	Message   string   `json:"message,omitempty"`
}

// State is the coordinator's sync state.
type State string

const (
	// StateIdle means no sync attempt is in flight.
	StateIdle State = "idle"

	// StateSyncing means one sync attempt is in flight.
	StateSyncing State = "syncing"
)

// Coordinator converts connectivity restoration into a drained queue and a
// reconciled cache. At most one sync attempt is in flight per process; a
// transition arriving while a pass runs is dropped, since the in-flight
// attempt already covers the then-current queue.
//
// The coordinator is the only writer of queue removals and cache sync
// flags. Failures are never fatal: a failed batch simply stays queued for
// the next offline-to-online edge, with no backoff and, unless an attempt
// cap is configured, no retry limit.
type Coordinator struct {
	queue       *Queue
	cache       *SessionCache
	syncer      Syncer
	maxAttempts int
	tracer      trace.Tracer

	mu       sync.Mutex
	online   bool
	syncing  bool
	attempts map[string]int
}

// NewCoordinator creates a coordinator draining queue through syncer.
// maxAttempts caps how many settlements an action may fail before it is
// dropped; zero or negative means unlimited retries.
func NewCoordinator(queue *Queue, cache *SessionCache, syncer Syncer, maxAttempts int) *Coordinator {
	return &Coordinator{
		queue:       queue,
		cache:       cache,
		syncer:      syncer,
		maxAttempts: maxAttempts,
		tracer:      otel.Tracer("storyloom/offline"),
		attempts:    make(map[string]int),
	}
}

// State returns the current sync state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncing {
		return StateSyncing
	}
	return StateIdle
}

// Online reports the last recorded connectivity state.
func (c *Coordinator) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// HandleConnectivity records the new connectivity state and, on the
// offline-to-online edge with work queued, runs one sync pass in the
// caller's goroutine. Going offline only updates the flag; an in-flight
// pass is left to settle naturally.
func (c *Coordinator) HandleConnectivity(ctx context.Context, online bool) {
	c.mu.Lock()
	wasOnline := c.online
	c.online = online
	if !online || wasOnline || c.syncing {
		c.mu.Unlock()
		return
	}
	if c.queue.CountPending() == 0 {
		c.mu.Unlock()
		return
	}
	c.syncing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.syncing = false
		c.mu.Unlock()
	}()
	c.syncPass(ctx)
}

func (c *Coordinator) syncPass(ctx context.Context) {
	batch := c.queue.Drain()
	if len(batch) == 0 {
		return
	}

	ctx, span := c.tracer.Start(ctx, "offline.sync",
		trace.WithAttributes(attribute.Int("sync.batch_size", len(batch))))
	defer span.End()

	result, err := c.syncer.SyncActions(ctx, batch)
	if err != nil {
		// Transport failure: every id in the snapshot counts as failed
		// and the whole batch stays queued for the next online edge.
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "sync batch failed")
		log.Printf("sync batch of %d failed: %v", len(batch), err)

		c.recordFailures(ctx, actionIDs(batch))
		if err := c.queue.Flush(ctx); err != nil {
			log.Printf("flush queue after failed sync: %v", err)
		}
		return
	}

	if err := c.queue.Remove(ctx, result.Processed...); err != nil {
		log.Printf("remove processed actions: %v", err)
	}
	c.clearAttempts(result.Processed)
	c.recordFailures(ctx, result.Failed)
	c.markSyncedSessions(ctx, batch, result.Processed)

	span.SetAttributes(
		attribute.Int("sync.processed", len(result.Processed)),
		attribute.Int("sync.failed", len(result.Failed)),
	)
	if result.Message != "" {
		log.Printf("sync message: %s", result.Message)
	}
	log.Printf("sync settled: processed=%d failed=%d remaining=%d",
		len(result.Processed), len(result.Failed), c.queue.CountPending())
}

// recordFailures tracks per-action failure counts when an attempt cap is
// configured and drops actions that reached it.
func (c *Coordinator) recordFailures(ctx context.Context, ids []string) {
	if c.maxAttempts <= 0 {
		return
	}

	c.mu.Lock()
	var exhausted []string
	for _, id := range ids {
		c.attempts[id]++
		if c.attempts[id] >= c.maxAttempts {
			exhausted = append(exhausted, id)
			delete(c.attempts, id)
		}
	}
	c.mu.Unlock()

	if len(exhausted) == 0 {
		return
	}
	log.Printf("dropping %d actions after %d failed attempts", len(exhausted), c.maxAttempts)
	if err := c.queue.Remove(ctx, exhausted...); err != nil {
		log.Printf("remove exhausted actions: %v", err)
	}
}

func (c *Coordinator) clearAttempts(ids []string) {
	if c.maxAttempts <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.attempts, id)
	}
}

// markSyncedSessions confirms cache entries for sessions whose batched
// actions were all processed and that have nothing left in the queue.
func (c *Coordinator) markSyncedSessions(ctx context.Context, batch []Action, processed []string) {
	processedSet := make(map[string]struct{}, len(processed))
	for _, id := range processed {
		processedSet[id] = struct{}{}
	}

	confirmed := make(map[string]bool)
	for _, action := range batch {
		_, ok := processedSet[action.ID]
		if settled, seen := confirmed[action.SessionID]; seen {
			confirmed[action.SessionID] = settled && ok
		} else {
			confirmed[action.SessionID] = ok
		}
	}

	// Anything enqueued after the snapshot keeps the session unconfirmed.
	for _, action := range c.queue.Drain() {
		confirmed[action.SessionID] = false
	}

	for sessionID, settled := range confirmed {
		if !settled {
			continue
		}
		if err := c.cache.MarkSynced(ctx, sessionID); err != nil {
			log.Printf("mark session %s synced: %v", sessionID, err)
		}
	}
}

func actionIDs(actions []Action) []string {
	ids := make([]string, 0, len(actions))
	for _, action := range actions {
		ids = append(ids, action.ID)
	}
	return ids
}
