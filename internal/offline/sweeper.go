package offline

import (
	"context"
	"log"
	"time"
)

// Sweeper bounds queue and cache growth by dropping entries past their
// retention horizons. Sweep runs on a fixed schedule independent of
// connectivity; its failures are logged and left for the next pass.
type Sweeper struct {
	queue       *Queue
	cache       *SessionCache
	queueMaxAge time.Duration
	cacheMaxAge time.Duration
}

// NewSweeper creates a sweeper over queue and cache.
func NewSweeper(queue *Queue, cache *SessionCache, queueMaxAge, cacheMaxAge time.Duration) *Sweeper {
	return &Sweeper{
		queue:       queue,
		cache:       cache,
		queueMaxAge: queueMaxAge,
		cacheMaxAge: cacheMaxAge,
	}
}

// Sweep drops queue entries older than the queue horizon and cache entries
// older than the cache horizon, persisting both. Abandoned actions are
// dropped silently; the server contract has no notion of resuming a sync
// older than the retention horizon.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (removed, evicted int) {
	removed, err := s.queue.RemoveOlderThan(ctx, s.queueMaxAge, now)
	if err != nil {
		log.Printf("sweep queue: %v", err)
	}

	evicted, err = s.cache.EvictOlderThan(ctx, s.cacheMaxAge, now)
	if err != nil {
		log.Printf("sweep cache: %v", err)
	}

	if removed > 0 || evicted > 0 {
		log.Printf("retention sweep: dropped %d queued actions, evicted %d cached sessions", removed, evicted)
	}
	return removed, evicted
}
