package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/storyloom/internal/connectivity"
	"github.com/louisbranch/storyloom/internal/storage"
)

// Config tunes the offline engine's retention and retry behavior.
type Config struct {
	// QueueMaxAge is the retention horizon for queued actions.
	QueueMaxAge time.Duration

	// CacheMaxAge is the retention horizon for cached sessions.
	CacheMaxAge time.Duration

	// SweepInterval schedules the retention sweeper.
	SweepInterval time.Duration

	// MaxSyncAttempts caps failed settlements per action before it is
	// dropped. Zero keeps the default behavior: connectivity-triggered
	// retries with no ceiling.
	MaxSyncAttempts int
}

const (
	defaultQueueMaxAge   = 7 * 24 * time.Hour
	defaultCacheMaxAge   = 7 * 24 * time.Hour
	defaultSweepInterval = time.Hour
)

func (c Config) normalized() Config {
	if c.QueueMaxAge <= 0 {
		c.QueueMaxAge = defaultQueueMaxAge
	}
	if c.CacheMaxAge <= 0 {
		c.CacheMaxAge = defaultCacheMaxAge
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// Service owns the action queue, session cache, sync coordinator, and
// retention sweeper as one process-wide engine. Construct it once at
// process start and pass the handle to callers; the UI layer enqueues and
// reads through it but never mutates queue or cache entries directly.
type Service struct {
	store   storage.Store
	syncer  Syncer
	monitor connectivity.Monitor
	cfg     Config

	queue       *Queue
	cache       *SessionCache
	coordinator *Coordinator
	sweeper     *Sweeper

	mu           sync.Mutex
	initialized  bool
	subscription connectivity.Subscription
	stopSweeps   context.CancelFunc
	sweepsDone   chan struct{}
}

// NewService creates the engine. monitor may be nil when the embedding
// layer drives connectivity by calling HandleConnectivity itself.
func NewService(store storage.Store, syncer Syncer, monitor connectivity.Monitor, cfg Config) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer is required")
	}
	cfg = cfg.normalized()

	queue := NewQueue(store)
	cache := NewSessionCache(store)
	return &Service{
		store:       store,
		syncer:      syncer,
		monitor:     monitor,
		cfg:         cfg,
		queue:       queue,
		cache:       cache,
		coordinator: NewCoordinator(queue, cache, syncer, cfg.MaxSyncAttempts),
		sweeper:     NewSweeper(queue, cache, cfg.QueueMaxAge, cfg.CacheMaxAge),
	}, nil
}

// Initialize loads persisted state, subscribes to connectivity changes,
// and schedules the retention sweeper. Loading drops queue entries already
// past the retention horizon, so a restart acts as an implicit sweep.
// Calling Initialize on an initialized service has no additional effect.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	if err := s.queue.Load(ctx, s.cfg.QueueMaxAge, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.cache.Load(ctx); err != nil {
		return err
	}

	if s.monitor != nil {
		s.subscription = s.monitor.Subscribe(func(online bool) {
			s.coordinator.HandleConnectivity(context.Background(), online)
		})
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweeps = cancel
	s.sweepsDone = make(chan struct{})
	go s.runSweeps(sweepCtx)

	s.initialized = true
	return nil
}

// Dispose unsubscribes from connectivity changes and cancels the sweeper
// schedule. A disposed service may be initialized again.
func (s *Service) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return
	}

	if s.subscription != nil {
		s.subscription.Unsubscribe()
		s.subscription = nil
	}
	s.stopSweeps()
	<-s.sweepsDone
	s.initialized = false
}

// Enqueue records a player action for eventual delivery to the server. See
// Queue.Enqueue for the durability boundary of the returned error.
func (s *Service) Enqueue(ctx context.Context, actionType ActionType, sessionID string, data json.RawMessage) (Action, error) {
	return s.queue.Enqueue(ctx, actionType, sessionID, data)
}

// CountPending returns how many actions await confirmation, for advisory
// UI display.
func (s *Service) CountPending() int {
	return s.queue.CountPending()
}

// PendingActions returns a snapshot of queued actions in replay order.
func (s *Service) PendingActions() []Action {
	return s.queue.Drain()
}

// PutGame overwrites the cached snapshot for a session.
func (s *Service) PutGame(ctx context.Context, sessionID string, gameData json.RawMessage, synced bool) error {
	return s.cache.Put(ctx, sessionID, gameData, synced)
}

// CachedGame returns the cached snapshot for a session, if any.
func (s *Service) CachedGame(sessionID string) (CachedGame, bool) {
	return s.cache.Get(sessionID)
}

// HasSession reports whether a session has a cached snapshot.
func (s *Service) HasSession(sessionID string) bool {
	return s.cache.Has(sessionID)
}

// SyncState reports whether a sync attempt is in flight.
func (s *Service) SyncState() State {
	return s.coordinator.State()
}

// HandleConnectivity forwards a connectivity change to the coordinator for
// embedders without a Monitor.
func (s *Service) HandleConnectivity(ctx context.Context, online bool) {
	s.coordinator.HandleConnectivity(ctx, online)
}

func (s *Service) runSweeps(ctx context.Context) {
	defer close(s.sweepsDone)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweeper.Sweep(ctx, time.Now().UTC())
		}
	}
}
