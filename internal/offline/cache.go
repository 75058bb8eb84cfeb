package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/storyloom/internal/storage"
)

// storageKeyCache is the blob key holding the session-id keyed JSON object
// of cached games.
const storageKeyCache = "cached_games"

// CachedGame is the last-known snapshot of one game session. GameData is
// owned semantically by the server; Synced=false marks local optimistic
// state the server has not confirmed yet.
type CachedGame struct {
	SessionID string          `json:"session_id"`
	GameData  json.RawMessage `json:"game_data"`
	Synced    bool            `json:"is_synced"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SessionCache mirrors per-session game state for offline continuity.
// Writes are last-writer-wins with no merge; the cache never triggers
// network calls.
type SessionCache struct {
	store storage.Store

	mu    sync.Mutex
	games map[string]CachedGame
}

// NewSessionCache creates an empty cache persisting through store.
func NewSessionCache(store storage.Store) *SessionCache {
	return &SessionCache{store: store, games: make(map[string]CachedGame)}
}

// Put overwrites the entry for sessionID and flushes the cache.
func (c *SessionCache) Put(ctx context.Context, sessionID string, gameData json.RawMessage, synced bool) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.games[sessionID] = CachedGame{
		SessionID: sessionID,
		GameData:  gameData,
		Synced:    synced,
		UpdatedAt: time.Now().UTC(),
	}
	if err := c.persistLocked(ctx); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	return nil
}

// Get returns the cached entry for sessionID and whether one exists.
func (c *SessionCache) Get(sessionID string) (CachedGame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	game, ok := c.games[sessionID]
	return game, ok
}

// Has reports whether sessionID has a cache entry.
func (c *SessionCache) Has(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.games[sessionID]
	return ok
}

// MarkSynced flips the entry for sessionID to confirmed state and flushes
// the cache. Marking an absent session is a no-op.
func (c *SessionCache) MarkSynced(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	game, ok := c.games[sessionID]
	if !ok || game.Synced {
		return nil
	}
	game.Synced = true
	c.games[sessionID] = game

	if err := c.persistLocked(ctx); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	return nil
}

// EvictOlderThan removes entries whose last write is at or past the
// retention horizon, regardless of sync status, and flushes the cache. It
// returns the number evicted.
func (c *SessionCache) EvictOlderThan(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-maxAge)
	evicted := 0
	for sessionID, game := range c.games {
		if !game.UpdatedAt.After(cutoff) {
			delete(c.games, sessionID)
			evicted++
		}
	}

	if evicted == 0 {
		return 0, nil
	}
	if err := c.persistLocked(ctx); err != nil {
		return evicted, fmt.Errorf("flush cache: %w", err)
	}
	return evicted, nil
}

// Len returns the number of cached sessions.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.games)
}

// Load replaces the in-memory cache with the persisted one. A corrupt blob
// degrades to an empty cache rather than failing.
func (c *SessionCache) Load(ctx context.Context) error {
	blob, ok, err := c.store.Get(ctx, storageKeyCache)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	games := make(map[string]CachedGame)
	if ok {
		if err := json.Unmarshal(blob, &games); err != nil {
			log.Printf("cache blob corrupt, starting empty: %v", err)
			games = make(map[string]CachedGame)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.games = games
	return nil
}

func (c *SessionCache) persistLocked(ctx context.Context) error {
	blob, err := json.Marshal(c.games)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return c.store.Set(ctx, storageKeyCache, blob)
}
