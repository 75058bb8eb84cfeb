package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/louisbranch/storyloom/internal/offline"
)

func TestHealthReportsSyncStateAndPending(t *testing.T) {
	engine := &fakeEngine{
		state: offline.StateSyncing,
		actions: []offline.Action{
			{ID: "a1", Type: offline.ActionSubmitTurn, SessionID: "s1", Timestamp: time.Now().UTC()},
		},
	}
	server := newTestServer(t, engine)

	resp := get(t, server, "/healthz")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.SyncState != offline.StateSyncing || health.Pending != 1 {
		t.Fatalf("health = %+v", health)
	}
}

func TestQueueListsActionsInOrder(t *testing.T) {
	engine := &fakeEngine{actions: []offline.Action{
		{ID: "a1", Type: offline.ActionSubmitTurn, SessionID: "s1"},
		{ID: "a2", Type: offline.ActionSaveGame, SessionID: "s2"},
	}}
	server := newTestServer(t, engine)

	resp := get(t, server, "/v1/queue")
	defer resp.Body.Close()

	var queue queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if queue.Pending != 2 || len(queue.Actions) != 2 {
		t.Fatalf("queue = %+v, want 2 actions", queue)
	}
	if queue.Actions[0].ID != "a1" || queue.Actions[1].ID != "a2" {
		t.Fatalf("actions = %v, want a1 a2", queue.Actions)
	}
}

func TestQueueEmptyIsJSONArray(t *testing.T) {
	server := newTestServer(t, &fakeEngine{})

	resp := get(t, server, "/v1/queue")
	defer resp.Body.Close()

	var queue queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if queue.Actions == nil || len(queue.Actions) != 0 {
		t.Fatalf("actions = %v, want empty array", queue.Actions)
	}
}

func TestSessionLookup(t *testing.T) {
	engine := &fakeEngine{games: map[string]offline.CachedGame{
		"s1": {SessionID: "s1", GameData: json.RawMessage(`{"turn":3}`), Synced: true},
	}}
	server := newTestServer(t, engine)

	resp := get(t, server, "/v1/sessions/s1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var game offline.CachedGame
	if err := json.NewDecoder(resp.Body).Decode(&game); err != nil {
		t.Fatalf("decode game: %v", err)
	}
	if game.SessionID != "s1" || !game.Synced {
		t.Fatalf("game = %+v", game)
	}

	missing := get(t, server, "/v1/sessions/unknown")
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing session status = %d, want 404", missing.StatusCode)
	}
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
}

func newTestServer(t *testing.T, engine Engine) *httptest.Server {
	t.Helper()
	statusServer, err := New(engine)
	if err != nil {
		t.Fatalf("new status server: %v", err)
	}
	server := httptest.NewServer(statusServer.Handler())
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, server *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := server.Client().Get(server.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	return resp
}

type fakeEngine struct {
	state   offline.State
	actions []offline.Action
	games   map[string]offline.CachedGame
}

func (f *fakeEngine) CountPending() int { return len(f.actions) }

func (f *fakeEngine) PendingActions() []offline.Action { return f.actions }

func (f *fakeEngine) CachedGame(sessionID string) (offline.CachedGame, bool) {
	game, ok := f.games[sessionID]
	return game, ok
}

func (f *fakeEngine) SyncState() offline.State {
	if f.state == "" {
		return offline.StateIdle
	}
	return f.state
}
