// Package offline implements the action queue and synchronization engine
// that keeps the storytelling client playable while disconnected. Player
// actions are durably recorded in enqueue order, replayed to the remote
// generation service when connectivity returns, and reconciled per item
// against the server's response. The server stays the semantic authority
// for session state once an action is confirmed.
package offline

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ActionType tags the kind of player action recorded in the queue.
type ActionType string

const (
	// ActionSubmitTurn submits player input for narrative generation.
	ActionSubmitTurn ActionType = "submit_turn"

	// ActionSaveGame persists a session snapshot server-side.
	ActionSaveGame ActionType = "save_game"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionSubmitTurn, ActionSaveGame:
		return true
	default:
		return false
	}
}

// Action is one player-initiated operation awaiting server processing.
// Data is opaque to the queue; Type selects how the calling layer and the
// server interpret it.
type Action struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Validate checks the fields the queue relies on.
func (a Action) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("action id is required")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.SessionID == "" {
		return fmt.Errorf("action session id is required")
	}
	return nil
}

// Before reports whether a precedes b in queue order. The order is total:
// timestamp first, id as tiebreaker.
func (a Action) Before(b Action) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

func sortActions(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Before(actions[j])
	})
}
