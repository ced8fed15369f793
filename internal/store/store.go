// Package store persists match snapshots keyed by match id.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raidx/scorer/internal/engine"
)

var (
	ErrNotFound    = errors.New("snapshot not found")
	ErrUnavailable = errors.New("storage unavailable")
)

// Snapshot is everything needed to resume a match after a restart.
type Snapshot struct {
	MatchID    string         `json:"matchId"`
	Version    int            `json:"version"`
	State      engine.State   `json:"state"`
	Commentary []string       `json:"commentary"`
	Ended      bool           `json:"ended"`
	Result     *engine.Result `json:"result,omitempty"`
	SavedAt    time.Time      `json:"savedAt"`
}

func encode(s Snapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", s.MatchID, err)
	}
	return b, nil
}

func decode(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

func key(matchID string) string { return "gameStats:" + matchID }
