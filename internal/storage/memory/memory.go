// Package memory provides an in-process game store. It backs tests, the
// replay verifier's scratch space, and single-node deployments that do not
// need persistence across restarts.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/grimoire-games/clocktower-server/internal/game"
)

// Store keeps game snapshots and action logs in maps guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	games   map[string][]byte
	actions map[string][]game.ActionRecord
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		games:   make(map[string][]byte),
		actions: make(map[string][]game.ActionRecord),
	}
}

// LoadGame returns a deep copy of the stored game so callers can mutate it
// freely before saving.
func (s *Store) LoadGame(_ context.Context, id string) (*game.Game, error) {
	s.mu.RLock()
	raw, ok := s.games[id]
	s.mu.RUnlock()
	if !ok {
		return nil, game.ErrGameNotFound
	}
	var g game.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// SaveGame stores a snapshot of the game. Serializing through JSON keeps
// the stored copy independent of the caller's pointer graph.
func (s *Store) SaveGame(_ context.Context, g *game.Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.games[g.ID] = raw
	s.mu.Unlock()
	return nil
}

// AppendAction adds a record to the game's action log.
func (s *Store) AppendAction(_ context.Context, rec game.ActionRecord) error {
	s.mu.Lock()
	s.actions[rec.GameID] = append(s.actions[rec.GameID], rec)
	s.mu.Unlock()
	return nil
}

// ListGames returns all stored games, most recently updated first.
func (s *Store) ListGames(_ context.Context) ([]*game.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*game.Game, 0, len(s.games))
	for _, raw := range s.games {
		var g game.Game
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// GameHistory returns the game's action log in append order.
func (s *Store) GameHistory(_ context.Context, gameID string) ([]game.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.actions[gameID]
	out := make([]game.ActionRecord, len(recs))
	copy(out, recs)
	return out, nil
}
