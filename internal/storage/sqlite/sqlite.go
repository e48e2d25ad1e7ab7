// Package sqlite provides a file-backed game store using the pure-Go
// SQLite driver, suitable for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grimoire-games/clocktower-server/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
    id         TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS game_actions (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id   TEXT NOT NULL,
    type      TEXT NOT NULL,
    payload   TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    FOREIGN KEY (game_id) REFERENCES games(id)
);

CREATE INDEX IF NOT EXISTS idx_game_actions_game_id ON game_actions(game_id);
`

// Store persists games and their action logs in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	// SQLite allows a single writer; a pool of one avoids lock contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadGame(ctx context.Context, id string) (*game.Game, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM games WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	var g game.Game
	if err := json.Unmarshal([]byte(state), &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

func (s *Store) SaveGame(ctx context.Context, g *game.Game) error {
	state, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO games (id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    state      = excluded.state,
		    updated_at = excluded.updated_at`,
		g.ID, string(state),
		g.CreatedAt.UTC().Format(time.RFC3339Nano),
		g.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) AppendAction(ctx context.Context, rec game.ActionRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode action payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO game_actions (game_id, type, payload, timestamp)
		VALUES (?, ?, ?, ?)`,
		rec.GameID, string(rec.Type), string(payload),
		rec.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append action for %s: %w", rec.GameID, err)
	}
	return nil
}

func (s *Store) ListGames(ctx context.Context) ([]*game.Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM games ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []*game.Game
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, err
		}
		var g game.Game
		if err := json.Unmarshal([]byte(state), &g); err != nil {
			return nil, fmt.Errorf("decode game: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *Store) GameHistory(ctx context.Context, gameID string) ([]game.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, payload, timestamp
		FROM game_actions
		WHERE game_id = ?
		ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", gameID, err)
	}
	defer rows.Close()

	var out []game.ActionRecord
	for rows.Next() {
		var (
			typ     string
			payload string
			ts      string
		)
		if err := rows.Scan(&typ, &payload, &ts); err != nil {
			return nil, err
		}
		rec := game.ActionRecord{GameID: gameID, Type: game.ActionType(typ)}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode action payload: %w", err)
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse action timestamp: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
