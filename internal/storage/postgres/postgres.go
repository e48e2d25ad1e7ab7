// Package postgres provides a PostgreSQL-backed game store for multi-node
// deployments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grimoire-games/clocktower-server/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
    id         TEXT PRIMARY KEY,
    state      JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS game_actions (
    id        BIGSERIAL PRIMARY KEY,
    game_id   TEXT NOT NULL REFERENCES games(id),
    type      TEXT NOT NULL,
    payload   JSONB NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_game_actions_game_id ON game_actions(game_id);
`

// Store persists games and their action logs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool against the given database URL and
// applies the schema.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) LoadGame(ctx context.Context, id string) (*game.Game, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM games WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	var g game.Game
	if err := json.Unmarshal(state, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

func (s *Store) SaveGame(ctx context.Context, g *game.Game) error {
	state, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO games (id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
		    state      = excluded.state,
		    updated_at = excluded.updated_at`,
		g.ID, state, g.CreatedAt, g.UpdatedAt)
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
	_, err = s.pool.Exec(ctx, `
		INSERT INTO game_actions (game_id, type, payload, timestamp)
		VALUES ($1, $2, $3, $4)`,
		rec.GameID, string(rec.Type), payload, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("append action for %s: %w", rec.GameID, err)
	}
	return nil
}

func (s *Store) ListGames(ctx context.Context) ([]*game.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state FROM games ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []*game.Game
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, err
		}
		var g game.Game
		if err := json.Unmarshal(state, &g); err != nil {
			return nil, fmt.Errorf("decode game: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *Store) GameHistory(ctx context.Context, gameID string) ([]game.ActionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT type, payload, timestamp
		FROM game_actions
		WHERE game_id = $1
		ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", gameID, err)
	}
	defer rows.Close()

	var out []game.ActionRecord
	for rows.Next() {
		var (
			typ     string
			payload []byte
		)
		rec := game.ActionRecord{GameID: gameID}
		if err := rows.Scan(&typ, &payload, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Type = game.ActionType(typ)
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode action payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
