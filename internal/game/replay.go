package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/grimoire-games/clocktower-server/internal/role"
	"go.uber.org/zap"
)

// ErrReplayDiverged reports that re-running a game's action history did not
// reproduce the stored snapshot.
var ErrReplayDiverged = errors.New("replay diverged from stored snapshot")

// Rebuild reconstructs a game by re-applying its full action history
// through a fresh engine backed by the scratch store. Because every random
// choice and generated id derives from the recorded seed and step counter,
// a faithful history rebuilds the snapshot exactly (timestamps aside).
func Rebuild(ctx context.Context, history []ActionRecord, scratch Store, logger *zap.Logger) (*Game, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("empty history")
	}
	first := history[0]
	if first.Type != ActionCreateGame {
		return nil, fmt.Errorf("history must begin with %s, got %s", ActionCreateGame, first.Type)
	}
	seedStr, _ := first.Payload["seed"].(string)
	seed, err := strconv.ParseInt(seedStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse recorded seed %q: %w", seedStr, err)
	}

	engine := NewEngine(scratch, logger)
	engine.SetSeedFunc(func() int64 { return seed })

	g, err := engine.CreateGame(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay create: %w", err)
	}
	if g.ID != first.GameID {
		return nil, fmt.Errorf("%w: rebuilt game id %s, recorded %s", ErrReplayDiverged, g.ID, first.GameID)
	}

	for i, rec := range history[1:] {
		if g, err = applyRecord(ctx, engine, g.ID, rec); err != nil {
			return nil, fmt.Errorf("replay action %d (%s): %w", i+1, rec.Type, err)
		}
	}
	return g, nil
}

// applyRecord re-issues the engine command a history record describes.
func applyRecord(ctx context.Context, engine *Engine, gameID string, rec ActionRecord) (*Game, error) {
	p := rec.Payload
	switch rec.Type {
	case ActionJoinGame:
		return engine.AddPlayer(ctx, gameID, stringField(p, "name"))
	case ActionAssignRoles:
		// In-memory payloads keep their original map type; payloads read
		// back from a database arrive as map[string]any.
		if typed, ok := p["assignments"].(map[string]role.Role); ok {
			return engine.AssignRoles(ctx, gameID, typed)
		}
		raw, _ := p["assignments"].(map[string]any)
		assignments := make(map[string]role.Role, len(raw))
		for id, r := range raw {
			name, _ := r.(string)
			assignments[id] = role.Role(name)
		}
		return engine.AssignRoles(ctx, gameID, assignments)
	case ActionStartGame:
		return engine.StartGame(ctx, gameID)
	case ActionAdvancePhase:
		if stringField(p, "to") == string(PhaseDay) {
			return engine.OpenDay(ctx, gameID)
		}
		return engine.OpenNight(ctx, gameID)
	case ActionNominate:
		return engine.Nominate(ctx, gameID, stringField(p, "nominator_id"), stringField(p, "nominee_id"))
	case ActionVote:
		vote, _ := p["vote"].(bool)
		return engine.Vote(ctx, gameID, stringField(p, "voter_id"), vote)
	case ActionCloseNomination:
		return engine.CloseNomination(ctx, gameID)
	case ActionExecutePlayer:
		return engine.ExecutePlayer(ctx, gameID, stringField(p, "player_id"))
	case ActionNightAction:
		return engine.PerformNightAction(ctx, gameID,
			stringField(p, "player_id"),
			role.Role(stringField(p, "role")),
			stringsField(p, "targets"))
	case ActionSlayerShot:
		return engine.SlayerShot(ctx, gameID, stringField(p, "player_id"), stringField(p, "target_id"))
	case ActionVirginTrigger:
		return engine.VirginTrigger(ctx, gameID, stringField(p, "virgin_id"), stringField(p, "nominator_id"))
	default:
		return nil, fmt.Errorf("unknown action type %s", rec.Type)
	}
}

// VerifyHistory replays a stored game's action log into the scratch store
// and checks that the reconstructed snapshot's checksum matches the stored
// one.
func VerifyHistory(ctx context.Context, store Store, scratch Store, gameID string, logger *zap.Logger) error {
	stored, err := store.LoadGame(ctx, gameID)
	if err != nil {
		return fmt.Errorf("load game %s: %w", gameID, err)
	}
	history, err := store.GameHistory(ctx, gameID)
	if err != nil {
		return fmt.Errorf("load history for %s: %w", gameID, err)
	}

	rebuilt, err := Rebuild(ctx, history, scratch, logger)
	if err != nil {
		return err
	}

	want, err := stored.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("checksum stored snapshot: %w", err)
	}
	ok, err := rebuilt.VerifyChecksum(want)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: game %s", ErrReplayDiverged, gameID)
	}

	logger.Info("replay verified",
		zap.String("game_id", gameID),
		zap.Int("actions", len(history)),
	)
	return nil
}

func stringField(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func stringsField(p map[string]any, key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		// In-memory payloads keep their original slice type.
		if ss, ok := p[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
