package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-games/clocktower-server/internal/game"
)

func TestSaveAndLoad(t *testing.T) {
	store := New()
	ctx := context.Background()

	g := &game.Game{
		ID:    "g1",
		Phase: game.PhaseLobby,
		Players: []*game.Player{
			{ID: "p1", Name: "Alice", Seat: 1, Alive: true},
		},
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveGame(ctx, g))

	loaded, err := store.LoadGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", loaded.ID)
	require.Len(t, loaded.Players, 1)
	assert.Equal(t, "Alice", loaded.Players[0].Name)
}

func TestLoadReturnsIndependentCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	g := &game.Game{ID: "g1", Players: []*game.Player{{ID: "p1", Alive: true}}}
	require.NoError(t, store.SaveGame(ctx, g))

	first, err := store.LoadGame(ctx, "g1")
	require.NoError(t, err)
	first.Players[0].Alive = false

	second, err := store.LoadGame(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, second.Players[0].Alive, "mutating a loaded copy must not affect the store")
}

func TestLoadMissingGame(t *testing.T) {
	store := New()
	_, err := store.LoadGame(context.Background(), "nope")
	assert.ErrorIs(t, err, game.ErrGameNotFound)
}

func TestSaveOverwrites(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.SaveGame(ctx, &game.Game{ID: "g1", Phase: game.PhaseLobby}))
	require.NoError(t, store.SaveGame(ctx, &game.Game{ID: "g1", Phase: game.PhaseNight}))

	loaded, err := store.LoadGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, game.PhaseNight, loaded.Phase)
}

func TestListGamesOrder(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveGame(ctx, &game.Game{ID: "old", UpdatedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.SaveGame(ctx, &game.Game{ID: "new", UpdatedAt: now}))

	games, err := store.ListGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "new", games[0].ID)
	assert.Equal(t, "old", games[1].ID)
}

func TestHistoryAppendOrder(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i, typ := range []game.ActionType{game.ActionCreateGame, game.ActionJoinGame, game.ActionStartGame} {
		require.NoError(t, store.AppendAction(ctx, game.ActionRecord{
			GameID:    "g1",
			Type:      typ,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	// Actions for other games stay separate.
	require.NoError(t, store.AppendAction(ctx, game.ActionRecord{GameID: "g2", Type: game.ActionCreateGame}))

	history, err := store.GameHistory(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, game.ActionCreateGame, history[0].Type)
	assert.Equal(t, game.ActionStartGame, history[2].Type)

	empty, err := store.GameHistory(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
