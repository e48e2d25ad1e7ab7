package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-games/clocktower-server/internal/role"
)

func TestNightActionValidation(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	// Wrong phase.
	day := openDay(t, e, g.ID)
	_, err := e.PerformNightAction(ctx, day.ID, ids[3], role.Poisoner, []string{ids[0]})
	assert.ErrorIs(t, err, ErrInvalidPhase)

	g, err = e.OpenNight(ctx, g.ID)
	require.NoError(t, err)

	// Declared role must match the assigned role.
	_, err = e.PerformNightAction(ctx, g.ID, ids[3], role.Imp, []string{ids[0]})
	assert.ErrorIs(t, err, ErrInvalidActor)

	// Target arity must match.
	_, err = e.PerformNightAction(ctx, g.ID, ids[3], role.Poisoner, []string{ids[0], ids[1]})
	assert.ErrorIs(t, err, ErrInvalidActor)

	// Roles without an interactive night action are rejected.
	_, err = e.PerformNightAction(ctx, g.ID, ids[2], role.Soldier, nil)
	assert.ErrorIs(t, err, ErrInvalidActor)

	// Unknown actor.
	_, err = e.PerformNightAction(ctx, g.ID, "ghost", role.Poisoner, []string{ids[0]})
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestPoisonerMovesPoison(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[3], role.Poisoner, []string{ids[0]})
	require.NoError(t, err)
	assert.True(t, g.FindPlayer(ids[0]).Poisoned)

	// A later poison clears the earlier one; exactly one player is ever
	// poisoned.
	g, err = e.PerformNightAction(ctx, g.ID, ids[3], role.Poisoner, []string{ids[1]})
	require.NoError(t, err)
	assert.False(t, g.FindPlayer(ids[0]).Poisoned)
	assert.True(t, g.FindPlayer(ids[1]).Poisoned)

	require.Len(t, g.NightActions, 2)
	assert.True(t, g.NightActions[1].Resolved)
}

func TestPoisonerInvalidTarget(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	// A bad target is recorded as an unresolved action, not an error.
	g, err := e.PerformNightAction(ctx, g.ID, ids[3], role.Poisoner, []string{"ghost"})
	require.NoError(t, err)
	require.Len(t, g.NightActions, 1)
	assert.False(t, g.NightActions[0].Resolved)
	for _, p := range g.Players {
		assert.False(t, p.Poisoned)
	}
}

func TestMonkProtection(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[1], role.Monk, []string{ids[0]})
	require.NoError(t, err)
	assert.True(t, g.FindPlayer(ids[0]).Protected)

	// Self-protection is an unresolved action.
	g, err = e.PerformNightAction(ctx, g.ID, ids[1], role.Monk, []string{ids[1]})
	require.NoError(t, err)
	assert.False(t, g.NightActions[1].Resolved)
	assert.False(t, g.FindPlayer(ids[1]).Protected)
	// The earlier protection still stands.
	assert.True(t, g.FindPlayer(ids[0]).Protected)
}

func TestImpKill(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[4], role.Imp, []string{ids[0]})
	require.NoError(t, err)
	assert.False(t, g.FindPlayer(ids[0]).Alive)
	require.Len(t, g.NightActions, 1)
	assert.True(t, g.NightActions[0].Resolved)
	assert.Equal(t, ids[0], g.NightActions[0].Result["victim"])

	// The kill left two good and two evil alive; parity ends the game.
	assert.Equal(t, PhaseEnded, g.Phase)
	require.NotNil(t, g.Winner)
	assert.Equal(t, role.Evil, *g.Winner)
}

func TestImpBlockedBySoldier(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[4], role.Imp, []string{ids[2]})
	require.NoError(t, err)
	assert.True(t, g.FindPlayer(ids[2]).Alive)
	// The failed kill still resolves; protection beat it, the action did
	// not malfunction.
	require.Len(t, g.NightActions, 1)
	assert.True(t, g.NightActions[0].Resolved)
	assert.Equal(t, true, g.NightActions[0].Result["protected"])
}

func TestImpBlockedByMonkProtection(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	_, err := e.PerformNightAction(ctx, g.ID, ids[1], role.Monk, []string{ids[0]})
	require.NoError(t, err)

	g, err = e.PerformNightAction(ctx, g.ID, ids[4], role.Imp, []string{ids[0]})
	require.NoError(t, err)
	assert.True(t, g.FindPlayer(ids[0]).Alive)
	assert.Equal(t, true, g.NightActions[1].Result["protected"])
}

func TestSoldierBeatsMayorRedirect(t *testing.T) {
	// The Soldier check precedes everything, even when the target also
	// carries protection.
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	_, err := e.PerformNightAction(ctx, g.ID, ids[1], role.Monk, []string{ids[2]})
	require.NoError(t, err)

	g, err = e.PerformNightAction(ctx, g.ID, ids[4], role.Imp, []string{ids[2]})
	require.NoError(t, err)
	assert.Contains(t, g.NightActions[1].Result["message"], "Soldier")
}

func TestMayorRedirect(t *testing.T) {
	e, _ := newTestEngine(t, 23)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Mayor, role.Soldier, role.Poisoner, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[4], role.Imp, []string{ids[1]})
	require.NoError(t, err)

	require.Len(t, g.NightActions, 1)
	result := g.NightActions[0].Result
	assert.Equal(t, true, result["redirected"])
	assert.Equal(t, ids[1], result["original_target"])

	// The Mayor survives and somebody else died.
	assert.True(t, g.FindPlayer(ids[1]).Alive)
	victim := result["victim"].(string)
	assert.NotEqual(t, ids[1], victim)
	assert.NotEqual(t, ids[4], victim)
	assert.False(t, g.FindPlayer(victim).Alive)
}

func TestImpSelfKillSuccession(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	evilBefore := 0
	for _, p := range g.Players {
		if p.Alive && p.Alignment == role.Evil {
			evilBefore++
		}
	}

	g, err := e.PerformNightAction(ctx, g.ID, ids[4], role.Imp, []string{ids[4]})
	require.NoError(t, err)

	assert.False(t, g.FindPlayer(ids[4]).Alive)
	// The lowest-seat living minion inherits the demon.
	assert.Equal(t, role.Imp, g.FindPlayer(ids[3]).Role)
	assert.Equal(t, ids[3], g.NightActions[0].Result["new_imp"])

	// Succession preserves the living evil count minus the suicide.
	evilAfter := 0
	for _, p := range g.Players {
		if p.Alive && p.Alignment == role.Evil {
			evilAfter++
		}
	}
	assert.Equal(t, evilBefore-1, evilAfter)
	assert.NotEqual(t, PhaseEnded, g.Phase)
}

func TestImpSelfKillWithoutMinion(t *testing.T) {
	// With no living minion the self-kill falls through to a normal kill
	// and good wins.
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Virgin, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[4], role.Imp, []string{ids[4]})
	require.NoError(t, err)

	assert.False(t, g.FindPlayer(ids[4]).Alive)
	assert.Equal(t, PhaseEnded, g.Phase)
	require.NotNil(t, g.Winner)
	assert.Equal(t, role.Good, *g.Winner)
}

func TestFortuneTellerReadings(t *testing.T) {
	e, _ := newTestEngine(t, 17)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.FortuneTeller, role.Chef, role.Soldier, role.Poisoner, role.Imp,
	})

	// Checking the Imp always answers yes.
	g, err := e.PerformNightAction(ctx, g.ID, ids[0], role.FortuneTeller, []string{ids[4], ids[3]})
	require.NoError(t, err)
	last := g.PlayerInfo[len(g.PlayerInfo)-1]
	assert.Equal(t, true, last.Information["demon_detected"])

	// Checking the red herring also answers yes.
	var herringID string
	for _, p := range g.Players {
		if p.RedHerring {
			herringID = p.ID
		}
	}
	require.NotEmpty(t, herringID)
	require.NotEqual(t, herringID, ids[0])

	other := ids[3]
	if other == herringID {
		other = ids[2]
	}
	g, err = e.PerformNightAction(ctx, g.ID, ids[0], role.FortuneTeller, []string{herringID, other})
	require.NoError(t, err)
	last = g.PlayerInfo[len(g.PlayerInfo)-1]
	assert.Equal(t, true, last.Information["demon_detected"])
}

func TestFortuneTellerNoDemon(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.FortuneTeller, role.Chef, role.Soldier, role.Poisoner, role.Imp,
	})

	var clean []string
	for _, id := range []string{ids[1], ids[2], ids[3]} {
		if !g.FindPlayer(id).RedHerring {
			clean = append(clean, id)
		}
	}
	require.GreaterOrEqual(t, len(clean), 2)

	g, err := e.PerformNightAction(ctx, g.ID, ids[0], role.FortuneTeller, clean[:2])
	require.NoError(t, err)
	last := g.PlayerInfo[len(g.PlayerInfo)-1]
	assert.Equal(t, false, last.Information["demon_detected"])
	assert.Equal(t, "NO - neither is a Demon", last.Information["message"])
}

func TestButlerRecordsMaster(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Butler, role.Chef, role.Soldier, role.Poisoner, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[0], role.Butler, []string{ids[1]})
	require.NoError(t, err)
	assert.Equal(t, ids[1], g.FindPlayer(ids[0]).MasterID)

	// Choosing yourself as master fails.
	g, err = e.PerformNightAction(ctx, g.ID, ids[0], role.Butler, []string{ids[0]})
	require.NoError(t, err)
	assert.False(t, g.NightActions[1].Resolved)
}

func TestRavenkeeperReveal(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Ravenkeeper, role.Chef, role.Soldier, role.Poisoner, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[0], role.Ravenkeeper, []string{ids[3]})
	require.NoError(t, err)
	last := g.PlayerInfo[len(g.PlayerInfo)-1]
	assert.Equal(t, role.Ravenkeeper, last.InformationType)
	assert.Equal(t, string(role.Poisoner), last.Information["role"])
}

func TestEmpathCountsAliveNeighborsOnly(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Empath, role.Chef, role.Soldier, role.Poisoner, role.Imp,
	})

	// Night 2: the Empath sits between the Imp (seat 5, wraparound) and the
	// Chef (seat 2).
	openDay(t, e, g.ID)
	g, err := e.OpenNight(ctx, g.ID)
	require.NoError(t, err)

	info := infoFor(g, ids[0])
	require.NotEmpty(t, info)
	last := info[len(info)-1]
	assert.Equal(t, 1, last.Information["evil_neighbors"])

	// Kill the Imp neighbor; the next living neighbor is the Poisoner, so
	// the count stays 1 but skips the dead seat.
	g.FindPlayer(ids[4]).Alive = false
	rec := empathInfo(g, g.FindPlayer(ids[0]))
	assert.Equal(t, 1, rec.Information["evil_neighbors"])
	neighbors := rec.Information["neighbors"].([]map[string]any)
	neighborIDs := []string{neighbors[0]["id"].(string), neighbors[1]["id"].(string)}
	assert.Contains(t, neighborIDs, ids[3])
	assert.NotContains(t, neighborIDs, ids[4])
}

func TestUndertakerLearnsExecutedRole(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Undertaker, role.Chef, role.Soldier, role.Monk, role.Poisoner, role.ScarletWoman, role.Imp,
	})

	// Night 1: the Undertaker learns nothing.
	assert.Empty(t, infoFor(g, ids[0]))

	openDay(t, e, g.ID)
	g, err := e.ExecutePlayer(ctx, g.ID, ids[4])
	require.NoError(t, err)
	require.NotEqual(t, PhaseEnded, g.Phase)

	g, err = e.OpenNight(ctx, g.ID)
	require.NoError(t, err)

	info := infoFor(g, ids[0])
	require.Len(t, info, 1)
	assert.Equal(t, string(role.Poisoner), info[0].Information["role"])
}

func TestUndertakerNoExecution(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Undertaker, role.Chef, role.Soldier, role.Poisoner, role.Imp,
	})

	openDay(t, e, g.ID)
	g, err := e.OpenNight(ctx, g.ID)
	require.NoError(t, err)

	info := infoFor(g, ids[0])
	require.Len(t, info, 1)
	assert.Equal(t, "No execution occurred today", info[0].Information["message"])
}

func TestSpySeesGrimoire(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Spy, role.Imp,
	})

	openDay(t, e, g.ID)
	g, err := e.OpenNight(ctx, g.ID)
	require.NoError(t, err)

	info := infoFor(g, ids[3])
	require.Len(t, info, 1)
	grimoire, ok := info[0].Information["grimoire"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, grimoire, 5)
	entry := grimoire[0]
	assert.Equal(t, string(role.Chef), entry["role"])
	assert.Equal(t, string(role.Good), entry["alignment"])
}

func TestDeadPlayerCannotAct(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	ctx := context.Background()
	g, ids := startGameWith(t, e, []role.Role{
		role.Chef, role.Monk, role.Soldier, role.Poisoner, role.Imp,
	})

	g, err := e.PerformNightAction(ctx, g.ID, ids[4], role.Imp, []string{ids[3]})
	require.NoError(t, err)
	require.False(t, g.FindPlayer(ids[3]).Alive)

	_, err = e.PerformNightAction(ctx, g.ID, ids[3], role.Poisoner, []string{ids[0]})
	assert.ErrorIs(t, err, ErrInvalidActor)
}
