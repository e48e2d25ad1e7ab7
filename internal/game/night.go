package game

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/grimoire-games/clocktower-server/internal/role"
	"go.uber.org/zap"
)

// nightResult is the uniform outcome of one interactive night ability.
// Exactly one of action/info is set for state-mutating vs pure-information
// roles; killed marks outcomes that require win-condition evaluation.
type nightResult struct {
	action *NightAction
	info   *PlayerInfo
	killed bool
}

// nightResolver applies one role's night effect to the snapshot. Resolvers
// for kill/protect abilities record targeting failures as resolved:false
// actions instead of returning errors, preserving the audit trail.
type nightResolver func(g *Game, actor *Player, targets []string, rng *rand.Rand) nightResult

// nightResolvers dispatches interactive night abilities by role. The table
// is checked against the registry at init time.
var nightResolvers = map[role.Role]nightResolver{
	role.Poisoner:      resolvePoisoner,
	role.Imp:           resolveImp,
	role.Monk:          resolveMonk,
	role.Butler:        resolveButler,
	role.FortuneTeller: resolveFortuneTeller,
	role.Ravenkeeper:   resolveRavenkeeper,
}

func init() {
	// Every targeted night role in the registry must have a resolver.
	for _, r := range role.ByTiming(role.TimingNight) {
		if role.TargetsOf(r) == 0 {
			continue
		}
		if _, ok := nightResolvers[r]; !ok {
			panic(fmt.Sprintf("game: no night resolver registered for role %s", r))
		}
	}
}

// PerformNightAction validates and resolves one interactive night ability.
// The declared role must match the actor's assigned role and the target
// count must match the role's arity.
func (e *Engine) PerformNightAction(ctx context.Context, gameID, playerID string, r role.Role, targets []string) (*Game, error) {
	lock := e.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	g, err := e.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := checkMutable(g); err != nil {
		return nil, err
	}
	if g.Phase != PhaseNight {
		return nil, fmt.Errorf("%w: night actions require the night phase", ErrInvalidPhase)
	}

	actor := g.FindPlayer(playerID)
	if actor == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	if !actor.Alive || actor.Role != r {
		return nil, fmt.Errorf("%w: player %s cannot act as %s", ErrInvalidActor, playerID, r)
	}

	resolver, ok := nightResolvers[r]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no interactive night action", ErrInvalidActor, r)
	}
	if want := role.TargetsOf(r); len(targets) != want {
		return nil, fmt.Errorf("%w: %s requires exactly %d target(s)", ErrInvalidActor, r, want)
	}

	res := resolver(g, actor, targets, e.rng(g))

	var resultPayload map[string]any
	if res.action != nil {
		g.NightActions = append(g.NightActions, res.action)
		resultPayload = res.action.Result
	}
	if res.info != nil {
		g.PlayerInfo = append(g.PlayerInfo, res.info)
		resultPayload = res.info.Information
	}
	if res.killed {
		e.finishIfWon(g)
	}

	if err := e.persist(ctx, g, ActionNightAction, map[string]any{
		"player_id": playerID,
		"role":      string(r),
		"targets":   targets,
		"result":    resultPayload,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("night action resolved",
		zap.String("game_id", gameID),
		zap.String("player_id", playerID),
		zap.String("role", string(r)),
	)
	return g, nil
}

func failedAction(rng *rand.Rand, actor *Player, r role.Role, targets []string, msg string) *NightAction {
	return &NightAction{
		ID:       newID(rng),
		PlayerID: actor.ID,
		Role:     r,
		Targets:  targets,
		Resolved: false,
		Result:   map[string]any{"message": msg},
	}
}

// resolvePoisoner sets the single global poison target for the night. A
// later poison overwrites an earlier one.
func resolvePoisoner(g *Game, actor *Player, targets []string, rng *rand.Rand) nightResult {
	target := g.FindPlayer(targets[0])
	if target == nil {
		return nightResult{action: failedAction(rng, actor, role.Poisoner, targets, "Invalid target")}
	}

	for _, p := range g.Players {
		p.Poisoned = false
	}
	target.Poisoned = true

	return nightResult{action: &NightAction{
		ID:       newID(rng),
		PlayerID: actor.ID,
		Role:     role.Poisoner,
		Targets:  targets,
		Resolved: true,
		Result: map[string]any{
			"target_name": target.Name,
			"message":     fmt.Sprintf("%s has been poisoned", target.Name),
		},
	}}
}

// resolveMonk protects one living player, not the Monk, for the night. Any
// previous protection is cleared first.
func resolveMonk(g *Game, actor *Player, targets []string, rng *rand.Rand) nightResult {
	target := g.FindPlayer(targets[0])
	if target == nil || target.ID == actor.ID || !target.Alive {
		return nightResult{action: failedAction(rng, actor, role.Monk, targets, "Invalid target")}
	}

	for _, p := range g.Players {
		p.Protected = false
	}
	target.Protected = true

	return nightResult{action: &NightAction{
		ID:       newID(rng),
		PlayerID: actor.ID,
		Role:     role.Monk,
		Targets:  targets,
		Resolved: true,
		Result: map[string]any{
			"target_name": target.Name,
			"message":     fmt.Sprintf("%s is protected tonight", target.Name),
		},
	}}
}

// resolveButler records the Butler's chosen master for tomorrow's vote.
func resolveButler(g *Game, actor *Player, targets []string, rng *rand.Rand) nightResult {
	master := g.FindPlayer(targets[0])
	if master == nil || master.ID == actor.ID || !master.Alive {
		return nightResult{action: failedAction(rng, actor, role.Butler, targets, "Invalid master choice")}
	}

	actor.MasterID = master.ID

	return nightResult{action: &NightAction{
		ID:       newID(rng),
		PlayerID: actor.ID,
		Role:     role.Butler,
		Targets:  targets,
		Resolved: true,
		Result: map[string]any{
			"master_name": master.Name,
			"message":     fmt.Sprintf("%s is your master tomorrow", master.Name),
		},
	}}
}

// resolveFortuneTeller answers whether either chosen player is the Imp or
// carries the red-herring flag. Never mutates state.
func resolveFortuneTeller(g *Game, actor *Player, targets []string, _ *rand.Rand) nightResult {
	var chosen []*Player
	for _, id := range targets {
		if p := g.FindPlayer(id); p != nil {
			chosen = append(chosen, p)
		}
	}

	detected := false
	views := make([]map[string]any, len(chosen))
	for i, p := range chosen {
		if p.Role == role.Imp || p.RedHerring {
			detected = true
		}
		views[i] = map[string]any{"id": p.ID, "name": p.Name}
	}

	msg := "NO - neither is a Demon"
	if detected {
		msg = "YES - at least one is a Demon"
	}

	return nightResult{info: &PlayerInfo{
		PlayerID:        actor.ID,
		InformationType: role.FortuneTeller,
		Information: map[string]any{
			"targets":        views,
			"demon_detected": detected,
			"message":        msg,
		},
		NightReceived: g.DayNumber,
	}}
}

// resolveRavenkeeper reveals the target's true role. The resolver does not
// enforce the died-tonight condition; the caller restricts when it fires.
func resolveRavenkeeper(g *Game, actor *Player, targets []string, _ *rand.Rand) nightResult {
	target := g.FindPlayer(targets[0])
	if target == nil {
		return nightResult{info: &PlayerInfo{
			PlayerID:        actor.ID,
			InformationType: role.Ravenkeeper,
			Information:     map[string]any{"message": "Invalid target"},
			NightReceived:   g.DayNumber,
		}}
	}

	return nightResult{info: &PlayerInfo{
		PlayerID:        actor.ID,
		InformationType: role.Ravenkeeper,
		Information: map[string]any{
			"target":  map[string]any{"id": target.ID, "name": target.Name},
			"role":    string(target.Role),
			"message": fmt.Sprintf("%s is the %s", target.Name, target.Role),
		},
		NightReceived: g.DayNumber,
	}}
}

// resolveImp resolves the demon kill. Precedence order, first match wins:
// Soldier immunity, Monk protection, Mayor redirect, self-target
// succession, normal kill.
func resolveImp(g *Game, actor *Player, targets []string, rng *rand.Rand) nightResult {
	target := g.FindPlayer(targets[0])
	if target == nil {
		return nightResult{action: failedAction(rng, actor, role.Imp, targets, "Invalid target")}
	}

	newAction := func(resolved bool, result map[string]any) *NightAction {
		return &NightAction{
			ID:       newID(rng),
			PlayerID: actor.ID,
			Role:     role.Imp,
			Targets:  targets,
			Resolved: resolved,
			Result:   result,
		}
	}

	if target.Role == role.Soldier {
		return nightResult{action: newAction(true, map[string]any{
			"victim":    target.ID,
			"protected": true,
			"message":   fmt.Sprintf("%s is protected by Soldier ability", target.Name),
		})}
	}

	if target.Protected {
		return nightResult{action: newAction(true, map[string]any{
			"victim":    target.ID,
			"protected": true,
			"message":   fmt.Sprintf("%s is protected by the Monk", target.Name),
		})}
	}

	if target.Role == role.Mayor {
		var pool []*Player
		for _, p := range g.Players {
			if p.Alive && p.ID != target.ID && p.ID != actor.ID {
				pool = append(pool, p)
			}
		}
		if len(pool) > 0 {
			victim := pool[rng.Intn(len(pool))]
			victim.Alive = false
			return nightResult{
				action: newAction(true, map[string]any{
					"victim":          victim.ID,
					"redirected":      true,
					"original_target": target.ID,
					"message":         fmt.Sprintf("Attack on %s redirected to %s", target.Name, victim.Name),
				}),
				killed: true,
			}
		}
		// No eligible redirect target; the Mayor dies normally.
	}

	if target.ID == actor.ID {
		if successor := lowestSeatMinion(g); successor != nil {
			successor.Role = role.Imp
			actor.Alive = false
			return nightResult{
				action: newAction(true, map[string]any{
					"killed_self": true,
					"new_imp":     successor.ID,
					"message":     fmt.Sprintf("%s killed themselves. %s is now the Imp!", actor.Name, successor.Name),
				}),
				killed: true,
			}
		}
	}

	target.Alive = false
	return nightResult{
		action: newAction(true, map[string]any{
			"victim":  target.ID,
			"message": fmt.Sprintf("%s was killed by the Imp", target.Name),
		}),
		killed: true,
	}
}

// lowestSeatMinion returns the living evil non-Imp player with the lowest
// seat, the explicit succession policy for a self-targeting demon.
func lowestSeatMinion(g *Game) *Player {
	for _, p := range g.Players {
		if p.Alive && p.Alignment == role.Evil && p.Role != role.Imp {
			return p
		}
	}
	return nil
}

// runNightInformation runs the passive information abilities of every
// living player when a night opens: Empath and Spy each night, Undertaker
// from the second night on.
func (e *Engine) runNightInformation(g *Game) {
	for _, p := range g.Players {
		if !p.Alive {
			continue
		}
		switch p.Role {
		case role.Empath:
			g.PlayerInfo = append(g.PlayerInfo, empathInfo(g, p))
		case role.Undertaker:
			if g.DayNumber > 1 {
				g.PlayerInfo = append(g.PlayerInfo, undertakerInfo(g, p))
			}
		case role.Spy:
			g.PlayerInfo = append(g.PlayerInfo, spyInfo(g, p))
		}
	}
}

// empathInfo counts the evil players among the Empath's two living
// neighbors.
func empathInfo(g *Game, empath *Player) *PlayerInfo {
	neighbors := g.aliveNeighbors(empath.ID)
	evil := 0
	views := make([]map[string]any, len(neighbors))
	for i, n := range neighbors {
		if n.Alignment == role.Evil {
			evil++
		}
		views[i] = map[string]any{"id": n.ID, "name": n.Name}
	}

	return &PlayerInfo{
		PlayerID:        empath.ID,
		InformationType: role.Empath,
		Information: map[string]any{
			"evil_neighbors": evil,
			"neighbors":      views,
			"message":        fmt.Sprintf("%d of your living neighbors are evil", evil),
		},
		NightReceived: g.DayNumber,
	}
}

// undertakerInfo reveals the role of the player executed during the
// preceding day, or reports that no execution occurred.
func undertakerInfo(g *Game, undertaker *Player) *PlayerInfo {
	if g.LastExecution == nil {
		return &PlayerInfo{
			PlayerID:        undertaker.ID,
			InformationType: role.Undertaker,
			Information:     map[string]any{"message": "No execution occurred today"},
			NightReceived:   g.DayNumber,
		}
	}

	executed := g.FindPlayer(g.LastExecution.PlayerID)
	info := map[string]any{
		"role": string(g.LastExecution.Role),
	}
	name := "Unknown"
	if executed != nil {
		name = executed.Name
		info["executed_player"] = map[string]any{"id": executed.ID, "name": executed.Name}
	}
	info["message"] = fmt.Sprintf("%s was the %s", name, g.LastExecution.Role)

	return &PlayerInfo{
		PlayerID:        undertaker.ID,
		InformationType: role.Undertaker,
		Information:     info,
		NightReceived:   g.DayNumber,
	}
}

// spyInfo grants the Spy the complete grimoire: every player's role,
// alignment and life state.
func spyInfo(g *Game, spy *Player) *PlayerInfo {
	grimoire := make([]map[string]any, 0, len(g.Players))
	for _, p := range g.Players {
		if p.Role == "" {
			continue
		}
		grimoire = append(grimoire, map[string]any{
			"id":        p.ID,
			"name":      p.Name,
			"role":      string(p.Role),
			"alignment": string(p.Alignment),
			"alive":     p.Alive,
		})
	}

	return &PlayerInfo{
		PlayerID:        spy.ID,
		InformationType: role.Spy,
		Information: map[string]any{
			"grimoire": grimoire,
			"message":  "You see the complete Grimoire (all player roles)",
		},
		NightReceived: g.DayNumber,
	}
}
