package game

import (
	"context"
	"fmt"

	"github.com/grimoire-games/clocktower-server/internal/role"
	"go.uber.org/zap"
)

// Nominate opens the single in-flight nomination of the day. Both nominator
// and nominee must be alive, and no other nomination may be open.
func (e *Engine) Nominate(ctx context.Context, gameID, nominatorID, nomineeID string) (*Game, error) {
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
	if g.Phase != PhaseDay {
		return nil, fmt.Errorf("%w: nominations require the day phase", ErrInvalidPhase)
	}
	if g.CurrentNomination != nil && !g.CurrentNomination.Closed {
		return nil, fmt.Errorf("%w: another nomination is open", ErrInvalidActor)
	}

	nominator := g.FindPlayer(nominatorID)
	nominee := g.FindPlayer(nomineeID)
	if nominator == nil || nominee == nil {
		return nil, fmt.Errorf("%w: nominator or nominee unknown", ErrPlayerNotFound)
	}
	if !nominator.Alive || !nominee.Alive {
		return nil, fmt.Errorf("%w: both nominator and nominee must be alive", ErrIllegalTarget)
	}

	nom := &Nomination{
		ID:          newID(e.rng(g)),
		NominatorID: nominatorID,
		NomineeID:   nomineeID,
		Votes:       make(map[string]bool),
	}
	g.CurrentNomination = nom

	if err := e.persist(ctx, g, ActionNominate, map[string]any{
		"nomination_id": nom.ID,
		"nominator_id":  nominatorID,
		"nominee_id":    nomineeID,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("nomination opened",
		zap.String("game_id", gameID),
		zap.String("nominator_id", nominatorID),
		zap.String("nominee_id", nomineeID),
	)
	return g, nil
}

// Vote casts or overwrites a living player's vote on the open nomination.
func (e *Engine) Vote(ctx context.Context, gameID, voterID string, vote bool) (*Game, error) {
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
	if g.CurrentNomination == nil || g.CurrentNomination.Closed {
		return nil, fmt.Errorf("%w: no open nomination to vote on", ErrInvalidPhase)
	}

	voter := g.FindPlayer(voterID)
	if voter == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, voterID)
	}
	if !voter.Alive {
		return nil, fmt.Errorf("%w: only alive players can vote", ErrInvalidActor)
	}

	g.CurrentNomination.Votes[voterID] = vote

	if err := e.persist(ctx, g, ActionVote, map[string]any{
		"voter_id": voterID,
		"vote":     vote,
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// CloseNomination tallies the open nomination and marks it closed. A
// nomination qualifies for execution when yes votes reach at least half the
// living players, rounded up. Closing never executes anyone; execution is a
// separate explicit command, which lets Virgin-style triggers short-circuit
// a normal execution.
func (e *Engine) CloseNomination(ctx context.Context, gameID string) (*Game, error) {
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
	if g.CurrentNomination == nil || g.CurrentNomination.Closed {
		return nil, fmt.Errorf("%w: no open nomination to close", ErrInvalidPhase)
	}

	nom := g.CurrentNomination
	yes, no := 0, 0
	for _, v := range nom.Votes {
		if v {
			yes++
		} else {
			no++
		}
	}
	alive := g.AliveCount()
	qualifies := yes >= (alive+1)/2

	nom.Closed = true

	if err := e.persist(ctx, g, ActionCloseNomination, map[string]any{
		"nomination_id": nom.ID,
		"yes_votes":     yes,
		"no_votes":      no,
		"alive":         alive,
		"qualifies":     qualifies,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("nomination closed",
		zap.String("game_id", gameID),
		zap.Int("yes_votes", yes),
		zap.Int("no_votes", no),
		zap.Bool("qualifies", qualifies),
	)
	return g, nil
}

// ExecutePlayer carries out an execution. Executing the Saint ends the game
// immediately with an Evil win regardless of any other state. Otherwise the
// player dies, the execution is recorded for the Undertaker, the Scarlet
// Woman's succession passive is checked and win conditions are evaluated.
func (e *Engine) ExecutePlayer(ctx context.Context, gameID, playerID string) (*Game, error) {
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

	player := g.FindPlayer(playerID)
	if player == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	if player.Role == role.Saint {
		w := role.Evil
		g.Winner = &w
		g.Phase = PhaseEnded

		if err := e.persist(ctx, g, ActionExecutePlayer, map[string]any{
			"player_id":      playerID,
			"saint_executed": true,
			"winner":         string(role.Evil),
		}); err != nil {
			return nil, err
		}

		e.logger.Info("saint executed, evil wins",
			zap.String("game_id", gameID),
			zap.String("player_id", playerID),
		)
		return g, nil
	}

	player.Alive = false
	if player.Role != "" {
		g.LastExecution = &Execution{
			PlayerID: playerID,
			Role:     player.Role,
			Day:      g.DayNumber,
		}
	}

	if player.Role == role.Imp {
		e.scarletWomanSuccession(g)
	}

	e.finishIfWon(g)

	payload := map[string]any{"player_id": playerID}
	if g.Winner != nil {
		payload["winner"] = string(*g.Winner)
	}
	if err := e.persist(ctx, g, ActionExecutePlayer, payload); err != nil {
		return nil, err
	}

	e.logger.Info("player executed",
		zap.String("game_id", gameID),
		zap.String("player_id", playerID),
		zap.String("role", string(player.Role)),
	)
	return g, nil
}

// scarletWomanSuccession promotes a living Scarlet Woman to Imp when the
// demon has died with five or more players still alive. The alive count is
// taken after the demon's death, matching the registry wording.
func (e *Engine) scarletWomanSuccession(g *Game) {
	impAlive := false
	for _, p := range g.Players {
		if p.Role == role.Imp && p.Alive {
			impAlive = true
		}
	}
	if impAlive || g.AliveCount() < 5 {
		return
	}
	for _, p := range g.Players {
		if p.Role == role.ScarletWoman && p.Alive {
			p.Role = role.Imp
			e.logger.Info("scarlet woman became the imp",
				zap.String("game_id", g.ID),
				zap.String("player_id", p.ID),
			)
			return
		}
	}
}

// SlayerShot resolves the Slayer's once-per-game public shot. Only the true
// Imp dies to it; the attempt is spent either way.
func (e *Engine) SlayerShot(ctx context.Context, gameID, playerID, targetID string) (*Game, error) {
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
	if g.Phase != PhaseDay {
		return nil, fmt.Errorf("%w: the slayer can only shoot during the day", ErrInvalidPhase)
	}

	player := g.FindPlayer(playerID)
	if player == nil || !player.Alive || player.Role != role.Slayer {
		return nil, fmt.Errorf("%w: player %s is not a living slayer", ErrInvalidActor, playerID)
	}
	target := g.FindPlayer(targetID)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, targetID)
	}
	if player.UsedAbility {
		return nil, fmt.Errorf("%w: slayer has already used their shot", ErrInvalidActor)
	}
	if !target.Alive {
		return nil, fmt.Errorf("%w: cannot target dead players", ErrIllegalTarget)
	}

	player.UsedAbility = true

	success := target.Role == role.Imp
	var message string
	if success {
		target.Alive = false
		message = fmt.Sprintf("%s was the Imp and has been slain!", target.Name)
		e.finishIfWon(g)
	} else {
		message = fmt.Sprintf("%s was not the Imp. The shot failed.", target.Name)
	}

	payload := map[string]any{
		"player_id": playerID,
		"target_id": targetID,
		"success":   success,
		"message":   message,
	}
	if g.Winner != nil {
		payload["winner"] = string(*g.Winner)
	}
	if err := e.persist(ctx, g, ActionSlayerShot, payload); err != nil {
		return nil, err
	}

	e.logger.Info("slayer shot",
		zap.String("game_id", gameID),
		zap.String("target_id", targetID),
		zap.Bool("success", success),
	)
	return g, nil
}

// VirginTrigger resolves the Virgin's once-per-game nomination trigger: a
// Townsfolk nominator is executed on the spot, before any vote would
// resolve. The ability is spent whoever the nominator was.
func (e *Engine) VirginTrigger(ctx context.Context, gameID, virginID, nominatorID string) (*Game, error) {
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
	if g.Phase != PhaseDay {
		return nil, fmt.Errorf("%w: the virgin can only trigger during the day", ErrInvalidPhase)
	}

	virgin := g.FindPlayer(virginID)
	nominator := g.FindPlayer(nominatorID)
	if virgin == nil || nominator == nil {
		return nil, fmt.Errorf("%w: virgin or nominator unknown", ErrPlayerNotFound)
	}
	if virgin.Role != role.Virgin {
		return nil, fmt.Errorf("%w: player %s is not the virgin", ErrInvalidActor, virginID)
	}
	if virgin.UsedAbility {
		return nil, fmt.Errorf("%w: virgin ability already triggered", ErrInvalidActor)
	}

	virgin.UsedAbility = true

	executed := false
	var message string
	if cat, _ := role.CategoryOf(nominator.Role); cat == role.CategoryTownsfolk {
		nominator.Alive = false
		executed = true
		message = fmt.Sprintf("%s (%s) nominated the Virgin and is executed immediately!", nominator.Name, nominator.Role)
		e.finishIfWon(g)
	} else {
		message = fmt.Sprintf("%s nominated the Virgin, but nothing happens (they are not Townsfolk)", nominator.Name)
	}

	payload := map[string]any{
		"virgin_id":    virginID,
		"nominator_id": nominatorID,
		"executed":     executed,
		"message":      message,
	}
	if g.Winner != nil {
		payload["winner"] = string(*g.Winner)
	}
	if err := e.persist(ctx, g, ActionVirginTrigger, payload); err != nil {
		return nil, err
	}

	e.logger.Info("virgin trigger resolved",
		zap.String("game_id", gameID),
		zap.String("nominator_id", nominatorID),
		zap.Bool("executed", executed),
	)
	return g, nil
}
