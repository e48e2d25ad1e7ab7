package game

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grimoire-games/clocktower-server/internal/role"
	"go.uber.org/zap"
)

// NotificationHandler receives every action record the engine appends.
// Records are delivered one at a time in append order, off the command
// path, so the handler may safely call back into the engine.
type NotificationHandler func(rec ActionRecord)

// Engine orchestrates all game commands. Every command loads the snapshot,
// validates phase and actor, applies the mutation, re-evaluates win
// conditions, persists and appends one action record. Commands for the same
// game id are serialized by a per-game mutex; different games run
// concurrently.
type Engine struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	handlerMu           sync.RWMutex
	notificationHandler NotificationHandler

	// notifyQ holds appended records until the dispatcher goroutine hands
	// them to the handler, preserving append order across commands.
	notifyMu     sync.Mutex
	notifyCond   *sync.Cond
	notifyQ      []ActionRecord
	notifyStop   bool
	dispatchOnce sync.Once

	// seedFn produces the seed for a new game. Overridable in tests for
	// deterministic runs.
	seedFn func() int64
}

// NewEngine creates an engine backed by the given store.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	e := &Engine{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
		seedFn: func() int64 { return time.Now().UnixNano() },
	}
	e.notifyCond = sync.NewCond(&e.notifyMu)
	return e
}

// SetSeedFunc overrides how new games obtain their random seed.
func (e *Engine) SetSeedFunc(fn func() int64) {
	e.seedFn = fn
}

// SetNotificationHandler registers a handler for appended action records and
// starts the dispatcher that delivers them.
func (e *Engine) SetNotificationHandler(handler NotificationHandler) {
	e.handlerMu.Lock()
	e.notificationHandler = handler
	e.handlerMu.Unlock()
	e.dispatchOnce.Do(func() { go e.dispatch() })
}

// Close stops the notification dispatcher once the queued records have
// drained. Further emitted records are dropped.
func (e *Engine) Close() {
	e.notifyMu.Lock()
	e.notifyStop = true
	e.notifyMu.Unlock()
	e.notifyCond.Broadcast()
}

func (e *Engine) emit(rec ActionRecord) {
	e.handlerMu.RLock()
	handler := e.notificationHandler
	e.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	e.notifyMu.Lock()
	if e.notifyStop {
		e.notifyMu.Unlock()
		return
	}
	e.notifyQ = append(e.notifyQ, rec)
	e.notifyMu.Unlock()
	e.notifyCond.Signal()
}

// dispatch drains the notification queue on a single goroutine so records
// reach the handler in exactly the order they were appended. The handler
// runs outside the per-game lock and may call back into the engine; such
// calls enqueue rather than recurse, so they cannot deadlock.
func (e *Engine) dispatch() {
	for {
		e.notifyMu.Lock()
		for len(e.notifyQ) == 0 && !e.notifyStop {
			e.notifyCond.Wait()
		}
		if len(e.notifyQ) == 0 && e.notifyStop {
			e.notifyMu.Unlock()
			return
		}
		rec := e.notifyQ[0]
		e.notifyQ = e.notifyQ[1:]
		e.notifyMu.Unlock()

		e.handlerMu.RLock()
		handler := e.notificationHandler
		e.handlerMu.RUnlock()
		if handler != nil {
			handler(rec)
		}
	}
}

// gameLock returns the mutex serializing commands for one game id.
func (e *Engine) gameLock(gameID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[gameID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[gameID] = l
	}
	return l
}

// evictLock drops the keyed mutex for a game that can no longer change.
// Ended games reject every mutation before touching state, so late callers
// racing on a fresh mutex cannot interleave writes.
func (e *Engine) evictLock(gameID string) {
	e.mu.Lock()
	delete(e.locks, gameID)
	e.mu.Unlock()
}

// rng derives the random source for the current command from the game's
// seed and step counter. The pair is part of the snapshot, so replaying the
// logged commands reproduces every random choice. Each command creates one
// source and draws all of its ids and random picks from it in order.
func (e *Engine) rng(g *Game) *rand.Rand {
	return rand.New(rand.NewSource(g.Seed + g.Step))
}

// newID draws a UUID from the command's random source, keeping generated
// identifiers reproducible under replay.
func newID(rng *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (e *Engine) loadGame(ctx context.Context, gameID string) (*Game, error) {
	g, err := e.store.LoadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// checkMutable rejects mutations on ended games.
func checkMutable(g *Game) error {
	if g.Phase == PhaseEnded {
		return fmt.Errorf("%w: game %s", ErrGameEnded, g.ID)
	}
	return nil
}

// persist finalizes one command: bumps the step counter and updated-at
// timestamp, saves the snapshot and appends the action record. Mutations
// must be complete before this is called.
func (e *Engine) persist(ctx context.Context, g *Game, actionType ActionType, payload map[string]any) error {
	g.Step++
	g.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveGame(ctx, g); err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	rec := ActionRecord{
		GameID:    g.ID,
		Type:      actionType,
		Payload:   payload,
		Timestamp: g.UpdatedAt,
	}
	if err := e.store.AppendAction(ctx, rec); err != nil {
		return fmt.Errorf("append action for game %s: %w", g.ID, err)
	}
	if g.Phase == PhaseEnded {
		e.evictLock(g.ID)
	}
	e.emit(rec)
	return nil
}

// CreateGame creates a new game in the lobby phase with zero players.
func (e *Engine) CreateGame(ctx context.Context) (*Game, error) {
	now := time.Now().UTC()
	g := &Game{
		Phase:        PhaseLobby,
		DayNumber:    0,
		Players:      []*Player{},
		NightActions: []*NightAction{},
		PlayerInfo:   []*PlayerInfo{},
		Seed:         e.seedFn(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	g.ID = newID(e.rng(g))

	lock := e.gameLock(g.ID)
	lock.Lock()
	defer lock.Unlock()

	// Seed travels as a string: JSON round-trips would truncate large
	// integers to float64.
	if err := e.persist(ctx, g, ActionCreateGame, map[string]any{
		"seed": strconv.FormatInt(g.Seed, 10),
	}); err != nil {
		return nil, err
	}

	e.logger.Info("game created", zap.String("game_id", g.ID))
	return g, nil
}

// AddPlayer appends a new player to a lobby-phase game with the next
// sequential seat.
func (e *Engine) AddPlayer(ctx context.Context, gameID, playerName string) (*Game, error) {
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
	if g.Phase != PhaseLobby {
		return nil, fmt.Errorf("%w: cannot add players after lobby", ErrInvalidPhase)
	}

	p := &Player{
		ID:    newID(e.rng(g)),
		Name:  playerName,
		Seat:  len(g.Players) + 1,
		Alive: true,
	}
	g.Players = append(g.Players, p)

	if err := e.persist(ctx, g, ActionJoinGame, map[string]any{
		"player_id": p.ID,
		"name":      p.Name,
		"seat":      p.Seat,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("player joined",
		zap.String("game_id", gameID),
		zap.String("player_id", p.ID),
		zap.Int("seat", p.Seat),
	)
	return g, nil
}

// AssignRoles sets roles for the named players, derives alignments from the
// registry, then runs every setup-timing ability once in player join order.
func (e *Engine) AssignRoles(ctx context.Context, gameID string, assignments map[string]role.Role) (*Game, error) {
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
	if g.Phase != PhaseLobby {
		return nil, fmt.Errorf("%w: cannot assign roles after lobby", ErrInvalidPhase)
	}
	for playerID, r := range assignments {
		if !role.Known(r) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidActor, r)
		}
		if g.FindPlayer(playerID) == nil {
			return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}
	}

	for _, p := range g.Players {
		if r, ok := assignments[p.ID]; ok {
			p.Role = r
			align, _ := role.AlignmentOf(r)
			p.Alignment = align
		}
	}

	e.runSetupAbilities(g, e.rng(g))

	payload := map[string]any{"assignments": assignments}
	if err := e.persist(ctx, g, ActionAssignRoles, payload); err != nil {
		return nil, err
	}

	e.logger.Info("roles assigned",
		zap.String("game_id", gameID),
		zap.Int("count", len(assignments)),
	)
	return g, nil
}

// StartGame moves the game from lobby to the first night. Every player must
// hold a role.
func (e *Engine) StartGame(ctx context.Context, gameID string) (*Game, error) {
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
	if g.Phase != PhaseLobby {
		return nil, fmt.Errorf("%w: game already started", ErrInvalidPhase)
	}
	for _, p := range g.Players {
		if p.Role == "" {
			return nil, fmt.Errorf("%w: player %s has no role", ErrInvalidActor, p.ID)
		}
	}

	g.Phase = PhaseNight
	g.DayNumber = 1

	if err := e.persist(ctx, g, ActionStartGame, map[string]any{}); err != nil {
		return nil, err
	}

	e.logger.Info("game started",
		zap.String("game_id", gameID),
		zap.Int("players", len(g.Players)),
	)
	return g, nil
}

// OpenDay transitions from night to day. Night actions already mutated state
// when they were submitted; nothing further resolves here.
func (e *Engine) OpenDay(ctx context.Context, gameID string) (*Game, error) {
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
		return nil, fmt.Errorf("%w: can only open day from night", ErrInvalidPhase)
	}

	g.Phase = PhaseDay

	if err := e.persist(ctx, g, ActionAdvancePhase, map[string]any{"to": string(PhaseDay)}); err != nil {
		return nil, err
	}

	e.logger.Info("day opened", zap.String("game_id", gameID), zap.Int("day", g.DayNumber))
	return g, nil
}

// OpenNight transitions from day to night: increments the day number,
// clears the nomination and the night-action list, then runs every living
// player's night-timing information ability (Empath, Spy; Undertaker except
// on the first night).
func (e *Engine) OpenNight(ctx context.Context, gameID string) (*Game, error) {
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
		return nil, fmt.Errorf("%w: can only open night from day", ErrInvalidPhase)
	}

	g.Phase = PhaseNight
	g.DayNumber++
	g.CurrentNomination = nil
	g.NightActions = []*NightAction{}

	e.runNightInformation(g)

	if err := e.persist(ctx, g, ActionAdvancePhase, map[string]any{
		"to":  string(PhaseNight),
		"day": g.DayNumber,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("night opened", zap.String("game_id", gameID), zap.Int("day", g.DayNumber))
	return g, nil
}

// GameState returns the current snapshot of one game.
func (e *Engine) GameState(ctx context.Context, gameID string) (*Game, error) {
	return e.loadGame(ctx, gameID)
}

// ListGames returns all games ordered by most recent update.
func (e *Engine) ListGames(ctx context.Context) ([]*Game, error) {
	return e.store.ListGames(ctx)
}

// History returns a game's append-only action log in timestamp order.
func (e *Engine) History(ctx context.Context, gameID string) ([]ActionRecord, error) {
	if _, err := e.loadGame(ctx, gameID); err != nil {
		return nil, err
	}
	return e.store.GameHistory(ctx, gameID)
}

// PlayerInfoFor returns everything one player has learned so far.
func (e *Engine) PlayerInfoFor(ctx context.Context, gameID, playerID string) ([]*PlayerInfo, error) {
	g, err := e.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	var out []*PlayerInfo
	for _, info := range g.PlayerInfo {
		if info.PlayerID == playerID {
			out = append(out, info)
		}
	}
	return out, nil
}

// finishIfWon asks the win evaluator and moves the game to the terminal
// state when a faction has won. Call after any death.
func (e *Engine) finishIfWon(g *Game) {
	winner := EvaluateWinner(g)
	if winner == nil {
		return
	}
	g.Winner = winner
	g.Phase = PhaseEnded
	e.logger.Info("game ended",
		zap.String("game_id", g.ID),
		zap.String("winner", string(*winner)),
	)
}
