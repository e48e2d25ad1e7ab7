// Package game implements the authoritative game-state engine: the phase
// state machine, the nomination-vote-execution cycle, per-role ability
// resolution and win-condition evaluation. Every external command is a
// synchronous read-modify-write transaction against one Game snapshot,
// serialized per game id.
package game

import (
	"context"
	"time"

	"github.com/grimoire-games/clocktower-server/internal/role"
)

// Phase is the game's top-level state machine state.
type Phase string

const (
	PhaseLobby Phase = "LOBBY"
	PhaseNight Phase = "NIGHT"
	PhaseDay   Phase = "DAY"
	PhaseEnded Phase = "ENDED"
)

// Player is one seat at the table. Seats are dense 1..N in join order and
// define circular adjacency; neighbor lookups use the alive-only
// subsequence.
type Player struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Seat        int            `json:"seat"`
	Alive       bool           `json:"alive"`
	Role        role.Role      `json:"role,omitempty"`
	Alignment   role.Alignment `json:"alignment,omitempty"`
	Poisoned    bool           `json:"poisoned,omitempty"`
	UsedAbility bool           `json:"used_ability,omitempty"`
	Drunk       bool           `json:"drunk,omitempty"`
	Protected   bool           `json:"protected,omitempty"`
	MasterID    string         `json:"master_id,omitempty"`
	RedHerring  bool           `json:"red_herring,omitempty"`
}

// Nomination is the single in-flight nomination/vote cycle of a Day phase.
// Votes are keyed by voter id; re-voting overwrites.
type Nomination struct {
	ID          string          `json:"id"`
	NominatorID string          `json:"nominator_id"`
	NomineeID   string          `json:"nominee_id"`
	Votes       map[string]bool `json:"votes"`
	Closed      bool            `json:"closed"`
}

// NightAction is the immutable record of one interactive night ability. The
// whole list is discarded when a new night opens.
type NightAction struct {
	ID       string         `json:"id"`
	PlayerID string         `json:"player_id"`
	Role     role.Role      `json:"role"`
	Targets  []string       `json:"targets,omitempty"`
	Resolved bool           `json:"resolved"`
	Result   map[string]any `json:"result,omitempty"`
}

// PlayerInfo is one piece of information a player has learned. The list is
// append-only for the lifetime of the game.
type PlayerInfo struct {
	PlayerID        string         `json:"player_id"`
	InformationType role.Role      `json:"information_type"`
	Information     map[string]any `json:"information"`
	NightReceived   int            `json:"night_received"`
}

// Execution records the most recent execution for the Undertaker.
type Execution struct {
	PlayerID string    `json:"player_id"`
	Role     role.Role `json:"role"`
	Day      int       `json:"day"`
}

// Game is the single root aggregate. Players, the nomination, night actions
// and player info are embedded; the whole Game is one unit of persistence.
type Game struct {
	ID                string          `json:"id"`
	Phase             Phase           `json:"phase"`
	DayNumber         int             `json:"day_number"`
	Players           []*Player       `json:"players"`
	CurrentNomination *Nomination     `json:"current_nomination,omitempty"`
	Winner            *role.Alignment `json:"winner,omitempty"`
	NightActions      []*NightAction  `json:"night_actions"`
	PlayerInfo        []*PlayerInfo   `json:"player_info"`
	LastExecution     *Execution      `json:"last_execution,omitempty"`
	// Seed is the per-game random source seed; together with Step it makes
	// every random choice reproducible from the action log.
	Seed      int64     `json:"seed"`
	Step      int64     `json:"step"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindPlayer returns the player with the given id, or nil.
func (g *Game) FindPlayer(id string) *Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AlivePlayers returns the living players in seat order. Players are stored
// in join order, which is seat order.
func (g *Game) AlivePlayers() []*Player {
	var out []*Player
	for _, p := range g.Players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// AliveCount returns the number of living players.
func (g *Game) AliveCount() int {
	n := 0
	for _, p := range g.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

// aliveNeighbors returns a player's two nearest living neighbors by seat,
// wrapping around the table. Returns nil when fewer than three players are
// alive; a two-player circle has no distinct neighbors.
func (g *Game) aliveNeighbors(playerID string) []*Player {
	alive := g.AlivePlayers()
	idx := -1
	for i, p := range alive {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 || len(alive) < 3 {
		return nil
	}
	left := (idx - 1 + len(alive)) % len(alive)
	right := (idx + 1) % len(alive)
	return []*Player{alive[left], alive[right]}
}

// ActionType tags one entry in the append-only action log.
type ActionType string

const (
	ActionCreateGame      ActionType = "CREATE_GAME"
	ActionJoinGame        ActionType = "JOIN_GAME"
	ActionAssignRoles     ActionType = "ASSIGN_ROLES"
	ActionStartGame       ActionType = "START_GAME"
	ActionAdvancePhase    ActionType = "ADVANCE_PHASE"
	ActionNominate        ActionType = "NOMINATE"
	ActionVote            ActionType = "VOTE"
	ActionCloseNomination ActionType = "CLOSE_NOMINATION"
	ActionExecutePlayer   ActionType = "EXECUTE_PLAYER"
	ActionNightAction     ActionType = "NIGHT_ACTION"
	ActionSlayerShot      ActionType = "SLAYER_SHOT"
	ActionVirginTrigger   ActionType = "VIRGIN_TRIGGER"
)

// ActionRecord is one immutable entry of a game's history.
type ActionRecord struct {
	GameID    string         `json:"game_id"`
	Type      ActionType     `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store is the persistence contract the engine consumes. Implementations
// live under internal/storage. SaveGame is an idempotent full-snapshot
// overwrite keyed by game id; AppendAction is monotonic and queryable in
// timestamp order.
type Store interface {
	LoadGame(ctx context.Context, id string) (*Game, error)
	SaveGame(ctx context.Context, g *Game) error
	AppendAction(ctx context.Context, rec ActionRecord) error
	ListGames(ctx context.Context) ([]*Game, error)
	GameHistory(ctx context.Context, gameID string) ([]ActionRecord, error)
}
