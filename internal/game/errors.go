package game

import "errors"

// Engine error taxonomy. Commands validate before mutating; any error below
// means the stored snapshot was left unchanged. Storage failures are wrapped
// and propagated as-is; the engine never retries.
var (
	// ErrGameNotFound is returned for an unknown game id.
	ErrGameNotFound = errors.New("game not found")

	// ErrPlayerNotFound is returned when a referenced player must exist but
	// does not.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrInvalidPhase is returned for a command issued outside its required
	// phase.
	ErrInvalidPhase = errors.New("invalid phase for command")

	// ErrGameEnded is returned for any mutating command after the game has
	// ended.
	ErrGameEnded = errors.New("game has ended")

	// ErrInvalidActor is returned for a wrong player, a role mismatch, an
	// already-used one-shot ability or a wrong target count.
	ErrInvalidActor = errors.New("invalid actor for command")

	// ErrIllegalTarget is returned for a dead, self, or otherwise ineligible
	// target where the operation rejects outright. Kill and protect actions
	// record a resolved:false NightAction instead of returning this.
	ErrIllegalTarget = errors.New("illegal target")
)
