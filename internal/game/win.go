package game

import "github.com/grimoire-games/clocktower-server/internal/role"

// EvaluateWinner computes faction victory from the current alive-player set.
// Evil wins on parity (alive evil >= alive good); good wins once no living
// Imp remains. Returns nil while the game continues.
//
// The Mayor's three-alive no-execution win is intentionally not evaluated
// here; the registry documents the intent but the rule is not wired.
func EvaluateWinner(g *Game) *role.Alignment {
	aliveGood := 0
	aliveEvil := 0
	impAlive := false

	for _, p := range g.Players {
		if !p.Alive {
			continue
		}
		switch p.Alignment {
		case role.Good:
			aliveGood++
		case role.Evil:
			aliveEvil++
			if p.Role == role.Imp {
				impAlive = true
			}
		}
	}

	if aliveEvil >= aliveGood {
		w := role.Evil
		return &w
	}
	if !impAlive {
		w := role.Good
		return &w
	}
	return nil
}
