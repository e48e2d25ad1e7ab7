package game

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/grimoire-games/clocktower-server/internal/role"
	"go.uber.org/zap"
)

// runSetupAbilities runs every assigned setup-timing ability once, in player
// join order, appending the resulting information records. Random choices
// (distractor candidates, the red herring) come from the injected source.
func (e *Engine) runSetupAbilities(g *Game, rng *rand.Rand) {
	for _, p := range g.Players {
		switch p.Role {
		case role.Washerwoman:
			g.PlayerInfo = append(g.PlayerInfo, categoryClue(g, p, role.CategoryTownsfolk, rng))
		case role.Librarian:
			g.PlayerInfo = append(g.PlayerInfo, categoryClue(g, p, role.CategoryOutsider, rng))
		case role.Investigator:
			g.PlayerInfo = append(g.PlayerInfo, categoryClue(g, p, role.CategoryMinion, rng))
		case role.Chef:
			g.PlayerInfo = append(g.PlayerInfo, chefSetup(g, p))
		case role.FortuneTeller:
			fortuneTellerSetup(g, p, rng)
		case role.Drunk:
			p.Drunk = true
		case role.Baron:
			// Outsider-count modification is not wired yet; the Baron is a
			// logged no-op until game composition is modeled.
			e.logger.Info("baron in play, outsider modifier not applied",
				zap.String("game_id", g.ID),
				zap.String("player_id", p.ID),
			)
		}
	}
}

// categoryClue builds the Washerwoman/Librarian/Investigator information
// record: the lowest-seat player holding a role in the target category is the
// true answer, paired with one random non-colliding distractor. With no
// qualifying player in play the record says so and carries no candidates.
func categoryClue(g *Game, seeker *Player, cat role.Category, rng *rand.Rand) *PlayerInfo {
	var holder *Player
	for _, p := range g.Players {
		if p.ID == seeker.ID || p.Role == "" {
			continue
		}
		if c, _ := role.CategoryOf(p.Role); c == cat {
			holder = p
			break
		}
	}

	if holder == nil {
		return &PlayerInfo{
			PlayerID:        seeker.ID,
			InformationType: seeker.Role,
			Information: map[string]any{
				"message": fmt.Sprintf("No %s to detect", categoryNoun(cat)),
			},
			NightReceived: 0,
		}
	}

	candidates := []*Player{holder}
	if d := pickDistractor(g, rng, seeker.ID, holder.ID); d != nil {
		candidates = append(candidates, d)
	}

	names := make([]string, len(candidates))
	views := make([]map[string]any, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
		views[i] = map[string]any{"id": c.ID, "name": c.Name}
	}

	return &PlayerInfo{
		PlayerID:        seeker.ID,
		InformationType: seeker.Role,
		Information: map[string]any{
			"role":       string(holder.Role),
			"candidates": views,
			"message":    fmt.Sprintf("One of these players is the %s: %s", holder.Role, strings.Join(names, ", ")),
		},
		NightReceived: 0,
	}
}

// pickDistractor chooses a uniform random player that is neither the seeker
// nor the true holder. Returns nil when no such player exists.
func pickDistractor(g *Game, rng *rand.Rand, seekerID, holderID string) *Player {
	var pool []*Player
	for _, p := range g.Players {
		if p.ID != seekerID && p.ID != holderID {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	return pool[rng.Intn(len(pool))]
}

func categoryNoun(cat role.Category) string {
	switch cat {
	case role.CategoryTownsfolk:
		return "Townsfolk"
	case role.CategoryOutsider:
		return "Outsiders"
	case role.CategoryMinion:
		return "Minions"
	case role.CategoryDemon:
		return "Demons"
	}
	return string(cat)
}

// chefSetup counts adjacent pairs of evil players over the full seating
// circle, dead seats included.
func chefSetup(g *Game, chef *Player) *PlayerInfo {
	pairs := countAdjacentEvilPairs(g)
	return &PlayerInfo{
		PlayerID:        chef.ID,
		InformationType: role.Chef,
		Information: map[string]any{
			"pairs":   pairs,
			"message": fmt.Sprintf("%d pair(s) of evil players are sitting next to each other", pairs),
		},
		NightReceived: 0,
	}
}

// countAdjacentEvilPairs walks the seat circle once and counts neighbor
// pairs where both players are evil. Two players never form a wraparound
// pair twice.
func countAdjacentEvilPairs(g *Game) int {
	n := len(g.Players)
	if n < 2 {
		return 0
	}
	pairs := 0
	for i := 0; i < n; i++ {
		a := g.Players[i]
		b := g.Players[(i+1)%n]
		if i == n-1 && n == 2 {
			break // the wraparound pair duplicates (0,1) at two seats
		}
		if a.Alignment == role.Evil && b.Alignment == role.Evil {
			pairs++
		}
	}
	return pairs
}

// fortuneTellerSetup marks one random good player, other than the Fortune
// Teller, as the red herring that falsely registers as the Demon.
func fortuneTellerSetup(g *Game, teller *Player, rng *rand.Rand) {
	var pool []*Player
	for _, p := range g.Players {
		if p.Alignment == role.Good && p.ID != teller.ID {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		return
	}
	pool[rng.Intn(len(pool))].RedHerring = true
}
