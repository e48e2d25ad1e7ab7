// Command simulate drives full seven-player games against a running
// server with random decisions, reporting win rates across runs.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/grimoire-games/clocktower-server/internal/game"
	"github.com/grimoire-games/clocktower-server/internal/role"
)

// Seven players: five Townsfolk, one Minion, one Demon.
var rolePool = []role.Role{
	role.Washerwoman,
	role.Investigator,
	role.Chef,
	role.Empath,
	role.Slayer,
	role.Poisoner,
	role.Imp,
}

var playerNames = []string{"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank", "Grace"}

func main() {
	var (
		serverURL string
		numGames  int
		seed      int64
		delay     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate full games with random decisions against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			rng := rand.New(rand.NewSource(seed))
			fmt.Printf("Running %d simulation(s) against %s (seed %d)\n", numGames, serverURL, seed)

			results := map[string]int{}
			for i := 0; i < numGames; i++ {
				if numGames > 1 {
					fmt.Printf("\nGame %d/%d\n", i+1, numGames)
				}
				sim := &simulator{
					base:  serverURL,
					http:  &http.Client{Timeout: 10 * time.Second},
					rng:   rng,
					delay: delay,
				}
				winner, err := sim.run()
				if err != nil {
					return err
				}
				results[winner]++
			}

			if numGames > 1 {
				fmt.Println("\nResults:")
				for _, team := range []string{"GOOD", "EVIL", "DRAW"} {
					n := results[team]
					fmt.Printf("  %s: %d (%.1f%%)\n", team, n, float64(n)/float64(numGames)*100)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the game server")
	cmd.Flags().IntVar(&numGames, "games", 1, "number of games to simulate")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for decisions (0 uses the current time)")
	cmd.Flags().DurationVar(&delay, "delay", 100*time.Millisecond, "pause between actions")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type simulator struct {
	base  string
	http  *http.Client
	rng   *rand.Rand
	delay time.Duration

	gameID string
	state  *game.Game
}

// run plays one complete game and returns the winning team, or DRAW if
// the day limit is reached.
func (s *simulator) run() (string, error) {
	if err := s.setup(); err != nil {
		return "", err
	}

	const maxDays = 10
	for day := 1; day <= maxDays; day++ {
		if err := s.nightPhase(); err != nil {
			return "", err
		}
		if winner := s.winner(); winner != "" {
			s.printFinalRoles(winner)
			return winner, nil
		}

		if err := s.post("/open-day", nil); err != nil {
			return "", err
		}
		fmt.Printf("Day %d: %d players alive\n", day, s.state.AliveCount())

		if err := s.dayPhase(); err != nil {
			return "", err
		}
		if winner := s.winner(); winner != "" {
			s.printFinalRoles(winner)
			return winner, nil
		}

		if err := s.post("/open-night", nil); err != nil {
			return "", err
		}
	}

	fmt.Println("Day limit reached")
	return "DRAW", nil
}

func (s *simulator) setup() error {
	g, err := s.request("POST", "/api/games", nil)
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	s.gameID = g.ID
	s.state = g
	fmt.Printf("Created game %s\n", s.gameID)

	for _, name := range playerNames {
		if err := s.post("/players", map[string]any{"name": name}); err != nil {
			return fmt.Errorf("add player %s: %w", name, err)
		}
	}

	shuffled := make([]role.Role, len(rolePool))
	copy(shuffled, rolePool)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	assignments := map[string]role.Role{}
	for i, p := range s.state.Players {
		assignments[p.ID] = shuffled[i]
		fmt.Printf("  %s is the %s\n", p.Name, shuffled[i])
	}
	if err := s.post("/assign-roles", map[string]any{"assignments": assignments}); err != nil {
		return fmt.Errorf("assign roles: %w", err)
	}

	if err := s.post("/start", nil); err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	fmt.Println("Night 1 begins")
	return nil
}

// Roles the driver proactively acts with each night. The Ravenkeeper is
// excluded: its ability only fires when it dies.
var nightActors = map[role.Role]bool{
	role.Poisoner:      true,
	role.Imp:           true,
	role.Monk:          true,
	role.FortuneTeller: true,
	role.Butler:        true,
}

func (s *simulator) nightPhase() error {
	for _, p := range s.state.AlivePlayers() {
		if !nightActors[p.Role] {
			continue
		}
		targets := s.pickTargets(p)
		if targets == nil {
			continue
		}
		err := s.post("/night-action", map[string]any{
			"player_id": p.ID,
			"role":      p.Role,
			"targets":   targets,
		})
		if err != nil {
			return fmt.Errorf("night action for %s: %w", p.Name, err)
		}
		fmt.Printf("  %s (%s) targets %v\n", p.Name, p.Role, targets)
		time.Sleep(s.delay)
		if s.state.Phase == game.PhaseEnded {
			return nil
		}
	}
	return nil
}

// pickTargets chooses random living targets other than the actor, as many
// as the role requires. Returns nil when not enough targets exist.
func (s *simulator) pickTargets(actor *game.Player) []string {
	need := role.TargetsOf(actor.Role)
	if need == 0 {
		return nil
	}
	var pool []string
	for _, p := range s.state.AlivePlayers() {
		if p.ID != actor.ID {
			pool = append(pool, p.ID)
		}
	}
	if len(pool) < need {
		return nil
	}
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:need]
}

func (s *simulator) dayPhase() error {
	alive := s.state.AlivePlayers()
	if len(alive) <= 2 {
		return nil
	}

	nominations := 1 + s.rng.Intn(3)
	for n := 0; n < nominations; n++ {
		alive = s.state.AlivePlayers()
		if len(alive) < 2 {
			return nil
		}
		nominator := alive[s.rng.Intn(len(alive))]
		nominee := nominator
		for nominee.ID == nominator.ID {
			nominee = alive[s.rng.Intn(len(alive))]
		}

		fmt.Printf("  %s nominates %s\n", nominator.Name, nominee.Name)
		err := s.post("/nominate", map[string]any{
			"nominator_id": nominator.ID,
			"nominee_id":   nominee.ID,
		})
		if err != nil {
			return fmt.Errorf("nominate: %w", err)
		}

		if nominee.Role == role.Virgin && !nominee.UsedAbility {
			err := s.post("/virgin-trigger", map[string]any{
				"virgin_id":    nominee.ID,
				"nominator_id": nominator.ID,
			})
			if err != nil {
				return fmt.Errorf("virgin trigger: %w", err)
			}
			if p := s.state.FindPlayer(nominator.ID); p != nil && !p.Alive {
				fmt.Printf("    %s was executed by the Virgin's power\n", nominator.Name)
				continue
			}
		}

		for _, voter := range s.state.AlivePlayers() {
			vote := s.rng.Intn(3) == 0
			err := s.post("/vote", map[string]any{
				"voter_id": voter.ID,
				"vote":     vote,
			})
			if err != nil {
				return fmt.Errorf("vote: %w", err)
			}
		}

		if err := s.post("/close-nomination", nil); err != nil {
			return fmt.Errorf("close nomination: %w", err)
		}

		nom := s.state.CurrentNomination
		if nom == nil {
			continue
		}
		yes := 0
		for _, v := range nom.Votes {
			if v {
				yes++
			}
		}
		needed := (s.state.AliveCount() + 1) / 2
		fmt.Printf("    %d yes votes, %d needed\n", yes, needed)

		if yes >= needed {
			fmt.Printf("    Executing %s\n", nominee.Name)
			if err := s.post("/execute", map[string]any{"player_id": nominee.ID}); err != nil {
				return fmt.Errorf("execute: %w", err)
			}
			return nil
		}
		time.Sleep(s.delay)
	}
	return nil
}

func (s *simulator) winner() string {
	if s.state.Phase == game.PhaseEnded && s.state.Winner != nil {
		return string(*s.state.Winner)
	}
	return ""
}

func (s *simulator) printFinalRoles(winner string) {
	fmt.Printf("Game over, %s team wins. Final roles:\n", winner)
	for _, p := range s.state.Players {
		status := "alive"
		if !p.Alive {
			status = "dead"
		}
		fmt.Printf("  %s: %s (%s, %s)\n", p.Name, p.Role, p.Alignment, status)
	}
}

// post issues a game-scoped command and refreshes the cached state.
func (s *simulator) post(path string, body map[string]any) error {
	g, err := s.request("POST", "/api/games/"+s.gameID+path, body)
	if err != nil {
		return err
	}
	s.state = g
	return nil
}

func (s *simulator) request(method, path string, body map[string]any) (*game.Game, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, s.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("%s %s: %s (%s)", method, path, resp.Status, apiErr.Error)
	}

	var g game.Game
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return nil, err
	}
	return &g, nil
}
