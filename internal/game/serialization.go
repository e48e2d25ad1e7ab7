package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SnapshotChecksum is a deterministic fingerprint of a game snapshot.
// Checksums guard against divergent state across replays and verify that a
// store round-trip preserved the snapshot byte-for-byte.
type SnapshotChecksum struct {
	Hash    string // SHA-256 hash of the canonical serialization
	Version int    // serialization version, for forward compatibility
}

// ComputeChecksum generates the deterministic checksum of a snapshot. The
// canonical form excludes wall-clock fields (created_at, updated_at) so two
// games that played out identically hash identically.
func (g *Game) ComputeChecksum() (*SnapshotChecksum, error) {
	canonical, err := g.canonicalRepresentation()
	if err != nil {
		return nil, err
	}

	hash := sha256.New()
	if _, err := hash.Write([]byte(canonical)); err != nil {
		return nil, fmt.Errorf("compute hash: %w", err)
	}

	return &SnapshotChecksum{
		Hash:    hex.EncodeToString(hash.Sum(nil)),
		Version: 1,
	}, nil
}

// canonicalRepresentation builds a canonical string form of the snapshot:
// maps sorted by key, slices in their stored order (player order and info
// order are semantically meaningful), timestamps omitted.
func (g *Game) canonicalRepresentation() (string, error) {
	var buf bytes.Buffer

	winner := ""
	if g.Winner != nil {
		winner = string(*g.Winner)
	}
	fmt.Fprintf(&buf, "GAME:%s|%s|%d|%s|%d|%d\n", g.ID, g.Phase, g.DayNumber, winner, g.Seed, g.Step)

	for _, p := range g.Players {
		fmt.Fprintf(&buf, "PLAYER:%s|%s|%d|%t|%s|%s|%t|%t|%t|%t|%s|%t\n",
			p.ID, p.Name, p.Seat, p.Alive, p.Role, p.Alignment,
			p.Poisoned, p.Protected, p.UsedAbility, p.Drunk, p.MasterID, p.RedHerring)
	}

	if nom := g.CurrentNomination; nom != nil {
		fmt.Fprintf(&buf, "NOMINATION:%s|%s|%s|%t\n", nom.ID, nom.NominatorID, nom.NomineeID, nom.Closed)
		voterIDs := make([]string, 0, len(nom.Votes))
		for id := range nom.Votes {
			voterIDs = append(voterIDs, id)
		}
		sort.Strings(voterIDs)
		for _, id := range voterIDs {
			fmt.Fprintf(&buf, "  VOTE:%s=%t\n", id, nom.Votes[id])
		}
	}

	for _, a := range g.NightActions {
		result, err := canonicalJSON(a.Result)
		if err != nil {
			return "", fmt.Errorf("night action %s: %w", a.ID, err)
		}
		fmt.Fprintf(&buf, "NIGHT_ACTION:%s|%s|%s|%s|%t|%s\n",
			a.ID, a.PlayerID, a.Role, strings.Join(a.Targets, ","), a.Resolved, result)
	}

	for _, info := range g.PlayerInfo {
		payload, err := canonicalJSON(info.Information)
		if err != nil {
			return "", fmt.Errorf("player info for %s: %w", info.PlayerID, err)
		}
		fmt.Fprintf(&buf, "INFO:%s|%s|%d|%s\n",
			info.PlayerID, info.InformationType, info.NightReceived, payload)
	}

	if ex := g.LastExecution; ex != nil {
		fmt.Fprintf(&buf, "LAST_EXECUTION:%s|%s|%d\n", ex.PlayerID, ex.Role, ex.Day)
	}

	return buf.String(), nil
}

// canonicalJSON marshals a payload with sorted object keys, which
// encoding/json guarantees for maps.
func canonicalJSON(payload map[string]any) (string, error) {
	if payload == nil {
		return "null", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// VerifyChecksum recomputes the snapshot checksum and compares it with an
// expected value.
func (g *Game) VerifyChecksum(expected *SnapshotChecksum) (bool, error) {
	computed, err := g.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("compute checksum: %w", err)
	}
	return computed.Hash == expected.Hash, nil
}
