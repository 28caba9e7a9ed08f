package lobby

import (
	"time"

	"github.com/playward/crashpoint/internal/models"
)

// ParticipantView is a participant as shown to a specific viewer.
// Before the crash, other players' bet amounts and predictions are
// withheld so nobody can bet against revealed positions.
type ParticipantView struct {
	Address             string   `json:"address"`
	BetAmount           *float64 `json:"bet_amount,omitempty"`
	PredictedMultiplier *float64 `json:"predicted_multiplier,omitempty"`
	Payout              *float64 `json:"payout,omitempty"`
}

// RoundSnapshot is the public view of the current round. CrashPoint and
// ServerSeed appear only once the round has crashed; the SeedHash
// commitment is always visible.
type RoundSnapshot struct {
	RoundID      string             `json:"round_id"`
	Status       models.RoundStatus `json:"status"`
	Participants []ParticipantView  `json:"participants"`
	CrashPoint   *float64           `json:"crash_point,omitempty"`
	ServerSeed   string             `json:"server_seed,omitempty"`
	SeedHash     string             `json:"seed_hash"`
	OpenedAt     time.Time          `json:"opened_at"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	CrashedAt    *time.Time         `json:"crashed_at,omitempty"`
}

// Snapshot returns a redacted copy of the current round for the given
// viewer address. An empty viewer sees only the public fields.
func (c *Coordinator) Snapshot(viewer string) RoundSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.ledger.Current()
	revealed := cur.CrashedAt != nil

	snap := RoundSnapshot{
		RoundID:      cur.ID.String(),
		Status:       cur.Status,
		Participants: make([]ParticipantView, 0, len(cur.Participants)),
		SeedHash:     cur.SeedHash,
		OpenedAt:     cur.OpenedAt,
		StartedAt:    cur.StartedAt,
		CrashedAt:    cur.CrashedAt,
	}
	if revealed {
		cp := cur.CrashPoint
		snap.CrashPoint = &cp
		snap.ServerSeed = cur.ServerSeed
	}

	for _, p := range cur.Participants {
		view := ParticipantView{Address: p.Address}
		if revealed || p.Address == viewer {
			bet := p.BetAmount
			predicted := p.PredictedMultiplier
			view.BetAmount = &bet
			view.PredictedMultiplier = &predicted
			view.Payout = p.Payout
		}
		snap.Participants = append(snap.Participants, view)
	}
	return snap
}
