package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus defines the lifecycle status of a round.
type RoundStatus string

const (
	RoundStatusWaiting      RoundStatus = "WAITING"
	RoundStatusStarting     RoundStatus = "STARTING"
	RoundStatusActive       RoundStatus = "ACTIVE"
	RoundStatusCrashed      RoundStatus = "CRASHED"
	RoundStatusSettling     RoundStatus = "SETTLING"
	RoundStatusResetPending RoundStatus = "RESET_PENDING"
	RoundStatusFailed       RoundStatus = "FAILED"
)

// Participant is a player's bet within a single round. Payout stays nil
// until the round settles.
type Participant struct {
	Address             string   `json:"address"`
	BetAmount           float64  `json:"bet_amount"`
	PredictedMultiplier float64  `json:"predicted_multiplier"`
	Payout              *float64 `json:"payout,omitempty"`
}

// Round represents one complete play cycle from lobby open to reset.
// ServerSeed is withheld from clients until the round has crashed; the
// SeedHash commitment is public from the moment the round opens.
type Round struct {
	ID           uuid.UUID      `json:"id"`
	Status       RoundStatus    `json:"status"`
	Participants []*Participant `json:"participants"`
	CrashPoint   float64        `json:"crash_point,omitempty"`
	ServerSeed   string         `json:"server_seed,omitempty"`
	SeedHash     string         `json:"seed_hash"`
	OpenedAt     time.Time      `json:"opened_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CrashedAt    *time.Time     `json:"crashed_at,omitempty"`
}
