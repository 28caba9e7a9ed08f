package events

import (
	"time"
)

// Event payload types shared between the lobby coordinator and the
// gateway's websocket feed.

// RoundOpenedPayload is emitted when a fresh round starts accepting
// bets. The seed hash is the fairness commitment for the round.
type RoundOpenedPayload struct {
	RoundID  string    `json:"round_id"`
	SeedHash string    `json:"seed_hash"`
	OpenedAt time.Time `json:"opened_at"`
}

// BetPlacedPayload is emitted on every accepted join. Bet amounts and
// predictions are not broadcast before the crash; only the address is.
type BetPlacedPayload struct {
	RoundID      string `json:"round_id"`
	Address      string `json:"address"`
	Participants int    `json:"participants"`
}

// RoundStartedPayload is emitted once bets are locked into the channel
// session and the multiplier curve begins.
type RoundStartedPayload struct {
	RoundID      string    `json:"round_id"`
	SessionID    string    `json:"session_id"`
	Participants int       `json:"participants"`
	StartedAt    time.Time `json:"started_at"`
}

// RoundCrashedPayload reveals the crash point and the server seed.
type RoundCrashedPayload struct {
	RoundID    string    `json:"round_id"`
	CrashPoint float64   `json:"crash_point"`
	ServerSeed string    `json:"server_seed"`
	SeedHash   string    `json:"seed_hash"`
	CrashedAt  time.Time `json:"crashed_at"`
}

// RoundSettledPayload is emitted once the settlement action finalized.
type RoundSettledPayload struct {
	RoundID   string             `json:"round_id"`
	SessionID string             `json:"session_id"`
	Payouts   map[string]float64 `json:"payouts"`
}

// RoundFailedPayload is emitted when the channel collaborator rejected
// the round after retry. Refunds are handled by the channel service.
type RoundFailedPayload struct {
	RoundID string `json:"round_id"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

// RoundResetPayload announces the next round's id after a reset.
type RoundResetPayload struct {
	PreviousRoundID string `json:"previous_round_id"`
	NextRoundID     string `json:"next_round_id"`
	NextSeedHash    string `json:"next_seed_hash"`
}
