package round

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playward/crashpoint/internal/models"
)

// statusRank orders the happy-path lifecycle. Transitions may only move
// to a strictly higher rank; FAILED sits outside the sequence and is
// handled separately in Advance.
var statusRank = map[models.RoundStatus]int{
	models.RoundStatusWaiting:      0,
	models.RoundStatusStarting:     1,
	models.RoundStatusActive:       2,
	models.RoundStatusCrashed:      3,
	models.RoundStatusSettling:     4,
	models.RoundStatusResetPending: 5,
}

// failableFrom lists the statuses a round may fail out of. A WAITING
// round has no external work in flight and nothing to fail.
var failableFrom = map[models.RoundStatus]bool{
	models.RoundStatusStarting: true,
	models.RoundStatusActive:   true,
	models.RoundStatusSettling: true,
}

// Commitment seeds a new round with its provably-fair material.
type Commitment struct {
	ServerSeed string
	SeedHash   string
}

// CommitmentSource produces a fresh seed commitment per round.
type CommitmentSource interface {
	NewCommitment() (Commitment, error)
}

// Ledger holds the authoritative in-memory state of the current round.
// It carries no business logic beyond transition legality; callers
// (the lobby coordinator) are responsible for serializing access.
type Ledger struct {
	clock         clockwork.Clock
	commitments   CommitmentSource
	maxMultiplier float64

	current *models.Round
	settled bool
}

// NewLedger creates a ledger with an open WAITING round.
func NewLedger(clock clockwork.Clock, commitments CommitmentSource, maxMultiplier float64) (*Ledger, error) {
	l := &Ledger{
		clock:         clock,
		commitments:   commitments,
		maxMultiplier: maxMultiplier,
	}
	if err := l.Reset(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the round being played. The returned pointer is owned
// by the ledger; callers must not retain it across a reset.
func (l *Ledger) Current() *models.Round {
	return l.current
}

// AddOrUpdateParticipant upserts a bet by address. Duplicate joins
// update the existing entry in place, preserving insertion order.
func (l *Ledger) AddOrUpdateParticipant(address string, betAmount, predictedMultiplier float64) (*models.Participant, error) {
	status := l.current.Status
	if status != models.RoundStatusWaiting && status != models.RoundStatusStarting {
		return nil, fmt.Errorf("join in status %s: %w", status, ErrInvalidState)
	}

	for _, p := range l.current.Participants {
		if p.Address == address {
			p.BetAmount = betAmount
			p.PredictedMultiplier = predictedMultiplier
			return p, nil
		}
	}

	p := &models.Participant{
		Address:             address,
		BetAmount:           betAmount,
		PredictedMultiplier: predictedMultiplier,
	}
	l.current.Participants = append(l.current.Participants, p)
	return p, nil
}

// Advance moves the round forward to the given status. Backward or
// sideways transitions fail with ErrInvalidState. Leaving WAITING
// requires at least one participant.
func (l *Ledger) Advance(to models.RoundStatus) error {
	from := l.current.Status

	if to == models.RoundStatusFailed {
		if !failableFrom[from] {
			return fmt.Errorf("fail from %s: %w", from, ErrInvalidState)
		}
		l.current.Status = models.RoundStatusFailed
		return nil
	}

	fromRank, ok := statusRank[from]
	if !ok {
		return fmt.Errorf("advance from %s: %w", from, ErrInvalidState)
	}
	toRank, ok := statusRank[to]
	if !ok || toRank <= fromRank {
		return fmt.Errorf("advance %s -> %s: %w", from, to, ErrInvalidState)
	}
	if from == models.RoundStatusWaiting && len(l.current.Participants) == 0 {
		return fmt.Errorf("advance with no participants: %w", ErrInvalidState)
	}

	l.current.Status = to
	if to == models.RoundStatusActive {
		now := l.clock.Now()
		l.current.StartedAt = &now
	}
	return nil
}

// SetCrashPoint records the crash point and transitions ACTIVE ->
// CRASHED. The crash point is assigned exactly once per round.
func (l *Ledger) SetCrashPoint(v float64) error {
	if l.current.Status != models.RoundStatusActive {
		return fmt.Errorf("set crash point in status %s: %w", l.current.Status, ErrInvalidState)
	}
	if v < 1.00 || v > l.maxMultiplier {
		return fmt.Errorf("crash point %.2f out of [1.00, %.2f]: %w", v, l.maxMultiplier, ErrValidation)
	}
	l.current.CrashPoint = v
	l.current.Status = models.RoundStatusCrashed
	now := l.clock.Now()
	l.current.CrashedAt = &now
	return nil
}

// AssignPayouts sets every participant's payout as a pure function of
// (betAmount, predictedMultiplier, crashPoint). Payouts are assigned
// exactly once; a second call fails.
func (l *Ledger) AssignPayouts() error {
	if l.current.Status != models.RoundStatusSettling {
		return fmt.Errorf("assign payouts in status %s: %w", l.current.Status, ErrInvalidState)
	}
	if l.settled {
		return fmt.Errorf("payouts already assigned: %w", ErrInvalidState)
	}

	for _, p := range l.current.Participants {
		payout := 0.0
		if p.PredictedMultiplier <= l.current.CrashPoint {
			payout = p.BetAmount * p.PredictedMultiplier
		}
		v := payout
		p.Payout = &v
	}
	l.settled = true
	return nil
}

// Reset discards the current round and opens a fresh WAITING round with
// a new id and a new seed commitment.
func (l *Ledger) Reset() error {
	commitment, err := l.commitments.NewCommitment()
	if err != nil {
		return fmt.Errorf("new seed commitment: %w", err)
	}

	l.current = &models.Round{
		ID:         uuid.New(),
		Status:     models.RoundStatusWaiting,
		ServerSeed: commitment.ServerSeed,
		SeedHash:   commitment.SeedHash,
		OpenedAt:   l.clock.Now(),
	}
	l.settled = false
	return nil
}
