package round

import (
	"fmt"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/playward/crashpoint/internal/models"
)

type stubCommitments struct {
	n int
}

func (s *stubCommitments) NewCommitment() (Commitment, error) {
	s.n++
	return Commitment{
		ServerSeed: fmt.Sprintf("seed-%d", s.n),
		SeedHash:   fmt.Sprintf("hash-%d", s.n),
	}, nil
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(clockwork.NewFakeClock(), &stubCommitments{}, 10.00)
	require.NoError(t, err)
	return l
}

func TestNewLedgerOpensWaitingRound(t *testing.T) {
	l := newTestLedger(t)
	cur := l.Current()
	require.Equal(t, models.RoundStatusWaiting, cur.Status)
	require.Empty(t, cur.Participants)
	require.Equal(t, "seed-1", cur.ServerSeed)
	require.Equal(t, "hash-1", cur.SeedHash)
}

func TestAddOrUpdateParticipant(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.AddOrUpdateParticipant("0xA", 100, 2.00)
	require.NoError(t, err)
	_, err = l.AddOrUpdateParticipant("0xB", 50, 1.50)
	require.NoError(t, err)

	// Duplicate join updates in place, preserving insertion order.
	_, err = l.AddOrUpdateParticipant("0xA", 200, 3.00)
	require.NoError(t, err)

	participants := l.Current().Participants
	require.Len(t, participants, 2)
	require.Equal(t, "0xA", participants[0].Address)
	require.Equal(t, 200.0, participants[0].BetAmount)
	require.Equal(t, 3.00, participants[0].PredictedMultiplier)
	require.Equal(t, "0xB", participants[1].Address)
}

func TestAddOrUpdateParticipantAllowedDuringStarting(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AddOrUpdateParticipant("0xA", 100, 2.00)
	require.NoError(t, err)
	require.NoError(t, l.Advance(models.RoundStatusStarting))

	_, err = l.AddOrUpdateParticipant("0xB", 50, 1.50)
	require.NoError(t, err)
}

func TestAddOrUpdateParticipantRejectedOutsideBetting(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AddOrUpdateParticipant("0xA", 100, 2.00)
	require.NoError(t, err)
	require.NoError(t, l.Advance(models.RoundStatusStarting))
	require.NoError(t, l.Advance(models.RoundStatusActive))

	_, err = l.AddOrUpdateParticipant("0xB", 50, 1.50)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestAdvanceForwardOnly(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AddOrUpdateParticipant("0xA", 100, 2.00)
	require.NoError(t, err)

	require.NoError(t, l.Advance(models.RoundStatusStarting))
	require.NoError(t, l.Advance(models.RoundStatusActive))

	// Backward and sideways transitions are rejected.
	require.ErrorIs(t, l.Advance(models.RoundStatusWaiting), ErrInvalidState)
	require.ErrorIs(t, l.Advance(models.RoundStatusStarting), ErrInvalidState)
	require.ErrorIs(t, l.Advance(models.RoundStatusActive), ErrInvalidState)
	require.Equal(t, models.RoundStatusActive, l.Current().Status)
}

func TestAdvanceRequiresParticipants(t *testing.T) {
	l := newTestLedger(t)
	require.ErrorIs(t, l.Advance(models.RoundStatusStarting), ErrInvalidState)
	require.Equal(t, models.RoundStatusWaiting, l.Current().Status)
}

func TestAdvanceToFailed(t *testing.T) {
	l := newTestLedger(t)

	// A WAITING round has nothing in flight to fail.
	require.ErrorIs(t, l.Advance(models.RoundStatusFailed), ErrInvalidState)

	_, err := l.AddOrUpdateParticipant("0xA", 100, 2.00)
	require.NoError(t, err)
	require.NoError(t, l.Advance(models.RoundStatusStarting))
	require.NoError(t, l.Advance(models.RoundStatusFailed))
	require.Equal(t, models.RoundStatusFailed, l.Current().Status)

	// FAILED is terminal until reset.
	require.ErrorIs(t, l.Advance(models.RoundStatusActive), ErrInvalidState)
}

func TestSetCrashPoint(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AddOrUpdateParticipant("0xA", 100, 2.00)
	require.NoError(t, err)

	// Only legal in ACTIVE.
	require.ErrorIs(t, l.SetCrashPoint(1.50), ErrInvalidState)

	require.NoError(t, l.Advance(models.RoundStatusStarting))
	require.NoError(t, l.Advance(models.RoundStatusActive))

	require.ErrorIs(t, l.SetCrashPoint(0.99), ErrValidation)
	require.ErrorIs(t, l.SetCrashPoint(10.01), ErrValidation)

	require.NoError(t, l.SetCrashPoint(1.50))
	require.Equal(t, models.RoundStatusCrashed, l.Current().Status)
	require.Equal(t, 1.50, l.Current().CrashPoint)
	require.NotNil(t, l.Current().CrashedAt)

	// Assigned exactly once: the round is no longer ACTIVE.
	require.ErrorIs(t, l.SetCrashPoint(2.00), ErrInvalidState)
	require.Equal(t, 1.50, l.Current().CrashPoint)
}

func TestAssignPayouts(t *testing.T) {
	tests := []struct {
		name       string
		bet        float64
		predicted  float64
		crashPoint float64
		want       float64
	}{
		{"prediction below crash wins", 100, 2.00, 3.00, 200},
		{"prediction above crash loses", 100, 2.00, 1.50, 0},
		{"prediction at crash wins", 100, 2.00, 2.00, 200},
		{"minimum prediction", 50, 1.01, 1.01, 50.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t)
			_, err := l.AddOrUpdateParticipant("0xA", tt.bet, tt.predicted)
			require.NoError(t, err)
			require.NoError(t, l.Advance(models.RoundStatusStarting))
			require.NoError(t, l.Advance(models.RoundStatusActive))
			require.NoError(t, l.SetCrashPoint(tt.crashPoint))
			require.NoError(t, l.Advance(models.RoundStatusSettling))

			require.NoError(t, l.AssignPayouts())
			p := l.Current().Participants[0]
			require.NotNil(t, p.Payout)
			require.InDelta(t, tt.want, *p.Payout, 1e-9)
		})
	}
}

func TestAssignPayoutsOnlyOnce(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AddOrUpdateParticipant("0xA", 100, 2.00)
	require.NoError(t, err)

	// Only legal in SETTLING.
	require.ErrorIs(t, l.AssignPayouts(), ErrInvalidState)

	require.NoError(t, l.Advance(models.RoundStatusStarting))
	require.NoError(t, l.Advance(models.RoundStatusActive))
	require.NoError(t, l.SetCrashPoint(3.00))
	require.NoError(t, l.Advance(models.RoundStatusSettling))

	require.NoError(t, l.AssignPayouts())
	require.ErrorIs(t, l.AssignPayouts(), ErrInvalidState)
}

func TestReset(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AddOrUpdateParticipant("0xA", 100, 2.00)
	require.NoError(t, err)

	prevID := l.Current().ID
	require.NoError(t, l.Reset())

	cur := l.Current()
	require.NotEqual(t, prevID, cur.ID)
	require.Equal(t, models.RoundStatusWaiting, cur.Status)
	require.Empty(t, cur.Participants)
	require.Equal(t, "seed-2", cur.ServerSeed)

	// A reset round settles independently of the previous one.
	_, err = l.AddOrUpdateParticipant("0xB", 10, 2.00)
	require.NoError(t, err)
	require.NoError(t, l.Advance(models.RoundStatusStarting))
	require.NoError(t, l.Advance(models.RoundStatusActive))
	require.NoError(t, l.SetCrashPoint(5.00))
	require.NoError(t, l.Advance(models.RoundStatusSettling))
	require.NoError(t, l.AssignPayouts())
}
