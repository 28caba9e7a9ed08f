// Package lobby implements the round lifecycle coordinator: it collects
// bets into the current round, drives the WAITING -> STARTING -> ACTIVE
// -> CRASHED -> SETTLING -> RESET_PENDING sequence on timers, and calls
// out to the state-channel collaborator to lock bets and settle
// payouts.
package lobby

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/playward/crashpoint/internal/channel"
	"github.com/playward/crashpoint/internal/events"
	"github.com/playward/crashpoint/internal/fairness"
	"github.com/playward/crashpoint/internal/models"
	"github.com/playward/crashpoint/internal/round"
)

// Config holds the round timing and betting limits.
type Config struct {
	MinParticipants  int
	StartDelay       time.Duration
	ResetDelay       time.Duration
	RetryBackoff     time.Duration
	SignatureTimeout time.Duration
	MinMultiplier    float64
	MaxMultiplier    float64
	// MultiplierRate is how fast the multiplier curve climbs, in
	// multiplier units per second above 1.00. It determines how long an
	// ACTIVE round runs before its crash point is reached.
	MultiplierRate float64
}

// DefaultConfig returns the production round timings.
func DefaultConfig() Config {
	return Config{
		MinParticipants:  1,
		StartDelay:       10 * time.Second,
		ResetDelay:       5 * time.Second,
		RetryBackoff:     2 * time.Second,
		SignatureTimeout: 30 * time.Second,
		MinMultiplier:    1.01,
		MaxMultiplier:    10.00,
		MultiplierRate:   0.5,
	}
}

// Coordinator owns the current round and serializes every mutation
// behind its mutex. Calls to the channel collaborator are made outside
// the lock; their results are applied only after re-validating that the
// round they belong to is still current and in the expected status.
type Coordinator struct {
	cfg       Config
	clock     clockwork.Clock
	scheduler *Scheduler
	ledger    *round.Ledger
	collab    channel.Collaborator
	source    fairness.Source
	publisher events.Publisher

	mu           sync.Mutex
	sessionID    string
	pendingCrash float64
	startTimer   *Handle
	endTimer     *Handle
	resetTimer   *Handle
}

// NewCoordinator wires the coordinator. The ledger is created here so
// the coordinator is the only writer.
func NewCoordinator(cfg Config, clock clockwork.Clock, collab channel.Collaborator, source fairness.Source, publisher events.Publisher) (*Coordinator, error) {
	ledger, err := round.NewLedger(clock, source, cfg.MaxMultiplier)
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}

	c := &Coordinator{
		cfg:       cfg,
		clock:     clock,
		scheduler: NewScheduler(clock),
		ledger:    ledger,
		collab:    collab,
		source:    source,
		publisher: publisher,
	}

	cur := ledger.Current()
	c.emit(events.EventTypeRoundOpened, cur.ID, events.RoundOpenedPayload{
		RoundID:  cur.ID.String(),
		SeedHash: cur.SeedHash,
		OpenedAt: cur.OpenedAt,
	})
	return c, nil
}

// JoinResult is returned to a joining player.
type JoinResult struct {
	RoundID uuid.UUID          `json:"round_id"`
	Status  models.RoundStatus `json:"status"`
}

// Join validates and records a bet on the current round. When the
// round reaches the minimum participant count the start timer is
// armed; joins stay open until the timer fires.
func (c *Coordinator) Join(ctx context.Context, address string, betAmount, predictedMultiplier float64) (JoinResult, error) {
	if address == "" {
		return JoinResult{}, fmt.Errorf("address required: %w", round.ErrValidation)
	}
	if betAmount <= 0 {
		return JoinResult{}, fmt.Errorf("bet amount %.2f must be positive: %w", betAmount, round.ErrValidation)
	}
	if predictedMultiplier < c.cfg.MinMultiplier || predictedMultiplier > c.cfg.MaxMultiplier {
		return JoinResult{}, fmt.Errorf("predicted multiplier %.2f out of [%.2f, %.2f]: %w",
			predictedMultiplier, c.cfg.MinMultiplier, c.cfg.MaxMultiplier, round.ErrValidation)
	}

	c.mu.Lock()
	cur := c.ledger.Current()
	if _, err := c.ledger.AddOrUpdateParticipant(address, betAmount, predictedMultiplier); err != nil {
		c.mu.Unlock()
		return JoinResult{}, err
	}

	roundID := cur.ID
	count := len(cur.Participants)
	if count >= c.cfg.MinParticipants && c.startTimer == nil && cur.Status == models.RoundStatusWaiting {
		c.startTimer = c.scheduler.Schedule(c.cfg.StartDelay, func() {
			c.onStartTimer(roundID)
		})
		log.Info().
			Str("round_id", roundID.String()).
			Dur("delay", c.cfg.StartDelay).
			Int("participants", count).
			Msg("start timer armed")
	}
	result := JoinResult{RoundID: roundID, Status: cur.Status}
	c.mu.Unlock()

	c.emit(events.EventTypeBetPlaced, roundID, events.BetPlacedPayload{
		RoundID:      roundID.String(),
		Address:      address,
		Participants: count,
	})
	return result, nil
}

// onStartTimer locks bets into a channel session and starts the round.
func (c *Coordinator) onStartTimer(roundID uuid.UUID) {
	c.mu.Lock()
	c.startTimer = nil
	cur := c.ledger.Current()
	if cur.ID != roundID || cur.Status != models.RoundStatusWaiting {
		c.mu.Unlock()
		log.Debug().Str("round_id", roundID.String()).Msg("start timer fired for stale round, discarding")
		return
	}
	if err := c.ledger.Advance(models.RoundStatusStarting); err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("advance to STARTING failed")
		return
	}
	debits := make([]channel.BalanceChange, len(cur.Participants))
	for i, p := range cur.Participants {
		debits[i] = channel.BalanceChange{Address: p.Address, Amount: p.BetAmount}
	}
	c.mu.Unlock()

	ctx := context.Background()
	sessionID, err := c.openWithRetry(ctx, debits)
	if err != nil {
		c.failRound(roundID, "openSession", err)
		return
	}

	c.mu.Lock()
	cur = c.ledger.Current()
	if cur.ID != roundID || cur.Status != models.RoundStatusStarting {
		c.mu.Unlock()
		log.Warn().
			Str("round_id", roundID.String()).
			Str("session_id", sessionID).
			Msg("round changed during session open, discarding stale session")
		if endErr := c.collab.EndSession(ctx, sessionID); endErr != nil {
			log.Error().Err(endErr).Str("session_id", sessionID).Msg("failed to end stale session")
		}
		return
	}

	if err := c.ledger.Advance(models.RoundStatusActive); err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("advance to ACTIVE failed")
		return
	}
	c.sessionID = sessionID

	// The crash point exists only from this moment on: deriving it any
	// earlier would leak information before predictions are locked.
	c.pendingCrash = c.source.CrashPoint(cur.ServerSeed, cur.ID.String())
	runFor := c.curveDuration(c.pendingCrash)
	c.endTimer = c.scheduler.Schedule(runFor, func() {
		c.onEndTimer(roundID)
	})

	startedAt := c.clock.Now()
	participants := len(cur.Participants)
	c.mu.Unlock()

	log.Info().
		Str("round_id", roundID.String()).
		Str("session_id", sessionID).
		Int("participants", participants).
		Dur("run_for", runFor).
		Msg("round active")

	c.emit(events.EventTypeRoundStarted, roundID, events.RoundStartedPayload{
		RoundID:      roundID.String(),
		SessionID:    sessionID,
		Participants: participants,
		StartedAt:    startedAt,
	})
}

// onEndTimer crashes the round, assigns payouts and settles them
// through the channel collaborator.
func (c *Coordinator) onEndTimer(roundID uuid.UUID) {
	c.mu.Lock()
	c.endTimer = nil
	cur := c.ledger.Current()
	if cur.ID != roundID || cur.Status != models.RoundStatusActive {
		c.mu.Unlock()
		log.Debug().Str("round_id", roundID.String()).Msg("end timer fired for stale round, discarding")
		return
	}

	if err := c.ledger.SetCrashPoint(c.pendingCrash); err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("set crash point failed")
		return
	}
	if err := c.ledger.Advance(models.RoundStatusSettling); err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("advance to SETTLING failed")
		return
	}
	if err := c.ledger.AssignPayouts(); err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("assign payouts failed")
		return
	}

	sessionID := c.sessionID
	crashed := events.RoundCrashedPayload{
		RoundID:    roundID.String(),
		CrashPoint: cur.CrashPoint,
		ServerSeed: cur.ServerSeed,
		SeedHash:   cur.SeedHash,
		CrashedAt:  *cur.CrashedAt,
	}
	payouts := make(map[string]float64, len(cur.Participants))
	var credits []channel.BalanceChange
	for _, p := range cur.Participants {
		payouts[p.Address] = *p.Payout
		if *p.Payout > 0 {
			credits = append(credits, channel.BalanceChange{Address: p.Address, Amount: *p.Payout})
		}
	}
	c.mu.Unlock()

	log.Info().
		Str("round_id", roundID.String()).
		Float64("crash_point", crashed.CrashPoint).
		Int("winners", len(credits)).
		Msg("round crashed")
	c.emit(events.EventTypeRoundCrashed, roundID, crashed)

	ctx := context.Background()
	if err := c.settleWithRetry(ctx, sessionID, credits); err != nil {
		c.failRound(roundID, "finalizeSettlement", err)
		return
	}
	if err := c.collab.EndSession(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to end settled session")
	}

	c.mu.Lock()
	cur = c.ledger.Current()
	if cur.ID != roundID || cur.Status != models.RoundStatusSettling {
		c.mu.Unlock()
		log.Debug().Str("round_id", roundID.String()).Msg("round changed during settlement, discarding")
		return
	}
	if err := c.ledger.Advance(models.RoundStatusResetPending); err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("advance to RESET_PENDING failed")
		return
	}
	c.resetTimer = c.scheduler.Schedule(c.cfg.ResetDelay, func() {
		c.onResetTimer(roundID)
	})
	c.mu.Unlock()

	c.emit(events.EventTypeRoundSettled, roundID, events.RoundSettledPayload{
		RoundID:   roundID.String(),
		SessionID: sessionID,
		Payouts:   payouts,
	})
}

// onResetTimer discards the settled round and opens the next one.
func (c *Coordinator) onResetTimer(roundID uuid.UUID) {
	c.mu.Lock()
	c.resetTimer = nil
	cur := c.ledger.Current()
	if cur.ID != roundID {
		c.mu.Unlock()
		return
	}
	next, err := c.resetLocked()
	c.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("reset failed")
		return
	}

	c.emitReset(roundID, next)
}

// failRound marks the round FAILED and immediately resets. Refunding
// collected bets is the channel service's responsibility, not ours.
func (c *Coordinator) failRound(roundID uuid.UUID, stage string, cause error) {
	log.Error().
		Err(cause).
		Str("round_id", roundID.String()).
		Str("stage", stage).
		Msg("collaborator rejected round after retry, failing")

	c.mu.Lock()
	cur := c.ledger.Current()
	if cur.ID != roundID {
		c.mu.Unlock()
		return
	}
	if err := c.ledger.Advance(models.RoundStatusFailed); err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("advance to FAILED failed")
	}
	sessionID := c.sessionID
	next, err := c.resetLocked()
	c.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("reset after failure failed")
		return
	}

	if sessionID != "" {
		if endErr := c.collab.EndSession(context.Background(), sessionID); endErr != nil {
			log.Error().Err(endErr).Str("session_id", sessionID).Msg("failed to end session of failed round")
		}
	}

	c.emit(events.EventTypeRoundFailed, roundID, events.RoundFailedPayload{
		RoundID: roundID.String(),
		Stage:   stage,
		Reason:  cause.Error(),
	})
	c.emitReset(roundID, next)
}

// resetLocked cancels residual timers and opens the next round. Caller
// holds the mutex.
func (c *Coordinator) resetLocked() (*models.Round, error) {
	c.scheduler.Cancel(c.startTimer)
	c.scheduler.Cancel(c.endTimer)
	c.scheduler.Cancel(c.resetTimer)
	c.startTimer, c.endTimer, c.resetTimer = nil, nil, nil
	c.sessionID = ""
	c.pendingCrash = 0

	if err := c.ledger.Reset(); err != nil {
		return nil, err
	}
	return c.ledger.Current(), nil
}

func (c *Coordinator) emitReset(prev uuid.UUID, next *models.Round) {
	log.Info().
		Str("previous_round_id", prev.String()).
		Str("next_round_id", next.ID.String()).
		Msg("round reset")

	c.emit(events.EventTypeRoundReset, next.ID, events.RoundResetPayload{
		PreviousRoundID: prev.String(),
		NextRoundID:     next.ID.String(),
		NextSeedHash:    next.SeedHash,
	})
	c.emit(events.EventTypeRoundOpened, next.ID, events.RoundOpenedPayload{
		RoundID:  next.ID.String(),
		SeedHash: next.SeedHash,
		OpenedAt: next.OpenedAt,
	})
}

// openWithRetry opens a session and collects signatures, retrying once
// after a fixed backoff.
func (c *Coordinator) openWithRetry(ctx context.Context, debits []channel.BalanceChange) (string, error) {
	sessionID, err := c.openAndCollect(ctx, debits)
	if err == nil {
		return sessionID, nil
	}
	log.Warn().Err(err).Dur("backoff", c.cfg.RetryBackoff).Msg("session open failed, retrying")
	c.clock.Sleep(c.cfg.RetryBackoff)
	return c.openAndCollect(ctx, debits)
}

func (c *Coordinator) openAndCollect(ctx context.Context, debits []channel.BalanceChange) (string, error) {
	sessionID, err := c.collab.OpenSession(ctx, debits)
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	if err := c.collab.CollectSignatures(ctx, sessionID, c.cfg.SignatureTimeout); err != nil {
		if endErr := c.collab.EndSession(ctx, sessionID); endErr != nil {
			log.Error().Err(endErr).Str("session_id", sessionID).Msg("failed to end unsigned session")
		}
		return "", fmt.Errorf("collect signatures: %w", err)
	}
	return sessionID, nil
}

// settleWithRetry finalizes the settlement, retrying once after a fixed
// backoff.
func (c *Coordinator) settleWithRetry(ctx context.Context, sessionID string, credits []channel.BalanceChange) error {
	err := c.collab.FinalizeSettlement(ctx, sessionID, credits)
	if err == nil {
		return nil
	}
	log.Warn().Err(err).Dur("backoff", c.cfg.RetryBackoff).Msg("settlement failed, retrying")
	c.clock.Sleep(c.cfg.RetryBackoff)
	if err := c.collab.FinalizeSettlement(ctx, sessionID, credits); err != nil {
		return fmt.Errorf("finalize settlement: %w", err)
	}
	return nil
}

// curveDuration is how long the multiplier curve takes to climb from
// 1.00 to the crash point.
func (c *Coordinator) curveDuration(crashPoint float64) time.Duration {
	return time.Duration((crashPoint - 1.00) / c.cfg.MultiplierRate * float64(time.Second))
}

// emit publishes a round event, logging failures rather than failing
// the round over a broken event fabric.
func (c *Coordinator) emit(eventType events.EventType, roundID uuid.UUID, payload any) {
	event, err := events.NewEvent(eventType, roundID.String(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build round event")
		return
	}
	if err := c.publisher.Publish(context.Background(), event); err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish round event")
	}
}
