// Package channel defines the contract with the external state-channel
// service that owns session authentication, pending-action signing and
// multi-sig settlement. This process never touches key material or
// settlement correctness; it only opens sessions, submits collected
// balance changes and learns when actions finalize.
package channel

import (
	"context"
	"fmt"
	"time"
)

// BalanceChange is a single debit or credit against a participant's
// channel balance, denominated in the channel's settlement unit.
type BalanceChange struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// Collaborator is the capability set the lobby coordinator needs from
// the state-channel service.
type Collaborator interface {
	// OpenSession creates a pending action debiting each participant's
	// bet and returns the session id.
	OpenSession(ctx context.Context, debits []BalanceChange) (string, error)
	// CollectSignatures blocks until every participant has signed the
	// pending action or the timeout elapses.
	CollectSignatures(ctx context.Context, sessionID string, timeout time.Duration) error
	// FinalizeSettlement creates and finalizes the settlement action
	// crediting winners.
	FinalizeSettlement(ctx context.Context, sessionID string, credits []BalanceChange) error
	// EndSession closes the session. Called on both settled and failed
	// rounds; refunds on failure are the channel service's concern.
	EndSession(ctx context.Context, sessionID string) error
}

// SessionError reports a rejected session or action request.
type SessionError struct {
	Op     string
	Reason string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("channel %s rejected: %s", e.Op, e.Reason)
}

// TimeoutError reports that signatures were not collected within the
// grace period.
type TimeoutError struct {
	SessionID string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("signature collection for session %s timed out after %s", e.SessionID, e.Timeout)
}

// SettlementError reports a failed settlement finalization.
type SettlementError struct {
	SessionID string
	Reason    string
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement for session %s failed: %s", e.SessionID, e.Reason)
}
