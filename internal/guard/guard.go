// Package guard implements the per-user lockout state machine.
//
// The state is persisted by the credential store; this package owns only the
// policy (threshold and duration) and the transitions.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultThreshold is the failure count that triggers a lock.
	DefaultThreshold = 5
	// DefaultDuration is how long a lock lasts.
	DefaultDuration = 30 * time.Minute
)

// ErrStoreUnavailable wraps persistence failures while recording attempts.
var ErrStoreUnavailable = errors.New("lockout store unavailable")

// Policy configures when and for how long accounts lock.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultPolicy returns 5 failures / 30 minutes.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if p.Duration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	return nil
}

// State is the persisted lockout snapshot of one user.
type State struct {
	FailedAttempts int
	// LockedUntil is zero when no lock has been set.
	LockedUntil time.Time
}

// Decision is the result of Evaluate.
type Decision struct {
	Locked    bool
	Until     time.Time
	Remaining time.Duration
}

// Evaluate reports whether a login attempt may proceed to password
// verification. A lock whose deadline has passed counts as Active; nothing
// sweeps expired locks.
func Evaluate(state State, now time.Time) Decision {
	if state.LockedUntil.IsZero() || !state.LockedUntil.After(now) {
		return Decision{}
	}
	return Decision{
		Locked:    true,
		Until:     state.LockedUntil,
		Remaining: state.LockedUntil.Sub(now),
	}
}

// RemainingMinutes rounds d up to whole minutes, minimum 1.
func RemainingMinutes(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// Store is the persistence the guard needs. Implementations must make
// IncrementFailedLogins atomic per user. When the stored lock ended at or
// before at, IncrementFailedLogins clears it and restarts the count at 1.
type Store interface {
	IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error)
	LockUntil(ctx context.Context, userID string, until, at time.Time) error
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
}

// Outcome describes what a recorded failure did.
type Outcome struct {
	Attempts    int
	Locked      bool
	LockedUntil time.Time
}

// Guard applies a Policy against a Store.
type Guard struct {
	store  Store
	policy Policy
}

// New returns a Guard. The policy must be valid.
func New(store Store, policy Policy) (*Guard, error) {
	if store == nil {
		return nil, errors.New("guard store is nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Guard{store: store, policy: policy}, nil
}

// RecordFailure increments the user's counter and locks the account when the
// new count reaches the threshold. A lapsed lock does not carry its count
// over: the first failure after it is attempt 1. Concurrent failures may both observe a
// count at or above the threshold; both then write the same lock window.
func (g *Guard) RecordFailure(ctx context.Context, userID string, now time.Time) (Outcome, error) {
	count, err := g.store.IncrementFailedLogins(ctx, userID, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := Outcome{Attempts: count}
	if count < g.policy.Threshold {
		return out, nil
	}

	until := now.Add(g.policy.Duration)
	if err := g.store.LockUntil(ctx, userID, until, now); err != nil {
		return out, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out.Locked = true
	out.LockedUntil = until
	return out, nil
}

// RecordSuccess zeroes the counter, clears the lock and stamps last-login.
func (g *Guard) RecordSuccess(ctx context.Context, userID string, now time.Time) error {
	if err := g.store.RecordLoginSuccess(ctx, userID, now); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
