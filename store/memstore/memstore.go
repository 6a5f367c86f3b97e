// Package memstore is an in-memory goIdentity.CredentialStore for tests and
// local development. All state is lost on exit.
package memstore

import (
	"context"
	"sync"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// Store guards all state with one mutex, which also makes the Consume
// methods at-most-once.
type Store struct {
	mu sync.Mutex

	users         map[string]*goIdentity.User
	byEmail       map[string]string
	resets        map[string]*goIdentity.PasswordReset
	verifications map[string]*goIdentity.EmailVerification
	audit         []goIdentity.AuditEvent
}

var _ goIdentity.CredentialStore = (*Store)(nil)

func New() *Store {
	return &Store{
		users:         make(map[string]*goIdentity.User),
		byEmail:       make(map[string]string),
		resets:        make(map[string]*goIdentity.PasswordReset),
		verifications: make(map[string]*goIdentity.EmailVerification),
	}
}

func (s *Store) CreateUser(ctx context.Context, u goIdentity.NewUser) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return goIdentity.User{}, goIdentity.ErrEmailTaken
	}
	created := u.CreatedAt.UTC()
	user := &goIdentity.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		CurrencyCode: u.CurrencyCode,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	s.users[u.ID] = user
	s.byEmail[u.Email] = u.ID
	return copyUser(user), nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return goIdentity.User{}, goIdentity.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) UserByID(ctx context.Context, id string) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return goIdentity.User{}, goIdentity.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error) {
	var count int
	err := s.update(ctx, userID, at, func(u *goIdentity.User) {
		if u.LockedUntil != nil && !u.LockedUntil.After(at) {
			u.FailedLoginAttempts = 0
			u.LockedUntil = nil
		}
		u.FailedLoginAttempts++
		u.LastFailedLoginAt = timePtr(at)
		count = u.FailedLoginAttempts
	})
	return count, err
}

func (s *Store) LockUntil(ctx context.Context, userID string, until, at time.Time) error {
	return s.update(ctx, userID, at, func(u *goIdentity.User) {
		u.LockedUntil = timePtr(until)
	})
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	return s.update(ctx, userID, at, func(u *goIdentity.User) {
		u.FailedLoginAttempts = 0
		u.LastFailedLoginAt = nil
		u.LockedUntil = nil
		u.LastLoginAt = timePtr(at)
	})
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	return s.update(ctx, userID, at, func(u *goIdentity.User) {
		u.PasswordHash = passwordHash
		u.FailedLoginAttempts = 0
		u.LastFailedLoginAt = nil
		u.LockedUntil = nil
	})
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	return s.update(ctx, userID, at, func(u *goIdentity.User) {
		u.EmailVerified = true
	})
}

func (s *Store) update(ctx context.Context, userID string, at time.Time, fn func(*goIdentity.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return goIdentity.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = at.UTC()
	return nil
}

func (s *Store) CreatePasswordReset(ctx context.Context, r goIdentity.PasswordReset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[r.UserID]; !ok {
		return goIdentity.ErrNotFound
	}
	row := r
	s.resets[r.TokenHash] = &row
	return nil
}

// RedeemPasswordReset marks the reset used and sets the password under one
// lock. A missing user leaves the token unused.
func (s *Store) RedeemPasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (goIdentity.PasswordReset, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.PasswordReset{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resets[tokenHash]
	if !ok || r.UsedAt != nil || !r.ExpiresAt.After(now) {
		return goIdentity.PasswordReset{}, goIdentity.ErrNotFound
	}
	u, ok := s.users[r.UserID]
	if !ok {
		return goIdentity.PasswordReset{}, goIdentity.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.FailedLoginAttempts = 0
	u.LastFailedLoginAt = nil
	u.LockedUntil = nil
	u.UpdatedAt = now.UTC()
	r.UsedAt = timePtr(now)
	return *r, nil
}

func (s *Store) CreateEmailVerification(ctx context.Context, v goIdentity.EmailVerification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[v.UserID]; !ok {
		return goIdentity.ErrNotFound
	}
	row := v
	s.verifications[v.TokenHash] = &row
	return nil
}

func (s *Store) ConsumeEmailVerification(ctx context.Context, tokenHash string, now time.Time) (goIdentity.EmailVerification, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.EmailVerification{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.verifications[tokenHash]
	if !ok || v.VerifiedAt != nil || !v.ExpiresAt.After(now) {
		return goIdentity.EmailVerification{}, goIdentity.ErrNotFound
	}
	v.VerifiedAt = timePtr(now)
	return *v, nil
}

func (s *Store) CountPendingVerifications(ctx context.Context, userID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, v := range s.verifications {
		if v.UserID == userID && v.VerifiedAt == nil && v.ExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

// CountResets returns the number of reset rows for userID, used or not.
func (s *Store) CountResets(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.resets {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Emit makes Store an audit sink that keeps events in memory.
func (s *Store) Emit(_ context.Context, event goIdentity.AuditEvent) {
	s.mu.Lock()
	s.audit = append(s.audit, event)
	s.mu.Unlock()
}

// AuditEvents returns a copy of the recorded audit events.
func (s *Store) AuditEvents() []goIdentity.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]goIdentity.AuditEvent, len(s.audit))
	copy(out, s.audit)
	return out
}

func copyUser(u *goIdentity.User) goIdentity.User {
	out := *u
	out.LastFailedLoginAt = copyTime(u.LastFailedLoginAt)
	out.LockedUntil = copyTime(u.LockedUntil)
	out.LastLoginAt = copyTime(u.LastLoginAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	v := t.UTC()
	return &v
}
