package goIdentity

import (
	"context"
	"time"
)

// User is the persisted identity record. PasswordHash is empty for users
// provisioned without a local password; such users cannot log in with one.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Name                string
	CurrencyCode        string
	EmailVerified       bool
	Onboarded           bool
	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Projection strips credential and lockout fields.
func (u User) Projection() UserProjection {
	return UserProjection{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		CurrencyCode:  u.CurrencyCode,
		EmailVerified: u.EmailVerified,
		Onboarded:     u.Onboarded,
		CreatedAt:     u.CreatedAt,
	}
}

// UserProjection is the user shape returned to callers.
type UserProjection struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	CurrencyCode  string    `json:"currencyCode"`
	EmailVerified bool      `json:"emailVerified"`
	Onboarded     bool      `json:"onboarded"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewUser is the CreateUser input. Email must already be lower-cased.
type NewUser struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	CurrencyCode string
	CreatedAt    time.Time
}

// EmailVerification is one verification attempt. VerifiedAt nil means pending.
type EmailVerification struct {
	ID         string
	UserID     string
	Email      string
	TokenHash  string
	ExpiresAt  time.Time
	VerifiedAt *time.Time
	IP         string
	CreatedAt  time.Time
}

// PasswordReset is one reset attempt. UsedAt nil means unused.
type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	IP        string
	CreatedAt time.Time
}

// SignupInput carries the signup form. CurrencyCode defaults to USD.
type SignupInput struct {
	Name         string
	Email        string
	Password     string
	CurrencyCode string
}

// AuthResult is returned by Signup and Login.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         UserProjection
}

// TokenPair is returned by Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID        string
	Email         string
	EmailVerified bool
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// CredentialStore is the relational side of the engine. Implementations
// must translate duplicate emails to ErrEmailTaken and missing rows to
// ErrNotFound; any other error is treated as the store being unavailable.
//
// The Consume methods must be at-most-once: of two concurrent calls with
// the same hash, at most one returns the row.
type CredentialStore interface {
	CreateUser(ctx context.Context, u NewUser) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)

	// IncrementFailedLogins restarts at 1 and clears the lock when the lock
	// ended at or before at.
	IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error)
	LockUntil(ctx context.Context, userID string, until, at time.Time) error
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error

	// UpdatePassword also zeroes the failed-login counter and clears any lock.
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error

	CreatePasswordReset(ctx context.Context, r PasswordReset) error
	// RedeemPasswordReset atomically marks an unused, unexpired reset used and
	// sets the user's password as UpdatePassword does. ErrNotFound leaves
	// both untouched.
	RedeemPasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (PasswordReset, error)

	CreateEmailVerification(ctx context.Context, v EmailVerification) error
	ConsumeEmailVerification(ctx context.Context, tokenHash string, now time.Time) (EmailVerification, error)
	CountPendingVerifications(ctx context.Context, userID string, now time.Time) (int, error)

	Ping(ctx context.Context) error
}
