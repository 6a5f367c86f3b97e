package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite://" + filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func createUser(t *testing.T, s *Store, id, email string) goIdentity.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), goIdentity.NewUser{
		ID:           id,
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		Name:         "Alice",
		CurrencyCode: "EUR",
		CreatedAt:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return u
}

func TestParseDSN(t *testing.T) {
	cases := []struct {
		in      string
		dialect Dialect
		wantErr bool
	}{
		{in: "postgres://u:p@localhost/db", dialect: Postgres},
		{in: "postgresql://localhost/db", dialect: Postgres},
		{in: "sqlite:///tmp/x.db", dialect: SQLite},
		{in: "/var/lib/identity.db", dialect: SQLite},
		{in: "mysql://localhost/db", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		d, _, err := ParseDSN(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.dialect, d, tc.in)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestUserRoundTripAndDuplicateEmail(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u1", "alice@example.com")

	assert.Equal(t, "EUR", u.CurrencyCode)
	assert.False(t, u.EmailVerified)
	assert.Zero(t, u.FailedLoginAttempts)
	assert.Nil(t, u.LockedUntil)

	got, err := s.UserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt))

	_, err = s.CreateUser(ctx, goIdentity.NewUser{ID: "u2", Email: "alice@example.com", Name: "Other", CurrencyCode: "USD", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, goIdentity.ErrEmailTaken)

	_, err = s.UserByID(ctx, "missing")
	assert.ErrorIs(t, err, goIdentity.ErrNotFound)
}

func TestLockoutColumns(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u1", "alice@example.com")
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i := 1; i <= 5; i++ {
		n, err := s.IncrementFailedLogins(ctx, u.ID, now)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	require.NoError(t, s.LockUntil(ctx, u.ID, now.Add(30*time.Minute), now))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, got.LockedUntil.Equal(now.Add(30*time.Minute)))
	require.NotNil(t, got.LastFailedLoginAt)

	require.NoError(t, s.RecordLoginSuccess(ctx, u.ID, now))
	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.Nil(t, got.LastFailedLoginAt)
	require.NotNil(t, got.LastLoginAt)

	_, err = s.IncrementFailedLogins(ctx, "missing", now)
	assert.ErrorIs(t, err, goIdentity.ErrNotFound)
	assert.ErrorIs(t, s.LockUntil(ctx, "missing", now, now), goIdentity.ErrNotFound)
}

func TestIncrementAfterLapsedLockRestarts(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u1", "alice@example.com")
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 5; i++ {
		_, err := s.IncrementFailedLogins(ctx, u.ID, now)
		require.NoError(t, err)
	}
	require.NoError(t, s.LockUntil(ctx, u.ID, now.Add(30*time.Minute), now))

	// still locked: the count keeps growing and the lock stays
	n, err := s.IncrementFailedLogins(ctx, u.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	later := now.Add(31 * time.Minute)
	n, err = s.IncrementFailedLogins(ctx, u.ID, later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestLockUntilStampsCallerTime(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u1", "alice@example.com")
	at := time.Date(2031, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.LockUntil(ctx, u.ID, at.Add(time.Hour), at))
	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(at))
}

func TestUpdatePasswordClearsLock(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u1", "alice@example.com")
	now := time.Now()

	_, err := s.IncrementFailedLogins(ctx, u.ID, now)
	require.NoError(t, err)
	require.NoError(t, s.LockUntil(ctx, u.ID, now.Add(time.Hour), now))
	require.NoError(t, s.UpdatePassword(ctx, u.ID, "new-hash", now))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)

	require.NoError(t, s.MarkEmailVerified(ctx, u.ID, now))
	got, _ = s.UserByID(ctx, u.ID)
	assert.True(t, got.EmailVerified)
}

func TestRedeemPasswordResetAtMostOnce(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u1", "alice@example.com")
	now := time.Now()

	require.NoError(t, s.CreatePasswordReset(ctx, goIdentity.PasswordReset{
		ID: "r1", UserID: u.ID, TokenHash: "hash-1", ExpiresAt: now.Add(time.Hour), IP: "10.0.0.1", CreatedAt: now,
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r, err := s.RedeemPasswordReset(ctx, "hash-1", "new-hash", now); err == nil {
				wins.Add(1)
				assert.NotNil(t, r.UsedAt)
				assert.Equal(t, "10.0.0.1", r.IP)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	_, err := s.RedeemPasswordReset(ctx, "hash-1", "other-hash", now)
	assert.ErrorIs(t, err, goIdentity.ErrNotFound)

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

func TestConsumeRejectsExpired(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u1", "alice@example.com")
	now := time.Now()

	require.NoError(t, s.CreatePasswordReset(ctx, goIdentity.PasswordReset{
		ID: "r1", UserID: u.ID, TokenHash: "expired", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour),
	}))
	_, err := s.RedeemPasswordReset(ctx, "expired", "new-hash", now)
	assert.ErrorIs(t, err, goIdentity.ErrNotFound)
	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)

	require.NoError(t, s.CreateEmailVerification(ctx, goIdentity.EmailVerification{
		ID: "v1", UserID: u.ID, Email: u.Email, TokenHash: "v-expired", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-25 * time.Hour),
	}))
	_, err = s.ConsumeEmailVerification(ctx, "v-expired", now)
	assert.ErrorIs(t, err, goIdentity.ErrNotFound)
}

func TestEmailVerificationsStayPending(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u1", "alice@example.com")
	now := time.Now()

	for i, h := range []string{"a", "b"} {
		require.NoError(t, s.CreateEmailVerification(ctx, goIdentity.EmailVerification{
			ID: "v" + h, UserID: u.ID, Email: u.Email, TokenHash: h, ExpiresAt: now.Add(24 * time.Hour), CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}
	n, err := s.CountPendingVerifications(ctx, u.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := s.ConsumeEmailVerification(ctx, "a", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, v.UserID)
	require.NotNil(t, v.VerifiedAt)

	n, err = s.CountPendingVerifications(ctx, u.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAuditSinkAppends(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	sink := NewAuditSink(s, nil)

	sink.Emit(ctx, goIdentity.AuditEvent{
		Timestamp: time.Now(),
		Action:    "login_failure",
		UserID:    "u1",
		IP:        "10.0.0.1",
		Success:   false,
		Error:     "invalid_credentials",
	})
	sink.Emit(ctx, goIdentity.AuditEvent{
		Timestamp: time.Now(),
		Action:    "account_locked",
		UserID:    "u1",
		Success:   true,
		Metadata:  map[string]string{"attempts": "5"},
	})

	events, err := s.AuditEvents(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "account_locked", events[0].Action)
	assert.Equal(t, "5", events[0].Metadata["attempts"])
	assert.Equal(t, "invalid_credentials", events[1].Error)
}
