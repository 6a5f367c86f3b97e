// Package sqlstore is the relational goIdentity.CredentialStore. It runs on
// database/sql against PostgreSQL (pgx) or SQLite (modernc) with the same
// queries; timestamps are stored as UTC unix milliseconds in both.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/store/sqlstore/migrations"
)

// Dialect selects placeholder style, migrations and error mapping.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const pgUniqueViolation = "23505"

// Store implements goIdentity.CredentialStore.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ goIdentity.CredentialStore = (*Store)(nil)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New wraps an open database. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, errors.New("sql db is required")
	}
	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Open picks the dialect from the DSN: postgres:// or postgresql:// use pgx,
// sqlite:// or a plain file path use SQLite.
func Open(dsn string) (*Store, error) {
	dialect, driverDSN, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	driver := "pgx"
	if dialect == SQLite {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, driverDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer keeps SQLite from returning SQLITE_BUSY under load.
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect)
}

// ParseDSN splits a DSN into dialect and driver DSN.
func ParseDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", errors.New("database dsn is required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	case strings.Contains(dsn, "://"):
		return "", "", fmt.Errorf("unsupported database scheme in %q", dsn)
	}
	if dsn == "" {
		return "", "", errors.New("sqlite path is required")
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return SQLite, dsn, nil
}

// Migrate applies the embedded schema with goose.
func (s *Store) Migrate(ctx context.Context) error {
	dir, gooseDialect := "postgres", goose.DialectPostgres
	if s.dialect == SQLite {
		dir, gooseDialect = "sqlite", goose.DialectSQLite3
	}
	fsys, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(gooseDialect, s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Dialect reports which database the store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// DB exposes the handle for callers that manage its lifetime.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

/*
====================================
USERS
====================================
*/

const userColumns = `id, email, password_hash, name, currency_code, email_verified, onboarded,
	failed_login_attempts, last_failed_login_at, locked_until, last_login_at, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u goIdentity.NewUser) (goIdentity.User, error) {
	created := toMillis(u.CreatedAt)
	query := `INSERT INTO users (id, email, password_hash, name, currency_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, s.rebind(query),
		u.ID, u.Email, u.PasswordHash, u.Name, u.CurrencyCode, created, created))
	if err != nil {
		if s.isUniqueViolation(err) {
			return goIdentity.User{}, goIdentity.ErrEmailTaken
		}
		return goIdentity.User{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (goIdentity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return s.queryUser(ctx, query, email)
}

func (s *Store) UserByID(ctx context.Context, id string) (goIdentity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.queryUser(ctx, query, id)
}

func (s *Store) queryUser(ctx context.Context, query string, arg any) (goIdentity.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, s.rebind(query), arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goIdentity.User{}, goIdentity.ErrNotFound
		}
		return goIdentity.User{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// IncrementFailedLogins is a single UPDATE so concurrent failures never lose
// an increment. A lock that ended at or before at is cleared and the count
// restarts at 1.
func (s *Store) IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error) {
	query := `UPDATE users
		SET failed_login_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1
				ELSE failed_login_attempts + 1
			END,
			locked_until = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= ? THEN NULL
				ELSE locked_until
			END,
			last_failed_login_at = ?, updated_at = ?
		WHERE id = ?
		RETURNING failed_login_attempts`

	ms := toMillis(at)
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(query), ms, ms, ms, ms, userID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, goIdentity.ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (s *Store) LockUntil(ctx context.Context, userID string, until, at time.Time) error {
	query := `UPDATE users SET locked_until = ?, updated_at = ? WHERE id = ?`
	return s.execUser(ctx, query, toMillis(until), toMillis(at), userID)
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users
		SET failed_login_attempts = 0, last_failed_login_at = NULL, locked_until = NULL,
			last_login_at = ?, updated_at = ?
		WHERE id = ?`
	return s.execUser(ctx, query, toMillis(at), toMillis(at), userID)
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	return s.setPassword(ctx, s.db, userID, passwordHash, at)
}

func (s *Store) setPassword(ctx context.Context, q dbtx, userID, passwordHash string, at time.Time) error {
	query := `UPDATE users
		SET password_hash = ?, failed_login_attempts = 0, last_failed_login_at = NULL,
			locked_until = NULL, updated_at = ?
		WHERE id = ?`
	return s.execUserOn(ctx, q, query, passwordHash, toMillis(at), userID)
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET email_verified = ?, updated_at = ? WHERE id = ?`
	return s.execUser(ctx, query, true, toMillis(at), userID)
}

func (s *Store) execUser(ctx context.Context, query string, args ...any) error {
	return s.execUserOn(ctx, s.db, query, args...)
}

func (s *Store) execUserOn(ctx context.Context, q dbtx, query string, args ...any) error {
	res, err := q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return goIdentity.ErrNotFound
	}
	return nil
}

/*
====================================
ONE-TIME TOKENS
====================================
*/

func (s *Store) CreatePasswordReset(ctx context.Context, r goIdentity.PasswordReset) error {
	query := `INSERT INTO password_resets (id, user_id, token_hash, expires_at, ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		r.ID, r.UserID, r.TokenHash, toMillis(r.ExpiresAt), r.IP, toMillis(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RedeemPasswordReset marks the reset used and sets the user's password in
// one transaction. When the password update fails the token stays unused.
// The row lock on the reset makes it at-most-once.
func (s *Store) RedeemPasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (goIdentity.PasswordReset, error) {
	var r goIdentity.PasswordReset
	err := s.withTx(ctx, func(tx dbtx) error {
		var err error
		if r, err = s.consumePasswordReset(ctx, tx, tokenHash, now); err != nil {
			return err
		}
		return s.setPassword(ctx, tx, r.UserID, passwordHash, now)
	})
	if err != nil {
		return goIdentity.PasswordReset{}, err
	}
	return r, nil
}

func (s *Store) consumePasswordReset(ctx context.Context, q dbtx, tokenHash string, now time.Time) (goIdentity.PasswordReset, error) {
	query := `UPDATE password_resets SET used_at = ?
		WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?
		RETURNING id, user_id, token_hash, expires_at, used_at, ip, created_at`

	var (
		r                goIdentity.PasswordReset
		expires, created int64
		used             sql.NullInt64
	)
	ms := toMillis(now)
	err := q.QueryRowContext(ctx, s.rebind(query), ms, tokenHash, ms).
		Scan(&r.ID, &r.UserID, &r.TokenHash, &expires, &used, &r.IP, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goIdentity.PasswordReset{}, goIdentity.ErrNotFound
		}
		return goIdentity.PasswordReset{}, fmt.Errorf("db error: %w", err)
	}
	r.ExpiresAt = fromMillis(expires)
	r.CreatedAt = fromMillis(created)
	r.UsedAt = nullMillis(used)
	return r, nil
}

func (s *Store) CreateEmailVerification(ctx context.Context, v goIdentity.EmailVerification) error {
	query := `INSERT INTO email_verifications (id, user_id, email, token_hash, expires_at, ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		v.ID, v.UserID, v.Email, v.TokenHash, toMillis(v.ExpiresAt), v.IP, toMillis(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) ConsumeEmailVerification(ctx context.Context, tokenHash string, now time.Time) (goIdentity.EmailVerification, error) {
	query := `UPDATE email_verifications SET verified_at = ?
		WHERE token_hash = ? AND verified_at IS NULL AND expires_at > ?
		RETURNING id, user_id, email, token_hash, expires_at, verified_at, ip, created_at`

	var (
		v                goIdentity.EmailVerification
		expires, created int64
		verified         sql.NullInt64
	)
	ms := toMillis(now)
	err := s.db.QueryRowContext(ctx, s.rebind(query), ms, tokenHash, ms).
		Scan(&v.ID, &v.UserID, &v.Email, &v.TokenHash, &expires, &verified, &v.IP, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goIdentity.EmailVerification{}, goIdentity.ErrNotFound
		}
		return goIdentity.EmailVerification{}, fmt.Errorf("db error: %w", err)
	}
	v.ExpiresAt = fromMillis(expires)
	v.CreatedAt = fromMillis(created)
	v.VerifiedAt = nullMillis(verified)
	return v, nil
}

func (s *Store) CountPendingVerifications(ctx context.Context, userID string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM email_verifications
		WHERE user_id = ? AND verified_at IS NULL AND expires_at > ?`
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(query), userID, toMillis(now)).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

/*
====================================
HELPERS
====================================
*/

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (goIdentity.User, error) {
	var (
		u                         goIdentity.User
		lastFailed, locked, login sql.NullInt64
		created, updated          int64
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CurrencyCode, &u.EmailVerified, &u.Onboarded,
		&u.FailedLoginAttempts, &lastFailed, &locked, &login, &created, &updated,
	)
	if err != nil {
		return goIdentity.User{}, err
	}
	u.LastFailedLoginAt = nullMillis(lastFailed)
	u.LockedUntil = nullMillis(locked)
	u.LastLoginAt = nullMillis(login)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

// rebind rewrites ? placeholders to $n for Postgres. Queries in this package
// never contain a literal question mark.
// withTx commits when fn returns nil and rolls back otherwise, rethrowing panics.
func (s *Store) withTx(ctx context.Context, fn func(tx dbtx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("db error: %w", cerr)
		}
	}()
	return fn(tx)
}

func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
