package goIdentity_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestSignupCreatesUnverifiedUserWithPendingVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := goIdentity.WithClientIP(context.Background(), "198.51.100.4")

	res, err := env.engine.Signup(ctx, goIdentity.SignupInput{
		Name:     "  Ada Lovelace ",
		Email:    "Ada@Example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	if res.User.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", res.User.Email)
	}
	if res.User.Name != "Ada Lovelace" || res.User.CurrencyCode != "USD" {
		t.Fatalf("unexpected projection %+v", res.User)
	}
	if res.User.EmailVerified || res.User.Onboarded {
		t.Fatal("new users start unverified and not onboarded")
	}

	pending, err := env.store.CountPendingVerifications(context.Background(), res.User.ID, env.clock.Now())
	if err != nil || pending != 1 {
		t.Fatalf("expected one pending verification, got %d (%v)", pending, err)
	}

	msgs := env.mailer.To("ada@example.com")
	if len(msgs) != 1 || !strings.Contains(msgs[0].Body, "http://localhost:3000/verify-email?token=") {
		t.Fatalf("expected one verification email, got %+v", msgs)
	}

	claims, err := env.engine.ValidateAccess(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("access token rejected: %v", err)
	}
	if claims.UserID != res.User.ID || claims.EmailVerified {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := env.engine.Refresh(context.Background(), res.RefreshToken); err != nil {
		t.Fatalf("signup session unusable: %v", err)
	}

	stored := env.user(t, "ada@example.com")
	if stored.PasswordHash == testPassword || !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatal("password must be stored as an argon2id hash")
	}
}

func TestSignupDuplicateEmailConflict(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "ada@example.com")

	_, err := env.engine.Signup(context.Background(), goIdentity.SignupInput{
		Name:     "Other",
		Email:    "ADA@example.com",
		Password: testPassword,
	})
	requireKind(t, err, goIdentity.KindConflict)
	if !errors.Is(err, goIdentity.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if n := len(env.mailer.Messages()); n != 1 {
		t.Fatalf("duplicate signup must not send email, got %d messages", n)
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []goIdentity.SignupInput{
		{Name: "", Email: "a@example.com", Password: testPassword},
		{Name: "A", Email: "not-an-email", Password: testPassword},
		{Name: "A", Email: "a@example.com", Password: "short"},
		{Name: "A", Email: "a@example.com", Password: strings.Repeat("p", 129)},
		{Name: "A", Email: "a@example.com", Password: testPassword, CurrencyCode: "EURO"},
	}
	for _, in := range cases {
		_, err := env.engine.Signup(context.Background(), in)
		requireKind(t, err, goIdentity.KindValidation)
	}

	if _, err := env.store.UserByEmail(context.Background(), "a@example.com"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("invalid signups must not create users, got %v", err)
	}
	if n := len(env.mailer.Messages()); n != 0 {
		t.Fatalf("invalid signups must not send email, got %d", n)
	}
}

func TestSignupCurrencyIsUpperCased(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.engine.Signup(context.Background(), goIdentity.SignupInput{
		Name:         "Yen",
		Email:        "yen@example.com",
		Password:     testPassword,
		CurrencyCode: "jpy",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.User.CurrencyCode != "JPY" {
		t.Fatalf("expected JPY, got %q", res.User.CurrencyCode)
	}
}

func TestWhoAmI(t *testing.T) {
	env := newTestEnv(t)
	res := env.signup(t, "ada@example.com")

	got, err := env.engine.WhoAmI(context.Background(), res.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != res.User.ID || got.Email != res.User.Email || !got.CreatedAt.Equal(res.User.CreatedAt) {
		t.Fatalf("expected %+v, got %+v", res.User, got)
	}

	_, err = env.engine.WhoAmI(context.Background(), "missing")
	requireKind(t, err, goIdentity.KindBadRequest)
	if !errors.Is(err, goIdentity.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
