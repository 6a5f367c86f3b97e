package goIdentity_test

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/store/memstore"
)

const testPassword = "correct-horse-battery"

var linkToken = regexp.MustCompile(`token=([A-Za-z0-9_-]{43})`)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *goIdentity.Engine
	store  *memstore.Store
	mailer *notify.Recorder
	redis  *miniredis.Miniredis
	clock  *testClock
}

func newTestEnv(t *testing.T, mutate ...func(*goIdentity.Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := goIdentity.DefaultConfig()
	cfg.JWT.Secret = strings.Repeat("t", 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Parallelism = 1
	cfg.Timeouts.Store = time.Second
	for _, fn := range mutate {
		fn(&cfg)
	}

	clock := &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	store := memstore.New()
	mailer := notify.NewRecorder()

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithMailer(mailer).
		WithAuditSink(store).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, mailer: mailer, redis: mr, clock: clock}
}

func (e *testEnv) signup(t *testing.T, email string) *goIdentity.AuthResult {
	t.Helper()
	res, err := e.engine.Signup(context.Background(), goIdentity.SignupInput{
		Name:     "Test User",
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return res
}

// lastToken pulls the token out of the newest email sent to addr.
func (e *testEnv) lastToken(t *testing.T, addr string) string {
	t.Helper()
	msgs := e.mailer.To(addr)
	if len(msgs) == 0 {
		t.Fatalf("no email sent to %s", addr)
	}
	m := linkToken.FindStringSubmatch(msgs[len(msgs)-1].Body)
	if len(m) != 2 {
		t.Fatalf("no token link in email body: %q", msgs[len(msgs)-1].Body)
	}
	return m[1]
}

func (e *testEnv) user(t *testing.T, email string) goIdentity.User {
	t.Helper()
	u, err := e.store.UserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("load user %s: %v", email, err)
	}
	return u
}

// auditActions closes the engine so the dispatcher drains, then lists actions.
func (e *testEnv) auditActions() []string {
	e.engine.Close()
	events := e.store.AuditEvents()
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Action)
	}
	return out
}

func requireKind(t *testing.T, err error, kind goIdentity.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := goIdentity.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
