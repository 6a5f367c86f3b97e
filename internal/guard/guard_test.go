package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu          sync.Mutex
	attempts    map[string]int
	lockedUntil map[string]time.Time
	lastLogin   map[string]time.Time
	failIncr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attempts:    map[string]int{},
		lockedUntil: map[string]time.Time{},
		lastLogin:   map[string]time.Time{},
	}
}

func (f *fakeStore) IncrementFailedLogins(_ context.Context, userID string, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncr != nil {
		return 0, f.failIncr
	}
	if until, ok := f.lockedUntil[userID]; ok && !until.After(at) {
		f.attempts[userID] = 0
		delete(f.lockedUntil, userID)
	}
	f.attempts[userID]++
	return f.attempts[userID], nil
}

func (f *fakeStore) LockUntil(_ context.Context, userID string, until, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockedUntil[userID] = until
	return nil
}

func (f *fakeStore) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[userID] = 0
	delete(f.lockedUntil, userID)
	f.lastLogin[userID] = at
	return nil
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		state      State
		wantLocked bool
	}{
		{"never locked", State{}, false},
		{"locked in future", State{FailedAttempts: 5, LockedUntil: now.Add(10 * time.Minute)}, true},
		{"lock lapsed", State{FailedAttempts: 5, LockedUntil: now.Add(-time.Second)}, false},
		{"lock ends exactly now", State{LockedUntil: now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.state, now)
			if d.Locked != tt.wantLocked {
				t.Fatalf("Evaluate locked=%v, want %v", d.Locked, tt.wantLocked)
			}
			if d.Locked && d.Remaining != tt.state.LockedUntil.Sub(now) {
				t.Fatalf("unexpected remaining %v", d.Remaining)
			}
		})
	}
}

func TestRemainingMinutesRoundsUp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{time.Second, 1},
		{time.Minute, 1},
		{time.Minute + time.Second, 2},
		{29*time.Minute + 59*time.Second, 30},
		{30 * time.Minute, 30},
	}
	for _, tt := range tests {
		if got := RemainingMinutes(tt.in); got != tt.want {
			t.Fatalf("RemainingMinutes(%v)=%d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRecordFailureLocksAtThreshold(t *testing.T) {
	store := newFakeStore()
	g, err := New(store, DefaultPolicy())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i < DefaultThreshold; i++ {
		out, err := g.RecordFailure(context.Background(), "u1", now)
		if err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
		if out.Locked {
			t.Fatalf("locked after %d failures", i)
		}
	}

	out, err := g.RecordFailure(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	if !out.Locked || !out.LockedUntil.Equal(now.Add(DefaultDuration)) {
		t.Fatalf("expected lock at threshold, got %+v", out)
	}
	if !store.lockedUntil["u1"].Equal(now.Add(DefaultDuration)) {
		t.Fatal("lock not persisted")
	}
}

func TestRecordFailureAfterLapsedLockStartsOver(t *testing.T) {
	store := newFakeStore()
	g, err := New(store, DefaultPolicy())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < DefaultThreshold; i++ {
		if _, err := g.RecordFailure(context.Background(), "u1", now); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}

	later := now.Add(DefaultDuration + time.Minute)
	out, err := g.RecordFailure(context.Background(), "u1", later)
	if err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	if out.Locked || out.Attempts != 1 {
		t.Fatalf("expected a fresh count after the lock lapsed, got %+v", out)
	}
	if _, ok := store.lockedUntil["u1"]; ok {
		t.Fatal("lapsed lock should be cleared")
	}
}

func TestRecordFailureUsersIndependent(t *testing.T) {
	store := newFakeStore()
	g, _ := New(store, Policy{Threshold: 2, Duration: time.Minute})
	now := time.Now()

	if _, err := g.RecordFailure(context.Background(), "a", now); err != nil {
		t.Fatal(err)
	}
	out, err := g.RecordFailure(context.Background(), "b", now)
	if err != nil {
		t.Fatal(err)
	}
	if out.Locked {
		t.Fatal("failures of different users must not combine")
	}
}

func TestRecordFailureConcurrentConverges(t *testing.T) {
	store := newFakeStore()
	g, _ := New(store, DefaultPolicy())
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.RecordFailure(context.Background(), "u1", now)
		}()
	}
	wg.Wait()

	if Evaluate(State{LockedUntil: store.lockedUntil["u1"]}, now).Locked != true {
		t.Fatal("expected concurrent failures to converge to locked")
	}
}

func TestRecordSuccessClears(t *testing.T) {
	store := newFakeStore()
	g, _ := New(store, DefaultPolicy())
	now := time.Now()

	for i := 0; i < 3; i++ {
		_, _ = g.RecordFailure(context.Background(), "u1", now)
	}
	if err := g.RecordSuccess(context.Background(), "u1", now); err != nil {
		t.Fatalf("RecordSuccess error: %v", err)
	}
	if store.attempts["u1"] != 0 {
		t.Fatalf("expected counter reset, got %d", store.attempts["u1"])
	}
	if !store.lastLogin["u1"].Equal(now) {
		t.Fatal("expected last login stamped")
	}
}

func TestRecordFailureWrapsStoreError(t *testing.T) {
	store := newFakeStore()
	store.failIncr = errors.New("connection refused")
	g, _ := New(store, DefaultPolicy())

	if _, err := g.RecordFailure(context.Background(), "u1", time.Now()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := (Policy{Threshold: 0, Duration: time.Minute}).Validate(); err == nil {
		t.Fatal("zero threshold should be rejected")
	}
	if err := (Policy{Threshold: 1}).Validate(); err == nil {
		t.Fatal("zero duration should be rejected")
	}
	if _, err := New(nil, DefaultPolicy()); err == nil {
		t.Fatal("nil store should be rejected")
	}
}
