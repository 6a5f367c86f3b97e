package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/session"
)

type sessionState struct {
	userID    string
	tokenHash string
	mu        sync.Mutex
}

func main() {
	var (
		sessions    = flag.Int("sessions", 20000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (lookup + rotate)")
		races       = flag.Int("races", 1000, "tokens replayed concurrently in the contention phase")
		racers      = flag.Int("racers", 8, "concurrent presenters per replayed token")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gid:load", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *races < 0 || *racers < 2 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency and ops must be > 0; racers must be >= 2")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewStore(client, *prefix)

	states := make([]sessionState, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := 0; i < *sessions; i++ {
		userID := fmt.Sprintf("user-%d", i%1000)
		h, err := newTokenHash()
		if err != nil {
			fmt.Fprintf(os.Stderr, "token generation failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = sessionState{userID: userID, tokenHash: h}
		if err := store.Save(ctx, h, buildSession(userID), 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookupStats := runLookupPhase(ctx, store, states, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, store, states, *ops, *concurrency)
	winners, replayed, err := runContentionPhase(ctx, store, *races, *racers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "contention phase failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("lookup", lookupStats)
	printStats("rotate", rotateStats)
	fmt.Printf("contention: tokens=%d winners=%d rejected=%d\n", *races, winners, replayed)
	if winners != int64(*races) {
		fmt.Fprintf(os.Stderr, "rotation was not single-winner: %d winners for %d tokens\n", winners, *races)
		os.Exit(1)
	}
}

func runLookupPhase(ctx context.Context, store *session.Store, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				state.mu.Lock()
				h := state.tokenHash
				state.mu.Unlock()

				t0 := time.Now()
				_, err := store.Get(ctx, h)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runRotatePhase replays the refresh path: take the presented token, then
// save a successor under a fresh hash.
func runRotatePhase(ctx context.Context, store *session.Store, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				next, err := newTokenHash()
				t0 := time.Now()
				if err == nil {
					err = rotate(ctx, store, state.tokenHash, next)
				}
				d := time.Since(t0)
				if err == nil {
					state.tokenHash = next
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runContentionPhase presents every seeded token from several goroutines at
// once and counts how many of them won the take.
func runContentionPhase(ctx context.Context, store *session.Store, tokens, racers int) (int64, int64, error) {
	var winners, rejected int64
	for i := 0; i < tokens; i++ {
		h, err := newTokenHash()
		if err != nil {
			return 0, 0, err
		}
		if err := store.Save(ctx, h, buildSession("racer"), time.Hour); err != nil {
			return 0, 0, err
		}

		var (
			wg      sync.WaitGroup
			release = make(chan struct{})
			errOnce sync.Once
			runErr  error
		)
		for j := 0; j < racers; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-release
				_, err := store.Take(ctx, h)
				switch {
				case err == nil:
					atomic.AddInt64(&winners, 1)
				case errors.Is(err, session.ErrSessionNotFound):
					atomic.AddInt64(&rejected, 1)
				default:
					errOnce.Do(func() { runErr = err })
				}
			}()
		}
		close(release)
		wg.Wait()
		if runErr != nil {
			return winners, rejected, runErr
		}
	}
	return winners, rejected, nil
}

func rotate(ctx context.Context, store *session.Store, current, next string) error {
	sess, err := store.Take(ctx, current)
	if err != nil {
		return err
	}
	return store.Save(ctx, next, buildSession(sess.UserID), 24*time.Hour)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func buildSession(userID string) *session.Session {
	now := time.Now()
	return &session.Session{
		UserID:    userID,
		IP:        "127.0.0.1",
		UserAgent: "goidentity-loadtest",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(24 * time.Hour).Unix(),
	}
}

func newTokenHash() (string, error) {
	token, err := internal.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	return internal.HashToken(token), nil
}
