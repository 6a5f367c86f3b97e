package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport or server error.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no live session matches a token hash.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
var ErrSessionCorrupt = errors.New("session corrupt")

// DefaultPrefix namespaces session keys when NewStore gets an empty prefix.
const DefaultPrefix = "gid:sess"

const scanBatch = 200

// KEYS[1] lookup key. ARGV[1] user key prefix, ARGV[2] token hash.
// Returns the session blob, or false when nothing was redeemed.
const takeSessionScript = `
local user_id = redis.call("GET", KEYS[1])
if not user_id then
  return false
end
redis.call("DEL", KEYS[1])
local session_key = ARGV[1] .. user_id .. ":" .. ARGV[2]
local data = redis.call("GET", session_key)
if not data then
  return false
end
redis.call("DEL", session_key)
return data
`

var takeSessionLua = redis.NewScript(takeSessionScript)

// KEYS[1] session key, KEYS[2] lookup key. ARGV[1] owning user id.
// The lookup key is removed only if it belongs to ARGV[1].
const deleteSessionScript = `
local removed = redis.call("DEL", KEYS[1])
local owner = redis.call("GET", KEYS[2])
if owner == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return removed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the key namespace.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		redis:  rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock sets the clock used to reject sessions past their ExpiresAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) userPrefix(userID string) string {
	return s.prefix + ":u:" + userID + ":"
}

func (s *Store) key(userID, tokenHash string) string {
	return s.userPrefix(userID) + tokenHash
}

func (s *Store) lookupKey(tokenHash string) string {
	return s.prefix + ":r:" + tokenHash
}

// Save writes the session and its lookup key with the same TTL.
func (s *Store) Save(ctx context.Context, tokenHash string, sess *Session, ttl time.Duration) error {
	if tokenHash == "" {
		return errors.New("token hash is required")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.UserID, tokenHash), data, ttl)
		pipe.Set(ctx, s.lookupKey(tokenHash), sess.UserID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get resolves tokenHash to its session without changing anything.
func (s *Store) Get(ctx context.Context, tokenHash string) (*Session, error) {
	userID, err := s.redis.Get(ctx, s.lookupKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	data, err := s.redis.Get(ctx, s.key(userID, tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return s.decodeLive(data)
}

// Take atomically resolves and deletes the session for tokenHash. Among
// concurrent callers with the same hash exactly one gets the session; the
// rest get ErrSessionNotFound.
func (s *Store) Take(ctx context.Context, tokenHash string) (*Session, error) {
	res, err := takeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.lookupKey(tokenHash)},
		s.prefix+":u:",
		tokenHash,
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return s.decodeLive([]byte(res))
}

func (s *Store) decodeLive(data []byte) (*Session, error) {
	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if sess.ExpiresAt > 0 && s.now().Unix() >= sess.ExpiresAt {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes one session of userID. Deleting a missing session is not an
// error. It reports whether a session was removed.
func (s *Store) Delete(ctx context.Context, userID, tokenHash string) (bool, error) {
	removed, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(userID, tokenHash), s.lookupKey(tokenHash)},
		userID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed == 1, nil
}

// DeleteAllForUser removes every session of userID and returns how many were
// removed.
//
// The key set is discovered with SCAN, so a session saved while the scan runs
// may survive. It expires with its TTL.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	prefix := s.userPrefix(userID)
	pattern := escapeGlob(prefix) + "*"

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		if len(keys) > 0 {
			lookups := make([]string, 0, len(keys))
			for _, k := range keys {
				lookups = append(lookups, s.lookupKey(strings.TrimPrefix(k, prefix)))
			}
			var del *redis.IntCmd
			_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				del = pipe.Del(ctx, keys...)
				pipe.Del(ctx, lookups...)
				return nil
			})
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			removed += int(del.Val())
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// Count returns the number of live sessions of userID. It scans, so keep it
// off request hot paths.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	pattern := escapeGlob(s.userPrefix(userID)) + "*"
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
