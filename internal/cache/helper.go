package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"helpmatch/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Store is a JSON cache over Redis. A Store with a nil client misses on every
// read and ignores writes.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps rdb, which may be nil.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if s == nil || s.rdb == nil {
		return false, nil
	}
	ctx, span := observability.TraceRedisOperation(ctx, "get")
	defer span.End()

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if s == nil || s.rdb == nil || ttl <= 0 {
		return nil
	}
	ctx, span := observability.TraceRedisOperation(ctx, "set")
	defer span.End()

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

// Delete removes keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if s == nil || s.rdb == nil || len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// generationTTL bounds how long an idle generation counter is kept.
const generationTTL = 24 * time.Hour

func generationKey(key string) string {
	return key + ":gen"
}

// fillScript sets KEYS[1] only while the generation in KEYS[2] still equals
// the one the reader saw before it went to the database.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// invalidateScript bumps the generation of KEYS[1] and drops the cached value.
var invalidateScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[1])
return 1
`)

// Invalidate drops keys after a committed write. Fills that started before
// the call are discarded instead of re-caching the old row.
func (s *Store) Invalidate(ctx context.Context, keys ...string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	ctx, span := observability.TraceRedisOperation(ctx, "invalidate")
	defer span.End()

	var firstErr error
	for _, key := range keys {
		err := invalidateScript.Run(ctx, s.rdb, []string{key, generationKey(key)}, generationTTL.Milliseconds()).Err()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) generation(ctx context.Context, key string) (string, error) {
	gen, err := s.rdb.Get(ctx, generationKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// CacheAside tries Redis first, on miss it calls fetch (which must populate dest),
// then stores the result with ttl unless the key was invalidated meanwhile.
// Cache errors never fail the read.
func (s *Store) CacheAside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if s == nil || s.rdb == nil || ttl <= 0 {
		return fetch()
	}
	if found, err := s.GetJSON(ctx, key, dest); err == nil && found {
		return nil
	}

	// read before fetching so a write committed in between is noticed
	gen, genErr := s.generation(ctx, key)

	if err := fetch(); err != nil {
		return err
	}
	if genErr != nil {
		return nil
	}

	b, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	ctx, span := observability.TraceRedisOperation(ctx, "fill")
	defer span.End()
	_ = fillScript.Run(ctx, s.rdb, []string{key, generationKey(key)}, gen, b, ttl.Milliseconds()).Err()
	return nil
}
