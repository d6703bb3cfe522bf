// Package redis implements the cache.Remote contract on top of a Redis
// server, giving multiple dashboard instances a shared cache tier and a
// place to coordinate expensive recomputations.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/streamlytics/querycache/cache"
)

const (
	defaultOpTimeout = 250 * time.Millisecond
	scanTimeout      = 5 * time.Second
	scanBatch        = 100
)

// releaseScript deletes the lock key only if it still holds our token, so
// a lock that expired and was re-acquired by another process is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Store is a Redis-backed cache.Remote. Every operation is bounded by its
// own timeout; callers treat failures as degradation, not errors.
type Store struct {
	client    *goredis.Client
	prefix    string
	opTimeout time.Duration
	log       *zap.Logger

	// lock key -> token held by this process.
	tokens sync.Map
}

// New creates a Redis-backed remote tier.
// prefix namespaces all keys, e.g. "qc:dash:". A nil logger disables logging.
func New(client *goredis.Client, prefix string, opTimeout time.Duration, log *zap.Logger) *Store {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
		log:       log,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if ttl < 0 {
		ttl = 0 // no expiry
	}
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	return s.scanAndDelete(ctx, s.prefix+prefix+"*")
}

func (s *Store) DeleteBySuffix(ctx context.Context, suffix string) error {
	return s.scanAndDelete(ctx, s.prefix+"*"+suffix)
}

// AcquireLock takes the per-key computation lock via SET NX. It returns
// false without error when another process holds the lock.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.prefix+key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		s.tokens.Store(key, token)
	}
	return ok, nil
}

// ReleaseLock releases a lock taken by this process. Releasing a lock we
// do not hold (never acquired, or expired and re-acquired elsewhere) is a
// no-op.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	token, ok := s.tokens.LoadAndDelete(key)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	return releaseScript.Run(ctx, s.client, []string{s.prefix + key}, token).Err()
}

func (s *Store) TagAdd(ctx context.Context, tag string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return s.client.SAdd(ctx, s.tagKey(tag), members...).Err()
}

func (s *Store) TagMembers(ctx context.Context, tag string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	return s.client.SMembers(ctx, s.tagKey(tag)).Result()
}

func (s *Store) TagDelete(ctx context.Context, tag string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	return s.client.Del(ctx, s.tagKey(tag)).Err()
}

func (s *Store) tagKey(tag string) string { return s.prefix + "tag:" + tag }

// scanAndDelete walks matching keys in batches; a bulk delete may touch
// many keys, so it gets a larger budget than point operations.
func (s *Store) scanAndDelete(ctx context.Context, pattern string) error {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			s.log.Debug("redis: bulk delete", zap.Int("keys", len(keys)))
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Compile-time check: ensure Store implements cache.Remote.
var _ cache.Remote = (*Store)(nil)
