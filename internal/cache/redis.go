package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
)

// #region redis-store

const (
	redisKeyPrefix = "brain:canvas:"
	// buildingTTL bounds how long a crashed builder's marker can linger.
	buildingTTL = 2 * time.Minute
	// buildPoll is how often a waiting process rechecks a foreign build.
	buildPoll = 100 * time.Millisecond
)

// commitScript stores the ready entry and drops the marker only if this
// builder still owns it.
var commitScript = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1])
if redis.call("GET", KEYS[2]) == ARGV[2] then
	redis.call("DEL", KEYS[2])
end
return 1
`)

// releaseScript is compare-and-delete on the building marker.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps one key per fingerprint for ready canvases and a separate
// expiring marker while a build is in flight. The marker holds an owner
// token, so only the process that set it can clear it, and a process that
// finds a foreign marker waits for that build instead of starting its own.
type RedisStore struct {
	client *redis.Client
	poll   time.Duration

	mu     sync.Mutex
	tokens map[canvas.Fingerprint]string
}

// NewRedisStore parses url, connects and pings.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Printf("[CACHE] redis store connected: %s", opts.Addr)
	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		poll:   buildPoll,
		tokens: make(map[canvas.Fingerprint]string),
	}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func readyKey(fp canvas.Fingerprint) string    { return redisKeyPrefix + string(fp) }
func buildingKey(fp canvas.Fingerprint) string { return redisKeyPrefix + "building:" + string(fp) }

func (s *RedisStore) Load(ctx context.Context, fp canvas.Fingerprint) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, readyKey(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load canvas %s: %w", fp, err)
	}
	return data, true, nil
}

// Begin claims the building marker with SETNX. When another process holds
// it, Begin polls until that build commits (ErrBuiltElsewhere), the marker
// goes away through abort or TTL expiry (Begin claims it and returns nil),
// or ctx ends.
func (s *RedisStore) Begin(ctx context.Context, fp canvas.Fingerprint) error {
	token := uuid.NewString()
	waiting := false
	for {
		ok, err := s.client.SetNX(ctx, buildingKey(fp), token, buildingTTL).Result()
		if err != nil {
			return fmt.Errorf("begin canvas %s: %w", fp, err)
		}
		if ok {
			s.mu.Lock()
			s.tokens[fp] = token
			s.mu.Unlock()
			return nil
		}

		n, err := s.client.Exists(ctx, readyKey(fp)).Result()
		if err != nil {
			return fmt.Errorf("begin canvas %s: %w", fp, err)
		}
		if n > 0 {
			return ErrBuiltElsewhere
		}
		if !waiting {
			log.Printf("[CACHE] canvas %s building in another process, waiting", fp)
			waiting = true
		}
		if err := sleepCtx(ctx, s.poll); err != nil {
			return fmt.Errorf("wait for canvas %s: %w", fp, err)
		}
	}
}

// Commit always stores data; the marker is removed only if this store still
// owns it.
func (s *RedisStore) Commit(ctx context.Context, fp canvas.Fingerprint, data []byte) error {
	s.mu.Lock()
	token := s.tokens[fp]
	s.mu.Unlock()
	err := commitScript.Run(ctx, s.client, []string{readyKey(fp), buildingKey(fp)}, data, token).Err()
	if err != nil {
		// the token stays so Abort can still clear the marker
		return fmt.Errorf("commit canvas %s: %w", fp, err)
	}
	s.release(fp)
	return nil
}

// Abort removes the marker if this store owns it. A marker that expired and
// was claimed by another process is left alone.
func (s *RedisStore) Abort(ctx context.Context, fp canvas.Fingerprint) error {
	token := s.release(fp)
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, s.client, []string{buildingKey(fp)}, token).Err(); err != nil {
		return fmt.Errorf("abort canvas %s: %w", fp, err)
	}
	return nil
}

func (s *RedisStore) release(fp canvas.Fingerprint) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.tokens[fp]
	delete(s.tokens, fp)
	return token
}

// #endregion redis-store
