// Package redis stores resource etags in Redis so that several server
// replicas share conditional-request state.
package redis

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/repository"
	rdb "github.com/redis/go-redis/v9"
)

// Client is the subset of *rdb.Client used by EtagStore.
type Client interface {
	Get(ctx context.Context, key string) *rdb.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *rdb.StatusCmd
	Del(ctx context.Context, keys ...string) *rdb.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *rdb.BoolCmd
	rdb.Scripter
}

// Lock tuning.
const (
	lockTTL       = 10 * time.Second
	lockRetry     = 25 * time.Millisecond
	lockMaxWait   = 5 * time.Second
	lockKeySuffix = ":lock"
)

// releaseScript deletes the lock only when it still carries our owner token.
var releaseScript = rdb.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// EtagStore implements repository.EtagStore on Redis strings.
type EtagStore struct {
	c      Client
	prefix string
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New dials Redis and returns a store plus a close function.
func New(ctx context.Context, o Options) (*EtagStore, func() error, error) {
	cl := rdb.NewClient(&rdb.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, o.Prefix), cl.Close, nil
}

// NewWithClient wraps an existing client; every key is stored under prefix.
func NewWithClient(c Client, prefix string) *EtagStore {
	return &EtagStore{c: c, prefix: prefix}
}

func (s *EtagStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.c.Get(ctx, s.prefix+key).Result()
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, rdb.Nil):
		return "", false, nil
	default:
		return "", false, err
	}
}

func (s *EtagStore) Set(ctx context.Context, key, etag string) error {
	return s.c.Set(ctx, s.prefix+key, etag, 0).Err()
}

func (s *EtagStore) Delete(ctx context.Context, key string) error {
	return s.c.Del(ctx, s.prefix+key).Err()
}

// Lock acquires a SET NX lock with an owner token, polling until it is free.
// It gives up with errs.ErrVersionConflict after lockMaxWait.
func (s *EtagStore) Lock(ctx context.Context, key string) (repository.Unlock, error) {
	raw, err := crypto.RandBytes(16)
	if err != nil {
		return nil, err
	}
	owner := hex.EncodeToString(raw)
	lockKey := s.prefix + key + lockKeySuffix

	deadline := time.NewTimer(lockMaxWait)
	defer deadline.Stop()
	for {
		ok, err := s.c.SetNX(ctx, lockKey, owner, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				_ = releaseScript.Run(context.Background(), s.c, []string{lockKey}, owner).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("lock %s: %w", key, errs.ErrVersionConflict)
		case <-time.After(lockRetry):
		}
	}
}
