package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/and161185/goph-auth/internal/repository"
	gocache "github.com/patrickmn/go-cache"
)

const lockStripes = 64

// EtagStore keeps etags in a go-cache instance and serializes writers
// with striped mutexes.
type EtagStore struct {
	c     *gocache.Cache
	locks [lockStripes]sync.Mutex
}

// NewEtagStore builds a store whose entries expire after ttl; ttl <= 0 keeps them forever.
func NewEtagStore(ttl time.Duration) *EtagStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &EtagStore{c: gocache.New(ttl, time.Minute)}
}

func (s *EtagStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return "", false, nil
	}
	etag, ok := v.(string)
	return etag, ok, nil
}

func (s *EtagStore) Set(_ context.Context, key, etag string) error {
	s.c.Set(key, etag, gocache.DefaultExpiration)
	return nil
}

func (s *EtagStore) Delete(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

// Lock blocks until the stripe owning key is free or ctx is done.
func (s *EtagStore) Lock(ctx context.Context, key string) (repository.Unlock, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &s.locks[h.Sum32()%lockStripes]
	if mu.TryLock() {
		return mu.Unlock, nil
	}

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return mu.Unlock, nil
	case <-ctx.Done():
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}
