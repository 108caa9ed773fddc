// Package svcctx bundles the repositories and runtime collaborators shared by
// services and handlers.
package svcctx

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/and161185/goph-auth/internal/config"
	"github.com/and161185/goph-auth/internal/limiter"
	"github.com/and161185/goph-auth/internal/repository"
	"github.com/and161185/goph-auth/internal/repository/memory"
	"github.com/and161185/goph-auth/internal/repository/postgres"
	"github.com/and161185/goph-auth/internal/repository/redis"
	"go.uber.org/zap"
)

// ServiceContext is passed to every component at construction.
type ServiceContext struct {
	Users        repository.UserRepository
	Applications repository.ApplicationRepository
	Clients      repository.ClientRepository
	Tokens       repository.TokenRepository
	Grants       repository.GrantRepository
	Etags        repository.EtagStore
	Limiter      limiter.Limiter

	Clock  func() time.Time
	Rand   io.Reader
	Config *config.Config
	Log    *zap.Logger

	closers []func() error
}

// Now returns the current time from Clock at the microsecond precision
// Postgres stores, so values read back serialize identically.
func (s *ServiceContext) Now() time.Time {
	if s.Clock == nil {
		return time.Now().Truncate(time.Microsecond)
	}
	return s.Clock().Truncate(time.Microsecond)
}

// Close releases backend connections in reverse order of acquisition.
func (s *ServiceContext) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func loginPolicy(cfg *config.Config) limiter.Policy {
	return limiter.Policy{Window: cfg.LoginWindow, MaxFails: cfg.LoginMaxFails, BlockFor: cfg.LoginBlockFor}
}

// NewPostgres wires every repository to db.
func NewPostgres(db *postgres.DB, cfg *config.Config, log *zap.Logger) *ServiceContext {
	return &ServiceContext{
		Users:        postgres.NewUserRepo(db),
		Applications: postgres.NewApplicationRepo(db),
		Clients:      postgres.NewClientRepo(db),
		Tokens:       postgres.NewTokenRepo(db),
		Grants:       postgres.NewGrantRepo(db),
		Etags:        postgres.NewEtagStore(db),
		Limiter:      limiter.NewPG(db.Pool, loginPolicy(cfg), nil),
		Clock:        time.Now,
		Rand:         rand.Reader,
		Config:       cfg,
		Log:          log,
	}
}

// NewMemory wires every repository to an in-process store.
func NewMemory(store *memory.Store, cfg *config.Config, log *zap.Logger) *ServiceContext {
	return &ServiceContext{
		Users:        store.Users(),
		Applications: store.Applications(),
		Clients:      store.Clients(),
		Tokens:       store.Tokens(),
		Grants:       store.Grants(),
		Etags:        memory.NewEtagStore(0),
		Limiter:      limiter.NewMemory(loginPolicy(cfg), nil),
		Clock:        time.Now,
		Rand:         rand.Reader,
		Config:       cfg,
		Log:          log,
	}
}

// Open builds a ServiceContext for the adapters selected in cfg.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*ServiceContext, error) {
	var sc *ServiceContext
	switch cfg.DBAdapter {
	case config.AdapterPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		sc = NewPostgres(db, cfg, log)
		sc.closers = append(sc.closers, func() error { db.Close(); return nil })
	case config.AdapterMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		sc = NewMemory(memory.NewStore(), cfg, log)
	default:
		return nil, fmt.Errorf("unknown db adapter %q", cfg.DBAdapter)
	}

	switch cfg.EtagStore {
	case config.AdapterRedis:
		store, closeFn, err := redis.New(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			_ = sc.Close()
			return nil, err
		}
		sc.Etags = store
		sc.closers = append(sc.closers, closeFn)
	case config.AdapterMemory:
		if cfg.DBAdapter != config.AdapterMemory {
			sc.Etags = memory.NewEtagStore(0)
		}
	}
	return sc, nil
}
