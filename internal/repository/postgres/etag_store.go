package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/repository"
	"github.com/jackc/pgx/v5"
)

const (
	lockRetry   = 25 * time.Millisecond
	lockMaxWait = 5 * time.Second
)

// EtagStore implements repository.EtagStore on the etags table.
type EtagStore struct {
	db      *DB
	retry   time.Duration
	maxWait time.Duration
}

// NewEtagStore constructs an etag store.
func NewEtagStore(db *DB) *EtagStore {
	return &EtagStore{db: db, retry: lockRetry, maxWait: lockMaxWait}
}

// Get returns the stored etag for key.
func (s *EtagStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.Pool.QueryRow(ctx, `SELECT value FROM etags WHERE key=$1`, key).Scan(&v)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	default:
		return "", false, err
	}
}

// Set upserts the etag for key.
func (s *EtagStore) Set(ctx context.Context, key, etag string) error {
	const q = `
INSERT INTO etags (key, value, modified_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, modified_at=now()`
	_, err := s.db.Pool.Exec(ctx, q, key, etag)
	return err
}

// Delete removes the etag for key.
func (s *EtagStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM etags WHERE key=$1`, key)
	return err
}

// Lock takes a transaction-scoped advisory lock on key. The lock is held
// by an open transaction until Unlock commits it. Waiters do not keep a
// pooled connection between attempts, and give up with ErrVersionConflict
// after maxWait.
func (s *EtagStore) Lock(ctx context.Context, key string) (repository.Unlock, error) {
	deadline := time.Now().Add(s.maxWait)
	for {
		unlock, err := s.tryLock(ctx, "etag:"+key)
		if err != nil || unlock != nil {
			return unlock, err
		}
		if !time.Now().Before(deadline) {
			return nil, errs.ErrVersionConflict
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retry):
		}
	}
}

// tryLock returns a nil Unlock when the lock is held elsewhere.
func (s *EtagStore) tryLock(ctx context.Context, lockKey string) (repository.Unlock, error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	var acquired bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, lockKey).Scan(&acquired); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, err
	}
	if !acquired {
		_ = tx.Rollback(context.Background())
		return nil, nil
	}
	return func() { _ = tx.Commit(context.Background()) }, nil
}
