package repository

import "context"

// Unlock releases a lock obtained from EtagStore.Lock.
type Unlock func()

// EtagStore keeps the last served content hash per resource key.
type EtagStore interface {
	// Get returns the stored etag and whether one exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores etag under key, replacing any previous value.
	Set(ctx context.Context, key, etag string) error
	// Delete forgets key; missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Lock serializes writers of key until Unlock is called.
	Lock(ctx context.Context, key string) (Unlock, error)
}
