// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates a concurrent writer holds the resource.
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated principal lacks the required role or ownership.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrBadRequest indicates invalid input supplied by the caller.
	ErrBadRequest = errors.New("bad request")

	// ErrPreconditionRequired indicates a mutating request without If-Match.
	ErrPreconditionRequired = errors.New("precondition required")

	// ErrPreconditionFailed indicates If-Match does not name the current version.
	ErrPreconditionFailed = errors.New("precondition failed")
)
