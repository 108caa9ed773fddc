// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides CRUD access for user accounts.
type UserRepository interface {
	// Create inserts a new user; ErrAlreadyExists on duplicate email or username.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// GetByLogin loads a user whose email or username equals login.
	GetByLogin(ctx context.Context, login string) (*model.User, error)
	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]model.User, error)
	// Update overwrites password and profile fields of an existing user.
	Update(ctx context.Context, u *model.User) error
	// Delete removes a user together with its tokens and grants.
	Delete(ctx context.Context, id uuid.UUID) error
}
