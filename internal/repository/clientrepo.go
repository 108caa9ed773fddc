package repository

import (
	"context"

	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ApplicationRepository stores applications; each user owns at most one.
type ApplicationRepository interface {
	// Create inserts an application; ErrAlreadyExists if the owner already has one.
	Create(ctx context.Context, a *model.Application) error
	// Update overwrites name, description and url.
	Update(ctx context.Context, a *model.Application) error
	// GetByID loads an application by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Application, error)
	// GetByOwner loads the application owned by a user.
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*model.Application, error)
}

// ClientRepository stores registered OAuth clients.
type ClientRepository interface {
	// Create inserts a client.
	Create(ctx context.Context, c *model.Client) error
	// GetByID loads a client by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
}
