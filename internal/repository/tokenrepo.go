package repository

import (
	"context"
	"time"

	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TokenRepository persists issued bearer tokens.
type TokenRepository interface {
	// Replace atomically deletes every token of (t.ClientID, t.UserID) and inserts t.
	Replace(ctx context.Context, t *model.Token) error
	// GetByAccessToken loads a token by its access token string.
	GetByAccessToken(ctx context.Context, access string) (*model.Token, error)
	// GetByRefreshToken loads a token of a client by its refresh token string.
	GetByRefreshToken(ctx context.Context, clientID uuid.UUID, refresh string) (*model.Token, error)
	// DeleteByRefreshToken removes a client's token by refresh token; missing rows are not an error.
	DeleteByRefreshToken(ctx context.Context, clientID uuid.UUID, refresh string) error
	// DeleteByAccessToken removes a client's token by access token; missing rows are not an error.
	DeleteByAccessToken(ctx context.Context, clientID uuid.UUID, access string) error
	// DeleteExpired removes tokens whose lifetime ended before now and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// GrantRepository stores (user, role) access-control entries.
type GrantRepository interface {
	// Add records a grant; an existing identical grant is left untouched.
	Add(ctx context.Context, userID uuid.UUID, role model.Role) error
	// Remove deletes a grant; missing rows are not an error.
	Remove(ctx context.Context, userID uuid.UUID, role model.Role) error
	// HasAny reports whether the user holds at least one of roles.
	HasAny(ctx context.Context, userID uuid.UUID, roles []model.Role) (bool, error)
	// ListRoles returns the distinct roles held by the user.
	ListRoles(ctx context.Context, userID uuid.UUID) ([]model.Role, error)
}
