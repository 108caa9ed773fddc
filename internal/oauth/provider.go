// Package oauth implements the token endpoint state machine for the
// password and refresh_token grants. Persistence and credential checks are
// delegated to a Provider.
package oauth

import (
	"context"

	"github.com/and161185/goph-auth/internal/model"
)

// AccessInfo is what a live access token resolves to.
type AccessInfo struct {
	User      model.UserIdentity
	Client    model.Client
	ExpiresIn int64 // remaining seconds
}

// Provider supplies the storage-facing capabilities the Core depends on.
//
// Lookup methods return nil without error when nothing matches. Methods may
// return *Error to choose the protocol error themselves; any other error is
// reported as server_error.
type Provider interface {
	// ValidateClient reports whether the client exists, allows grant and,
	// when secret is non-nil, whether the secret matches. An empty grant
	// skips the grant type check.
	ValidateClient(ctx context.Context, clientID string, grant model.GrantType, secret *string) (bool, error)
	// AuthenticateCredentials checks a username or email and password pair.
	AuthenticateCredentials(ctx context.Context, clientID, login, password string) (*model.UserIdentity, error)
	// FindByAccessToken resolves a live access token; expired tokens resolve to nil.
	FindByAccessToken(ctx context.Context, access string) (*AccessInfo, error)
	// FindByRefreshToken resolves a client's refresh token to its owner.
	FindByRefreshToken(ctx context.Context, clientID, refresh string) (*model.UserIdentity, error)
	// DiscardRefreshToken deletes the token holding refresh; idempotent.
	DiscardRefreshToken(ctx context.Context, clientID, refresh string) error
	// PersistToken stores tok for user, replacing any token of the same (client, user).
	PersistToken(ctx context.Context, clientID string, tok TokenResponse, user model.UserIdentity) error
	// AuthorizeRoles reports whether roles is empty or user holds one of them.
	AuthorizeRoles(ctx context.Context, user model.UserIdentity, roles []model.Role) (bool, error)
	// UserRoles lists the roles held by user.
	UserRoles(ctx context.Context, user model.UserIdentity) ([]model.Role, error)
	// RevokeToken deletes the client's token whose access or refresh token equals token; idempotent.
	RevokeToken(ctx context.Context, clientID, token, hint string) error
}
