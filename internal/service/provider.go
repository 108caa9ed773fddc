// Package service contains the concrete OAuth provider and the user, role
// and client management services.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/limiter"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/oauth"
	"github.com/and161185/goph-auth/internal/svcctx"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

var _ oauth.Provider = (*AuthProvider)(nil)

// AuthProvider implements oauth.Provider on top of the repositories.
type AuthProvider struct {
	sc    *svcctx.ServiceContext
	roles *RoleService
}

// NewAuthProvider constructs AuthProvider with required dependencies.
func NewAuthProvider(sc *svcctx.ServiceContext) *AuthProvider {
	return &AuthProvider{sc: sc, roles: NewRoleService(sc)}
}

// loadClient returns nil for malformed or unknown client ids.
func (p *AuthProvider) loadClient(ctx context.Context, clientID string) (*model.Client, error) {
	id, err := uuid.FromString(clientID)
	if err != nil {
		return nil, nil
	}
	c, err := p.sc.Clients.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func (p *AuthProvider) ValidateClient(ctx context.Context, clientID string, grant model.GrantType, secret *string) (bool, error) {
	c, err := p.loadClient(ctx, clientID)
	if err != nil || c == nil {
		return false, err
	}
	if grant != "" && !c.Allows(grant) {
		return false, nil
	}
	if secret != nil && !crypto.VerifySecret(c.SecretHash, *secret) {
		return false, nil
	}
	return true, nil
}

// AuthenticateCredentials applies the login lockout per (login, client ip)
// and verifies the password of the user whose email or username is login.
func (p *AuthProvider) AuthenticateCredentials(ctx context.Context, _, login, password string) (*model.UserIdentity, error) {
	ip, _ := limiter.ClientIPFromContext(ctx)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := p.sc.Limiter.Allow(ctx, login, ipHash)
	if err != nil {
		return nil, fmt.Errorf("limiter allow: %w", err)
	}
	if !allowed {
		return nil, errs.ErrRateLimited
	}

	u, err := p.sc.Users.GetByLogin(ctx, login)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if u == nil || !crypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		blocked, _, ferr := p.sc.Limiter.Failure(ctx, login, ipHash)
		if ferr != nil {
			p.sc.Log.Warn("record login failure", zap.Error(ferr))
		}
		if blocked {
			return nil, errs.ErrRateLimited
		}
		return nil, nil
	}

	if err := p.sc.Limiter.Success(ctx, login, ipHash); err != nil {
		p.sc.Log.Warn("reset login failures", zap.Error(err))
	}
	id := u.Identity()
	return &id, nil
}

func (p *AuthProvider) FindByAccessToken(ctx context.Context, access string) (*oauth.AccessInfo, error) {
	tok, err := p.sc.Tokens.GetByAccessToken(ctx, access)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	now := p.sc.Now()
	if tok.Expired(now) {
		return nil, nil
	}
	u, err := p.sc.Users.GetByID(ctx, tok.UserID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c, err := p.sc.Clients.GetByID(ctx, tok.ClientID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &oauth.AccessInfo{User: u.Identity(), Client: *c, ExpiresIn: tok.RemainingExpiresIn(now)}, nil
}

func (p *AuthProvider) FindByRefreshToken(ctx context.Context, clientID, refresh string) (*model.UserIdentity, error) {
	cid, err := uuid.FromString(clientID)
	if err != nil {
		return nil, nil
	}
	tok, err := p.sc.Tokens.GetByRefreshToken(ctx, cid, refresh)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u, err := p.sc.Users.GetByID(ctx, tok.UserID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := u.Identity()
	return &id, nil
}

func (p *AuthProvider) DiscardRefreshToken(ctx context.Context, clientID, refresh string) error {
	cid, err := uuid.FromString(clientID)
	if err != nil {
		return nil
	}
	return p.sc.Tokens.DeleteByRefreshToken(ctx, cid, refresh)
}

// PersistToken replaces the (client, user) token with tok.
func (p *AuthProvider) PersistToken(ctx context.Context, clientID string, tok oauth.TokenResponse, user model.UserIdentity) error {
	c, err := p.loadClient(ctx, clientID)
	if err != nil {
		return err
	}
	if c == nil {
		return oauth.NewError(oauth.CodeInvalidClient, "")
	}
	if !user.Valid() {
		return oauth.NewError(oauth.CodeInvalidRequest, "token owner has no identity")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	return p.sc.Tokens.Replace(ctx, &model.Token{
		ID:           id,
		UserID:       user.ID,
		ClientID:     c.ID,
		TokenType:    tok.TokenType,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		CreatedAt:    p.sc.Now(),
	})
}

func (p *AuthProvider) AuthorizeRoles(ctx context.Context, user model.UserIdentity, roles []model.Role) (bool, error) {
	return p.roles.AuthorizeRoles(ctx, user.ID, roles)
}

func (p *AuthProvider) UserRoles(ctx context.Context, user model.UserIdentity) ([]model.Role, error) {
	return p.sc.Grants.ListRoles(ctx, user.ID)
}

// RevokeToken deletes by the hinted token kind first, then by the other.
func (p *AuthProvider) RevokeToken(ctx context.Context, clientID, token, hint string) error {
	cid, err := uuid.FromString(clientID)
	if err != nil {
		return nil
	}
	byAccess := func() error { return p.sc.Tokens.DeleteByAccessToken(ctx, cid, token) }
	byRefresh := func() error { return p.sc.Tokens.DeleteByRefreshToken(ctx, cid, token) }
	order := []func() error{byAccess, byRefresh}
	if hint == string(model.GrantRefreshToken) {
		order = []func() error{byRefresh, byAccess}
	}
	for _, del := range order {
		if err := del(); err != nil {
			return err
		}
	}
	return nil
}
