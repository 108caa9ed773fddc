package oauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"go.uber.org/zap"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTokenLength = 40
	DefaultExpiresIn   = 3600
)

// TokenResponse is the successful token endpoint body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenInfo describes a live access token.
type TokenInfo struct {
	UserID    string       `json:"user_id"`
	Username  string       `json:"username"`
	ClientID  string       `json:"client_id"`
	ExpiresIn int64        `json:"expires_in"`
	Roles     []model.Role `json:"roles"`
}

// Config tunes token generation.
type Config struct {
	TokenLength int
	ExpiresIn   int64
	Rand        io.Reader
}

// Core drives grant validation, issuance, refresh and revocation.
type Core struct {
	p   Provider
	cfg Config
	log *zap.Logger
}

// New builds a Core over p.
func New(p Provider, cfg Config, log *zap.Logger) *Core {
	if cfg.TokenLength <= 0 {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.ExpiresIn <= 0 {
		cfg.ExpiresIn = DefaultExpiresIn
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Core{p: p, cfg: cfg, log: log}
}

// Provider returns the adapter the core was built with.
func (c *Core) Provider() Provider { return c.p }

// GetTokenFromRequestData validates the common parameters and routes to the
// refresh grant when a refresh_token parameter is present, otherwise to the
// password grant. The returned error is always an *Error.
func (c *Core) GetTokenFromRequestData(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	switch {
	case req.GrantType == "":
		return nil, c.invalidRequest("missing required parameter: grant_type")
	case req.ClientID == "":
		return nil, c.invalidRequest("missing required parameter: client_id")
	}
	if req.RefreshToken != nil {
		return c.RefreshToken(ctx, req)
	}
	return c.GetToken(ctx, req)
}

// GetToken runs the password grant.
func (c *Core) GetToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if model.GrantType(req.GrantType) != model.GrantPassword {
		return nil, NewError(CodeUnsupportedGrantType, "")
	}
	for _, f := range [...]struct{ name, v string }{{"username", req.Username}, {"password", req.Password}} {
		if f.v == "" {
			return nil, c.invalidRequest(fmt.Sprintf("missing required parameter for grant type %s: %s", req.GrantType, f.name))
		}
	}

	ok, err := c.p.ValidateClient(ctx, req.ClientID, model.GrantPassword, req.ClientSecret)
	if err != nil {
		return nil, c.failure(ctx, "validate client", err)
	}
	if !ok {
		return nil, NewError(CodeInvalidClient, "")
	}

	user, err := c.p.AuthenticateCredentials(ctx, req.ClientID, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, errs.ErrRateLimited) {
			return nil, &Error{Code: CodeInvalidGrant, Description: "too many failed attempts", Status: 429}
		}
		return nil, c.failure(ctx, "authenticate credentials", err)
	}
	if user == nil {
		return nil, NewError(CodeInvalidGrant, "")
	}
	return c.issue(ctx, req.ClientID, *user)
}

// RefreshToken runs the refresh_token grant; the old refresh token is
// discarded once the new pair is stored.
func (c *Core) RefreshToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if model.GrantType(req.GrantType) != model.GrantRefreshToken {
		return nil, NewError(CodeUnsupportedGrantType, "")
	}
	if req.RefreshToken == nil || *req.RefreshToken == "" {
		return nil, c.invalidRequest("missing required parameter for grant type refresh_token: refresh_token")
	}

	ok, err := c.p.ValidateClient(ctx, req.ClientID, model.GrantRefreshToken, req.ClientSecret)
	if err != nil {
		return nil, c.failure(ctx, "validate client", err)
	}
	if !ok {
		return nil, NewError(CodeInvalidClient, "")
	}

	user, err := c.p.FindByRefreshToken(ctx, req.ClientID, *req.RefreshToken)
	if err != nil {
		return nil, c.failure(ctx, "find refresh token", err)
	}
	if user == nil {
		return nil, NewError(CodeInvalidGrant, "")
	}

	// Persist the new pair before discarding the old one.
	tok, err := c.issue(ctx, req.ClientID, *user)
	if err != nil {
		return nil, err
	}
	if err := c.p.DiscardRefreshToken(ctx, req.ClientID, *req.RefreshToken); err != nil {
		c.log.Warn("discard refresh token", zap.String("client_id", req.ClientID), zap.Error(err))
	}
	return tok, nil
}

// Revoke deletes the client's token matching req.Token. Unknown tokens are
// not an error.
func (c *Core) Revoke(ctx context.Context, req RevokeRequest) error {
	switch {
	case req.ClientID == "":
		return c.invalidRequest("missing required parameter: client_id")
	case req.Token == "":
		return c.invalidRequest("missing required parameter: token")
	}
	ok, err := c.p.ValidateClient(ctx, req.ClientID, "", req.ClientSecret)
	if err != nil {
		return c.failure(ctx, "validate client", err)
	}
	if !ok {
		return NewError(CodeInvalidClient, "")
	}
	if err := c.p.RevokeToken(ctx, req.ClientID, req.Token, req.TokenTypeHint); err != nil {
		return c.failure(ctx, "revoke token", err)
	}
	return nil
}

// TokenInfo describes the owner and remaining lifetime of a live access token.
func (c *Core) TokenInfo(ctx context.Context, access string) (*TokenInfo, error) {
	info, err := c.p.FindByAccessToken(ctx, access)
	if err != nil {
		return nil, c.failure(ctx, "find access token", err)
	}
	if info == nil {
		return nil, NewError(CodeInvalidToken, "the access token is unknown or expired")
	}
	roles, err := c.p.UserRoles(ctx, info.User)
	if err != nil {
		return nil, c.failure(ctx, "list roles", err)
	}
	if roles == nil {
		roles = []model.Role{}
	}
	return &TokenInfo{
		UserID:    info.User.ID.String(),
		Username:  info.User.Username,
		ClientID:  info.Client.ID.String(),
		ExpiresIn: info.ExpiresIn,
		Roles:     roles,
	}, nil
}

func (c *Core) issue(ctx context.Context, clientID string, user model.UserIdentity) (*TokenResponse, error) {
	if !user.Valid() {
		return nil, c.invalidRequest("token owner has no identity")
	}
	access, err := crypto.RandToken(c.cfg.Rand, c.cfg.TokenLength)
	if err != nil {
		return nil, c.failure(ctx, "generate access token", err)
	}
	refresh, err := crypto.RandToken(c.cfg.Rand, c.cfg.TokenLength)
	if err != nil {
		return nil, c.failure(ctx, "generate refresh token", err)
	}
	tok := TokenResponse{
		AccessToken:  access,
		TokenType:    model.TokenTypeBearer,
		ExpiresIn:    c.cfg.ExpiresIn,
		RefreshToken: refresh,
	}
	if err := c.p.PersistToken(ctx, clientID, tok, user); err != nil {
		return nil, c.failure(ctx, "persist token", err)
	}
	c.log.Debug("token issued", zap.String("client_id", clientID), zap.String("user_id", user.ID.String()))
	return &tok, nil
}

func (c *Core) invalidRequest(desc string) *Error {
	c.log.Debug("invalid token request", zap.String("reason", desc))
	return NewError(CodeInvalidRequest, desc)
}

// failure passes provider-chosen protocol errors through and hides everything else.
func (c *Core) failure(ctx context.Context, op string, err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	if ctx.Err() == nil {
		c.log.Error("oauth provider failure", zap.String("op", op), zap.Error(err))
	}
	return NewError(CodeServerError, "")
}
