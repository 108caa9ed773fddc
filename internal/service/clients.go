package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/svcctx"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

const maxDescriptionLen = 200

// NewApplication describes an application to register.
type NewApplication struct {
	OwnerLogin  string
	Name        string
	Description string
	URL         string
}

// NewClient describes a client credential to register.
type NewClient struct {
	AppID       uuid.UUID
	Name        string
	RedirectURI string
	GrantTypes  []model.GrantType // defaults to refresh_token
}

// ClientService registers applications and their client credentials.
type ClientService struct {
	sc *svcctx.ServiceContext
}

// NewClientService constructs a ClientService.
func NewClientService(sc *svcctx.ServiceContext) *ClientService {
	return &ClientService{sc: sc}
}

// CreateApplication registers the single application of its owner.
func (s *ClientService) CreateApplication(ctx context.Context, in NewApplication) (*model.Application, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("application name is required: %w", errs.ErrBadRequest)
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLen {
		return nil, fmt.Errorf("description exceeds %d characters: %w", maxDescriptionLen, errs.ErrBadRequest)
	}
	owner, err := s.sc.Users.GetByLogin(ctx, in.OwnerLogin)
	if err != nil {
		return nil, fmt.Errorf("owner %q: %w", in.OwnerLogin, err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.sc.Now()
	app := &model.Application{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		URL:         in.URL,
		OwnerID:     owner.ID,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if err := s.sc.Applications.Create(ctx, app); err != nil {
		return nil, err
	}
	s.sc.Log.Info("application created", zap.String("app_id", app.ID.String()), zap.String("owner_id", owner.ID.String()))
	return app, nil
}

// CreateClient registers a client and returns it with the plaintext secret,
// which is not recoverable afterwards.
func (s *ClientService) CreateClient(ctx context.Context, in NewClient) (*model.Client, string, error) {
	if len(in.GrantTypes) == 0 {
		in.GrantTypes = []model.GrantType{model.GrantRefreshToken}
	}
	for _, g := range in.GrantTypes {
		if !g.Valid() {
			return nil, "", fmt.Errorf("unsupported grant type %q: %w", g, errs.ErrBadRequest)
		}
	}
	if in.AppID != uuid.Nil {
		if _, err := s.sc.Applications.GetByID(ctx, in.AppID); err != nil {
			return nil, "", fmt.Errorf("application %s: %w", in.AppID, err)
		}
	}

	secret, err := crypto.RandToken(s.sc.Rand, crypto.ClientSecretLen)
	if err != nil {
		return nil, "", err
	}
	hash, err := crypto.HashSecret(secret)
	if err != nil {
		return nil, "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", err
	}
	c := &model.Client{
		ID:                id,
		SecretHash:        hash,
		Name:              in.Name,
		RedirectURI:       in.RedirectURI,
		AllowedGrantTypes: in.GrantTypes,
		AppID:             in.AppID,
		CreatedAt:         s.sc.Now(),
	}
	if err := s.sc.Clients.Create(ctx, c); err != nil {
		return nil, "", err
	}
	s.sc.Log.Info("client created", zap.String("client_id", c.ID.String()))
	return c, secret, nil
}

// PurgeExpiredTokens deletes tokens whose lifetime has ended.
func (s *ClientService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.sc.Tokens.DeleteExpired(ctx, s.sc.Now())
	if err != nil {
		return 0, err
	}
	s.sc.Log.Info("expired tokens purged", zap.Int64("count", n))
	return n, nil
}
