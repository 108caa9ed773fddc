package service

import (
	"context"
	"fmt"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/svcctx"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// RoleService answers and manages (user, role) grants.
type RoleService struct {
	sc *svcctx.ServiceContext
}

// NewRoleService constructs a RoleService.
func NewRoleService(sc *svcctx.ServiceContext) *RoleService {
	return &RoleService{sc: sc}
}

// CheckGrant reports whether the user holds role.
func (s *RoleService) CheckGrant(ctx context.Context, userID uuid.UUID, role model.Role) (bool, error) {
	return s.sc.Grants.HasAny(ctx, userID, []model.Role{role})
}

// AuthorizeRoles is true for an empty role set, otherwise when the user holds
// at least one of roles.
func (s *RoleService) AuthorizeRoles(ctx context.Context, userID uuid.UUID, roles []model.Role) (bool, error) {
	if len(roles) == 0 {
		return true, nil
	}
	return s.sc.Grants.HasAny(ctx, userID, roles)
}

// Grant gives role to the user identified by login (email or username).
func (s *RoleService) Grant(ctx context.Context, login string, role model.Role) error {
	u, err := s.resolve(ctx, login, role)
	if err != nil {
		return err
	}
	if err := s.sc.Grants.Add(ctx, u, role); err != nil {
		return err
	}
	s.sc.Log.Info("role granted", zap.String("user_id", u.String()), zap.String("role", string(role)))
	return nil
}

// Revoke takes role away from the user identified by login.
func (s *RoleService) Revoke(ctx context.Context, login string, role model.Role) error {
	u, err := s.resolve(ctx, login, role)
	if err != nil {
		return err
	}
	if err := s.sc.Grants.Remove(ctx, u, role); err != nil {
		return err
	}
	s.sc.Log.Info("role revoked", zap.String("user_id", u.String()), zap.String("role", string(role)))
	return nil
}

func (s *RoleService) resolve(ctx context.Context, login string, role model.Role) (uuid.UUID, error) {
	if !role.Valid() {
		return uuid.Nil, fmt.Errorf("unknown role %q: %w", role, errs.ErrBadRequest)
	}
	u, err := s.sc.Users.GetByLogin(ctx, login)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user %q: %w", login, err)
	}
	return u.ID, nil
}
