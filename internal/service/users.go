package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/svcctx"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// NewUser describes an account to create.
type NewUser struct {
	Email    string
	Password string
	Username string // generated when empty
	Name     string
	URL      string
	Bio      string
	Born     *time.Time
	Gender   model.Gender
	Role     model.Role // defaults to RoleUser
}

// UserPatch lists the fields an update may change; nil means unchanged.
type UserPatch struct {
	Password *string
	Name     *string
	URL      *string
	Bio      *string
	Born     *time.Time
	Gender   *model.Gender
}

// UserService manages accounts.
type UserService struct {
	sc *svcctx.ServiceContext
}

// NewUserService constructs a UserService.
func NewUserService(sc *svcctx.ServiceContext) *UserService {
	return &UserService{sc: sc}
}

// List returns all users.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.sc.Users.List(ctx)
}

// Get loads a user by username.
func (s *UserService) Get(ctx context.Context, username string) (*model.User, error) {
	return s.sc.Users.GetByUsername(ctx, username)
}

// GetByID loads a user by primary key.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.sc.Users.GetByID(ctx, id)
}

// Create validates in, stores the user and grants its role.
func (s *UserService) Create(ctx context.Context, in NewUser) (*model.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("a valid email is required: %w", errs.ErrBadRequest)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("password is required: %w", errs.ErrBadRequest)
	}
	if !in.Gender.Valid() {
		return nil, fmt.Errorf("gender must be Male or Female: %w", errs.ErrBadRequest)
	}
	if in.Role == "" {
		in.Role = model.RoleUser
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", in.Role, errs.ErrBadRequest)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	if in.Username == "" {
		in.Username = strings.ReplaceAll(id.String(), "-", "")
	}
	hash, salt, err := crypto.NewPasswordHash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.sc.Now()
	u := &model.User{
		ID:         id,
		Username:   in.Username,
		Email:      in.Email,
		PwdHash:    hash,
		SaltAuth:   salt,
		Name:       in.Name,
		URL:        in.URL,
		Bio:        in.Bio,
		Born:       in.Born,
		Gender:     in.Gender,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := s.sc.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	if err := s.sc.Grants.Add(ctx, u.ID, in.Role); err != nil {
		return nil, fmt.Errorf("grant %s: %w", in.Role, err)
	}
	s.sc.Log.Info("user created", zap.String("user_id", u.ID.String()), zap.String("role", string(in.Role)))
	return u, nil
}

// Update applies patch to the user with username.
func (s *UserService) Update(ctx context.Context, username string, patch UserPatch) (*model.User, error) {
	u, err := s.sc.Users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			return nil, fmt.Errorf("password must not be empty: %w", errs.ErrBadRequest)
		}
		if u.PwdHash, u.SaltAuth, err = crypto.NewPasswordHash(*patch.Password); err != nil {
			return nil, err
		}
	}
	if patch.Gender != nil {
		if !patch.Gender.Valid() {
			return nil, fmt.Errorf("gender must be Male or Female: %w", errs.ErrBadRequest)
		}
		u.Gender = *patch.Gender
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.URL != nil {
		u.URL = *patch.URL
	}
	if patch.Bio != nil {
		u.Bio = *patch.Bio
	}
	if patch.Born != nil {
		born := *patch.Born
		u.Born = &born
	}
	u.ModifiedAt = s.sc.Now()
	if err := s.sc.Users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword replaces the password of the user whose email or username is login.
func (s *UserService) SetPassword(ctx context.Context, login, password string) error {
	u, err := s.sc.Users.GetByLogin(ctx, login)
	if err != nil {
		return err
	}
	_, err = s.Update(ctx, u.Username, UserPatch{Password: &password})
	return err
}

// Delete removes the user with username along with its tokens and grants.
func (s *UserService) Delete(ctx context.Context, username string) error {
	u, err := s.sc.Users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.sc.Users.Delete(ctx, u.ID); err != nil {
		return err
	}
	s.sc.Log.Info("user deleted", zap.String("user_id", u.ID.String()))
	return nil
}

// IsAdmin reports whether the user holds the admin role.
func (s *UserService) IsAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.sc.Grants.HasAny(ctx, id, []model.Role{model.RoleAdmin})
}
