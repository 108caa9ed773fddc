package postgres

import (
	"context"
	"errors"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ApplicationRepo implements ApplicationRepository using PostgreSQL.
type ApplicationRepo struct{ db *DB }

// NewApplicationRepo constructs an application repository.
func NewApplicationRepo(db *DB) *ApplicationRepo { return &ApplicationRepo{db: db} }

// Create inserts an application; the owner column is unique.
func (r *ApplicationRepo) Create(ctx context.Context, a *model.Application) error {
	const q = `
INSERT INTO applications (id, name, description, url, owner_id, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.Name, a.Description, a.URL, a.OwnerID, a.CreatedAt, a.ModifiedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Update overwrites the descriptive fields.
func (r *ApplicationRepo) Update(ctx context.Context, a *model.Application) error {
	const q = `UPDATE applications SET name=$2, description=$3, url=$4, modified_at=$5 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, a.ID, a.Name, a.Description, a.URL, a.ModifiedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// GetByID selects an application by ID.
func (r *ApplicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Application, error) {
	const q = `
SELECT id, name, description, url, owner_id, created_at, modified_at
FROM applications WHERE id=$1`
	return scanApplication(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByOwner selects the application owned by a user.
func (r *ApplicationRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*model.Application, error) {
	const q = `
SELECT id, name, description, url, owner_id, created_at, modified_at
FROM applications WHERE owner_id=$1`
	return scanApplication(r.db.Pool.QueryRow(ctx, q, ownerID))
}

func scanApplication(row pgx.Row) (*model.Application, error) {
	var a model.Application
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.URL, &a.OwnerID, &a.CreatedAt, &a.ModifiedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ClientRepo implements ClientRepository using PostgreSQL.
type ClientRepo struct{ db *DB }

// NewClientRepo constructs a client repository.
func NewClientRepo(db *DB) *ClientRepo { return &ClientRepo{db: db} }

// Create inserts a client row.
func (r *ClientRepo) Create(ctx context.Context, c *model.Client) error {
	const q = `
INSERT INTO clients (id, secret_hash, name, redirect_uri, allowed_grant_types, app_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q,
		c.ID, c.SecretHash, c.Name, c.RedirectURI, grantTypesToText(c.AllowedGrantTypes), nullUUID(c.AppID), c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a client by ID.
func (r *ClientRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	const q = `
SELECT id, secret_hash, name, redirect_uri, allowed_grant_types, app_id, created_at
FROM clients WHERE id=$1`
	var (
		c      model.Client
		grants []string
		appID  *uuid.UUID
	)
	err := r.db.Pool.QueryRow(ctx, q, id).
		Scan(&c.ID, &c.SecretHash, &c.Name, &c.RedirectURI, &grants, &appID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	c.AllowedGrantTypes = make([]model.GrantType, 0, len(grants))
	for _, g := range grants {
		c.AllowedGrantTypes = append(c.AllowedGrantTypes, model.GrantType(g))
	}
	if appID != nil {
		c.AppID = *appID
	}
	return &c, nil
}

func grantTypesToText(gts []model.GrantType) []string {
	out := make([]string, 0, len(gts))
	for _, g := range gts {
		out = append(out, string(g))
	}
	return out
}
