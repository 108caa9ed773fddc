package postgres

import (
	"context"
	"errors"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, email, pwd_hash, salt_auth, name, url, bio, born, gender, created_at, modified_at`

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Pool.Exec(ctx, q,
		u.ID, u.Username, u.Email, u.PwdHash, u.SaltAuth,
		u.Name, u.URL, u.Bio, u.Born, string(u.Gender),
		u.CreatedAt, u.ModifiedAt,
	)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, username))
}

// GetByLogin selects a user by email or username.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1 OR username=$1 LIMIT 1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, login))
}

// List returns every user, oldest first.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, username`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Update overwrites credentials and profile fields.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	const q = `
UPDATE users
SET pwd_hash=$2, salt_auth=$3, name=$4, url=$5, bio=$6, born=$7, gender=$8, modified_at=$9
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q,
		u.ID, u.PwdHash, u.SaltAuth, u.Name, u.URL, u.Bio, u.Born, string(u.Gender), u.ModifiedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes the user; tokens, grants and applications cascade.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u      model.User
		gender string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PwdHash, &u.SaltAuth,
		&u.Name, &u.URL, &u.Bio, &u.Born, &gender,
		&u.CreatedAt, &u.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.Gender = model.Gender(gender)
	return &u, nil
}
