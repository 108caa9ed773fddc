package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const tokenColumns = `id, user_id, client_id, token_type, access_token, COALESCE(refresh_token, ''), expires_in, created_at`

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Replace deletes the previous tokens of (client, user) and inserts t in one transaction.
// An advisory lock on the pair keeps concurrent issuers from both inserting.
func (r *TokenRepo) Replace(ctx context.Context, t *model.Token) error {
	const lock = `SELECT pg_advisory_xact_lock(hashtext($1))`
	const del = `DELETE FROM tokens WHERE client_id=$1 AND user_id=$2`
	const ins = `
INSERT INTO tokens (id, user_id, client_id, token_type, access_token, refresh_token, expires_in, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lock, "token:"+t.ClientID.String()+":"+t.UserID.String()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, del, t.ClientID, t.UserID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, ins,
			t.ID, t.UserID, t.ClientID, t.TokenType, t.AccessToken, nullString(t.RefreshToken), t.ExpiresIn, t.CreatedAt,
		)
		return err
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByAccessToken selects a token by access token.
func (r *TokenRepo) GetByAccessToken(ctx context.Context, access string) (*model.Token, error) {
	const q = `SELECT ` + tokenColumns + ` FROM tokens WHERE access_token=$1`
	return scanToken(r.db.Pool.QueryRow(ctx, q, access))
}

// GetByRefreshToken selects a client's token by refresh token.
func (r *TokenRepo) GetByRefreshToken(ctx context.Context, clientID uuid.UUID, refresh string) (*model.Token, error) {
	const q = `SELECT ` + tokenColumns + ` FROM tokens WHERE client_id=$1 AND refresh_token=$2`
	return scanToken(r.db.Pool.QueryRow(ctx, q, clientID, refresh))
}

// DeleteByRefreshToken removes a client's token by refresh token.
func (r *TokenRepo) DeleteByRefreshToken(ctx context.Context, clientID uuid.UUID, refresh string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM tokens WHERE client_id=$1 AND refresh_token=$2`, clientID, refresh)
	return err
}

// DeleteByAccessToken removes a client's token by access token.
func (r *TokenRepo) DeleteByAccessToken(ctx context.Context, clientID uuid.UUID, access string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM tokens WHERE client_id=$1 AND access_token=$2`, clientID, access)
	return err
}

// DeleteExpired removes tokens whose created_at + expires_in lies before now.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM tokens WHERE created_at + make_interval(secs => expires_in) < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (*model.Token, error) {
	var t model.Token
	err := row.Scan(&t.ID, &t.UserID, &t.ClientID, &t.TokenType, &t.AccessToken, &t.RefreshToken, &t.ExpiresIn, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
