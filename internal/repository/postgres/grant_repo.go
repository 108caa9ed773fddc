package postgres

import (
	"context"

	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// GrantRepo implements GrantRepository using PostgreSQL.
type GrantRepo struct{ db *DB }

// NewGrantRepo constructs a grant repository.
func NewGrantRepo(db *DB) *GrantRepo { return &GrantRepo{db: db} }

// Add inserts the grant unless an identical one is already present.
func (r *GrantRepo) Add(ctx context.Context, userID uuid.UUID, role model.Role) error {
	const q = `
INSERT INTO grants (user_id, role)
SELECT $1, $2
WHERE NOT EXISTS (SELECT 1 FROM grants WHERE user_id=$1 AND role=$2)`
	_, err := r.db.Pool.Exec(ctx, q, userID, string(role))
	return err
}

// Remove deletes every copy of the grant.
func (r *GrantRepo) Remove(ctx context.Context, userID uuid.UUID, role model.Role) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM grants WHERE user_id=$1 AND role=$2`, userID, string(role))
	return err
}

// HasAny reports whether the user holds one of roles.
func (r *GrantRepo) HasAny(ctx context.Context, userID uuid.UUID, roles []model.Role) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	const q = `SELECT EXISTS (SELECT 1 FROM grants WHERE user_id=$1 AND role = ANY($2))`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, userID, names).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// ListRoles returns the distinct roles of a user in name order.
func (r *GrantRepo) ListRoles(ctx context.Context, userID uuid.UUID) ([]model.Role, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT DISTINCT role FROM grants WHERE user_id=$1 ORDER BY role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, model.Role(role))
	}
	return out, rows.Err()
}
