package postgres

import (
	"context"
	"testing"

	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestGrantRepo_AddIsConditional(t *testing.T) {
	db, mock := newDB(t)
	r := NewGrantRepo(db)
	uid := uuid.Must(uuid.NewV4())

	mock.ExpectExec(sql("INSERT INTO grants (user_id, role) SELECT $1, $2 WHERE NOT EXISTS")).
		WithArgs(uid, "admin").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.NoError(t, r.Add(context.Background(), uid, model.RoleAdmin))

	mock.ExpectExec(sql("DELETE FROM grants WHERE user_id=$1 AND role=$2")).
		WithArgs(uid, "admin").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Remove(context.Background(), uid, model.RoleAdmin))
}

func TestGrantRepo_HasAny(t *testing.T) {
	db, mock := newDB(t)
	r := NewGrantRepo(db)
	uid := uuid.Must(uuid.NewV4())

	ok, err := r.HasAny(context.Background(), uid, nil)
	require.NoError(t, err)
	require.False(t, ok, "empty role list never hits the database")

	mock.ExpectQuery(sql("role = ANY($2)")).
		WithArgs(uid, []string{"admin", "user"}).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err = r.HasAny(context.Background(), uid, []model.Role{model.RoleAdmin, model.RoleUser})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGrantRepo_ListRoles(t *testing.T) {
	db, mock := newDB(t)
	r := NewGrantRepo(db)
	uid := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(sql("SELECT DISTINCT role FROM grants WHERE user_id=$1")).
		WithArgs(uid).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("admin").AddRow("user"))
	roles, err := r.ListRoles(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, []model.Role{model.RoleAdmin, model.RoleUser}, roles)
}
