package postgres

import (
	"regexp"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return &DB{Pool: mock}, mock
}

// sql quotes a statement fragment for the default regexp matcher.
func sql(fragment string) string { return regexp.QuoteMeta(fragment) }
