// Package migrate applies embedded SQL migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/goph-auth/migrations"
)

// Direction selects which goose command Run performs.
type Direction string

// Supported directions.
const (
	Up     Direction = "up"
	Down   Direction = "down"
	Status Direction = "status"
)

// Run opens dsn and performs dir against the embedded migrations.
// Goose output is routed through log.
func Run(ctx context.Context, dsn string, dir Direction, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(zap.NewStdLog(log.Named("goose")))
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch dir {
	case Up:
		return goose.UpContext(ctx, db, ".")
	case Down:
		return goose.DownContext(ctx, db, ".")
	case Status:
		return goose.StatusContext(ctx, db, ".")
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}
}
