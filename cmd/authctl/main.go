// Command authctl administers goph-auth: migrations, accounts, clients and grants.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/and161185/goph-auth/internal/config"
	"github.com/and161185/goph-auth/internal/logging"
	"github.com/and161185/goph-auth/internal/migrate"
	"github.com/and161185/goph-auth/internal/svcctx"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	a := &app{
		in:  os.Stdin,
		out: os.Stdout,
		open: func(ctx context.Context) (*svcctx.ServiceContext, error) {
			return svcctx.Open(ctx, cfg, logger)
		},
		migrate: func(ctx context.Context, dir migrate.Direction) error {
			if cfg.DBAdapter != config.AdapterPostgres {
				return fmt.Errorf("migrations need DB_ADAPTER=%s", config.AdapterPostgres)
			}
			return migrate.Run(ctx, cfg.DatabaseDSN, dir, logger)
		},
	}

	if err := newRootCmd(a).Execute(); err != nil {
		logger.Debug("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
