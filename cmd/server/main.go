// Command goph-auth starts the OAuth 2.0 authorization HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/goph-auth/internal/config"
	"github.com/and161185/goph-auth/internal/logging"
	"github.com/and161185/goph-auth/internal/metrics"
	"github.com/and161185/goph-auth/internal/migrate"
	httpserver "github.com/and161185/goph-auth/internal/server/http"
	"github.com/and161185/goph-auth/internal/svcctx"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run loads configuration, migrates the schema and serves until a signal arrives.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return err
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("db", cfg.DBAdapter),
		zap.String("etags", cfg.EtagStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DBAdapter == config.AdapterPostgres {
		if err := migrate.Run(ctx, cfg.DatabaseDSN, migrate.Up, logger); err != nil {
			logger.Error("migrate up", zap.Error(err))
			return err
		}
	}

	sc, err := svcctx.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", zap.Error(err))
		return err
	}
	defer func() {
		if err := sc.Close(); err != nil {
			logger.Warn("close stores", zap.Error(err))
		}
	}()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if m, err = metrics.New(reg); err != nil {
			logger.Error("metrics", zap.Error(err))
			return err
		}
	}

	srv := httpserver.NewServer(cfg.HTTPAddr, httpserver.NewRouter(sc, m))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
