package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rossigee/jobtracker/internal/config"
	"github.com/rossigee/jobtracker/internal/metrics"
	"github.com/rossigee/jobtracker/internal/retry"
	"github.com/rossigee/jobtracker/internal/storage"
	"github.com/rossigee/jobtracker/internal/tracker"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to read .env file, relying on environment")
	}

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("Failed to load configuration")
		return exitFailure
	}
	cfg.ConfigureLogging()

	if len(args) == 0 {
		printUsage(os.Stderr)
		return exitUsage
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(os.Stdout)
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).WithField("db_path", cfg.DBPath).Error("Failed to open tracker storage")
		return exitFailure
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close tracker storage")
		}
	}()

	reg := prometheus.NewRegistry()
	svc := tracker.NewService(store, metrics.NewOperationMetrics(reg))
	c := &cli{svc: svc, out: os.Stdout, errOut: os.Stderr}
	code := c.execute(ctx, args)

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			logrus.WithError(err).WithField("metrics_file", cfg.MetricsFile).Error("Failed to write metrics file")
		}
	}
	return code
}

// openStore opens the database, retrying while another process holds the lock
func openStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	policy := retry.Exponential(cfg.OpenRetryAttempts, cfg.OpenRetryDelay)
	policy.Retryable = storage.IsTransient

	var store *storage.Store
	attempt := 0
	err := retry.WithRetry(ctx, policy, func() error {
		attempt++
		var openErr error
		store, openErr = storage.NewStore(cfg.DBPath,
			storage.WithBusyTimeout(cfg.DBBusyTimeout),
			storage.WithMaxOpenConns(cfg.DBMaxOpenConns),
		)
		if openErr != nil && storage.IsTransient(openErr) {
			logrus.WithError(openErr).WithField("attempt", attempt).Warn("Tracker storage busy, retrying")
		}
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	return store, nil
}
