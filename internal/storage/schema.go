// Package storage provides application, status history and outreach persistence using SQLite.
package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

// Schema migrations, applied in version order by goose
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the filesystem holding the SQL migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}

// initSchema applies all pending migrations
func (s *Store) initSchema(ctx context.Context) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, Migrations())
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, result := range results {
		logrus.WithFields(logrus.Fields{
			"version":  result.Source.Version,
			"duration": result.Duration,
		}).Info("Applied schema migration")
	}

	return nil
}

// SchemaVersion returns the highest applied migration version
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, Migrations())
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
