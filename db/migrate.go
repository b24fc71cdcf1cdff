// Package db embeds the schema migrations and applies them at startup.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies any pending embedded migrations, in order. connURL
// must be a postgres:// or postgresql:// URL.
func Migrate(connURL string) error {
	dbURL, err := convertToMigrateURL(connURL)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	defer closeMigrator(m)

	// A dirty version means an earlier run failed halfway. Applying more
	// migrations on top would compound the damage.
	version, dirty, err := schemaVersion(m)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema dirty at version %d, inspect and run: migrate force %d", version, version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Debug("schema already up to date")
			return nil
		}
		if version, dirty, verr := schemaVersion(m); verr == nil && dirty {
			slog.Error("migration left schema dirty",
				"version", version,
				"hint", fmt.Sprintf("fix the migration and run: migrate force %d", version))
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	if version, dirty, err := schemaVersion(m); err == nil {
		slog.Info("migrations applied", "version", version, "dirty", dirty)
	} else {
		slog.Warn("migrations applied but version check failed", "error", err)
	}
	return nil
}

// schemaVersion reads the current migration state. An empty schema
// reports version zero.
func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return version, dirty, nil
}

func closeMigrator(m *migrate.Migrate) {
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		slog.Warn("closing migrator", "source_error", srcErr, "db_error", dbErr)
	}
}

// convertToMigrateURL rewrites postgres:// and postgresql:// URLs to
// the pgx5:// scheme golang-migrate's pgx v5 driver registers under.
func convertToMigrateURL(connURL string) (string, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme %q, expected postgres or postgresql", u.Scheme)
	}
}
