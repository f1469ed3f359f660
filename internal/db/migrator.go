package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"slices"

	"jellyfin-integration/internal/logging"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.up.sql migrations/*.down.sql
var migrationsFS embed.FS

// MigrateUp applies every embedded "up" migration to db.
func MigrateUp(db *sql.DB, logger logging.Logger) error {
	before, err := listTables(db)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrator: iofs init: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrator: sqlite driver: %w", err)
	}
	// m.Close would close the shared *sql.DB through the driver, so it is not called.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrator: create: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrator: up: %w", err)
	}

	if v, dirty, err := m.Version(); err == nil {
		logger.Info("DB migration version", "version", v, "dirty", dirty)
	}

	after, err := listTables(db)
	if err != nil {
		return err
	}
	for _, t := range setDiff(before, after) {
		logger.Info("created table", "table", t)
	}
	return nil
}

// listTables returns all user tables (excludes SQLite internals).
func listTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tables: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// setDiff returns items in b that are not in a.
func setDiff(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	var diff []string
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			diff = append(diff, v)
		}
	}
	slices.Sort(diff)
	return diff
}
