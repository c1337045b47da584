// Package store holds the Postgres DAOs for accounts, assets, and stats —
// the document-CRUD persistence layer behind the asset service, wired per
// SPEC_FULL §11 to lib/pq + sqlx for querying and golang-migrate/v4 for
// schema migrations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"

	"github.com/h51assets/h51/pkg/config"
)

// Open connects to Postgres via lib/pq, scanned through sqlx, applying the
// same pool-sizing fields the teacher's database.go exposes.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies every pending migration under migrationsPath (a
// "file://..." source URL) to the database cfg points at.
func Migrate(cfg config.DatabaseConfig, migrationsPath string) error {
	driverDB, err := sqlx.Connect("postgres", cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("connect for migration: %w", err)
	}
	defer driverDB.Close()

	driver, err := postgres.WithInstance(driverDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
