package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// DefaultMigrationsPath is relative to the working directory of the server binary.
const DefaultMigrationsPath = "migrations"

var newMigrate = migrate.New

type Migrator struct {
	m *migrate.Migrate
}

func NewMigrator(dsn, migrationsPath string) (*Migrator, error) {
	m, err := newMigrate(
		fmt.Sprintf("file://%s", migrationsPath),
		dsn,
	)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}

	return &Migrator{m: m}, nil
}

func (m *Migrator) Up() error {
	err := m.m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Steps applies n migrations forward (n > 0) or backward (n < 0).
func (m *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	err := m.m.Steps(n)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("stepping migrations by %d: %w", n, err)
	}
	return nil
}

// Status reports the applied version, or "none" when nothing has run.
func (m *Migrator) Status() (string, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return "none", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading migration version: %w", err)
	}
	if dirty {
		return fmt.Sprintf("%d (dirty)", version), nil
	}
	return fmt.Sprintf("%d", version), nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
