package database

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration actions accepted by RunMigration.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateDrop    = "drop"
	MigrateVersion = "version"
)

// MigrationResult reports the schema version after a migration action.
type MigrationResult struct {
	Version uint
	Dirty   bool
	Applied bool
}

// RunMigration applies the SQL files in dir against the database at url.
func RunMigration(action, dir, url string) (*MigrationResult, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve path for %s: %w", dir, err)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(absDir), url)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close() //nolint:errcheck

	switch action {
	case MigrateUp:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	case MigrateDown:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	case MigrateDrop:
		if err := m.Drop(); err != nil {
			return nil, err
		}
		return &MigrationResult{}, nil
	case MigrateVersion:
	default:
		return nil, fmt.Errorf("unsupported action %q", action)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return &MigrationResult{}, nil
		}
		return nil, err
	}
	return &MigrationResult{Version: version, Dirty: dirty, Applied: true}, nil
}
