// Package migrate applies the embedded SQL migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/MrEthical07/sessioncap/internal/db"
)

// ErrNoChange is returned when there is nothing to apply.
var ErrNoChange = migrate.ErrNoChange

// Direction selects which way migrations run.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Run applies every pending migration in direction against dsn. Being already
// at the target version is not an error.
func Run(dsn string, direction Direction) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if direction != Up && direction != Down {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == Up {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the applied version and whether the last run left the
// schema dirty.
func Version(dsn string) (uint, bool, error) {
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
