// Package migrations embeds the schema migrations and wires them through
// golang-migrate, the way the teacher's go.mod already declared intent
// to (the dependency shipped unused; this is where it actually earns its
// place).
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var fs embed.FS

// Up applies every pending migration against the database at url.
func Up(url string) error {
	return run(url, func(m *migrate.Migrate) error {
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	})
}

// Down rolls back every applied migration.
func Down(url string) error {
	return run(url, func(m *migrate.Migrate) error {
		err := m.Down()
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	})
}

func run(url string, fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(fs, ".")
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	defer m.Close()
	return fn(m)
}
