// Package migrations applies the embedded Postgres schema.
package migrations

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// scheme
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"golang.org/x/xerrors"
)

//go:embed sql/*.sql
var files embed.FS

// Up applies every pending migration to the database at postgresURL.
func Up(postgresURL string) error {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return xerrors.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, DriverURL(postgresURL))
	if err != nil {
		return xerrors.Errorf("init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return xerrors.Errorf("apply migrations: %w", err)
	}
	return nil
}

// DriverURL rewrites a postgres:// connection string to the scheme the
// migrate pgx/v5 driver is registered under.
func DriverURL(postgresURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(postgresURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(postgresURL, prefix)
		}
	}
	return postgresURL
}
