package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var baselineFS embed.FS

// ApplyBaseline creates the pre-recurring-meeting schema (persons, reports with
// report_type and no link column, participants, attachments) on an empty database.
// Already applied is not an error.
func (m *Migrator) ApplyBaseline(ctx context.Context) (err error) {
	_, span, log := m.startPhase(ctx, "ApplyBaseline")
	defer func() { endPhase(span, log, err) }()

	if m.settings == nil {
		return errors.New("baseline needs database settings")
	}
	src, err := iofs.New(baselineFS, "sql")
	if err != nil {
		return err
	}
	mg, err := migrate.NewWithSourceInstance("iofs", src, "mysql://"+m.settings.Database.DSN())
	if err != nil {
		return fmt.Errorf("open baseline migrator: %w", err)
	}
	defer mg.Close()

	if m.dryRun {
		version, dirty, verr := mg.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			m.printf("  would apply legacy baseline")
			return nil
		}
		m.printf("Baseline at version %d (dirty=%t)", version, dirty)
		return verr
	}

	if err := mg.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.printf("Legacy baseline already applied")
			return nil
		}
		return fmt.Errorf("apply baseline: %w", err)
	}
	log.Info("applied legacy baseline")
	m.printf("Applied legacy baseline")
	return nil
}
