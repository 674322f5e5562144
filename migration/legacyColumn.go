package migration

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// RelaxLegacyReportType makes reports.report_type nullable. Reports created after the
// migration carry their type on the recurring meeting and never write the column.
// Missing or already nullable column is a no-op.
func (m *Migrator) RelaxLegacyReportType(ctx context.Context) (err error) {
	ctx, span, log := m.startPhase(ctx, "RelaxLegacyReportType")
	defer func() { endPhase(span, log, err) }()

	db := m.db.WithContext(ctx)
	pending, err := m.legacyReportTypeRequired(ctx, db)
	if err != nil || !pending {
		return err
	}
	if m.dryRun {
		m.printf("  would allow NULL in reports.report_type")
		return nil
	}

	m.printf("Allowing NULL in reports.report_type...")
	if err := m.schema.RelaxLegacyReportType(ctx, db); err != nil {
		return fmt.Errorf("relax reports.report_type: %w", err)
	}
	log.Info("reports.report_type is nullable")
	return nil
}

// legacyReportTypeRequired reports whether reports.report_type exists and is still NOT NULL.
func (m *Migrator) legacyReportTypeRequired(ctx context.Context, db *gorm.DB) (bool, error) {
	exists, err := m.schema.ColumnExists(ctx, db, reportsTable, legacyTypeColumn)
	if err != nil || !exists {
		return false, err
	}
	nullable, err := m.schema.ColumnNullable(ctx, db, reportsTable, legacyTypeColumn)
	if err != nil {
		return false, err
	}
	return !nullable, nil
}

// DropLegacyReportType removes reports.report_type once every report is linked;
// the type then lives on the recurring meeting. Missing column is a no-op.
func (m *Migrator) DropLegacyReportType(ctx context.Context) (err error) {
	ctx, span, log := m.startPhase(ctx, "DropLegacyReportType")
	defer func() { endPhase(span, log, err) }()

	db := m.db.WithContext(ctx)
	exists, err := m.schema.ColumnExists(ctx, db, reportsTable, legacyTypeColumn)
	if err != nil {
		return err
	}
	if !exists {
		m.printf("Column report_type does not exist in reports table")
		return nil
	}

	if _, err := m.Verify(ctx); err != nil {
		return fmt.Errorf("report_type is still needed: %w", err)
	}
	if m.dryRun {
		m.printf("  would drop reports.report_type")
		return nil
	}

	m.printf("Removing report_type column from reports table...")
	if err := m.schema.DropColumn(ctx, db, reportsTable, legacyTypeColumn); err != nil {
		return err
	}
	log.Info("dropped reports.report_type")
	m.printf("Removed report_type column from reports table")
	return nil
}
