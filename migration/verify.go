package migration

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// StatusReport is the read-only view of where a database stands in the migration.
type StatusReport struct {
	RecurringMeetingsTable bool
	LinkColumn             bool
	LinkColumnNullable     bool
	ForeignKey             string
	LegacyReportType       bool
	Summary
}

// Complete reports whether nothing is left to do (the legacy column aside).
func (s StatusReport) Complete() bool {
	return s.RecurringMeetingsTable && s.LinkColumn && !s.LinkColumnNullable &&
		s.ForeignKey != "" && s.Unlinked() == 0
}

func counts(ctx context.Context, db *gorm.DB) (*Summary, error) {
	var s Summary
	if err := db.WithContext(ctx).Table(recurringMeetingTable).Count(&s.RecurringMeetings).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Table(reportsTable).Count(&s.TotalReports).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Table(reportsTable).Where("recurring_meeting_id IS NOT NULL").Count(&s.LinkedReports).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Verify succeeds only when every report is linked to a recurring meeting.
func (m *Migrator) Verify(ctx context.Context) (summary *Summary, err error) {
	ctx, span, log := m.startPhase(ctx, "Verify")
	defer func() { endPhase(span, log, err) }()

	summary, err = counts(ctx, m.db)
	if err != nil {
		return nil, err
	}
	m.printf("Migration summary:")
	m.printf("  Recurring meetings: %d", summary.RecurringMeetings)
	m.printf("  Total reports: %d", summary.TotalReports)
	m.printf("  Reports with recurring_meeting_id: %d", summary.LinkedReports)

	if summary.LinkedReports != summary.TotalReports {
		m.printf("Migration incomplete: %d reports still unlinked", summary.Unlinked())
		return summary, fmt.Errorf("%w: %d", ErrUnlinkedReports, summary.Unlinked())
	}
	return summary, nil
}

// Status inspects the schema and counts without changing anything. A missing
// reports or recurring_meetings table, or a missing link column, is an error.
func (m *Migrator) Status(ctx context.Context) (report *StatusReport, err error) {
	ctx, span, log := m.startPhase(ctx, "Status")
	defer func() { endPhase(span, log, err) }()

	db := m.db.WithContext(ctx)
	report = &StatusReport{}

	for _, table := range []string{reportsTable, recurringMeetingTable} {
		ok, err := m.schema.TableExists(ctx, db, table)
		if err != nil {
			return nil, err
		}
		if !ok {
			m.printf("%s table does not exist", table)
			return nil, fmt.Errorf("%w: %s", ErrMissingTable, table)
		}
		m.printf("%s table exists", table)
	}
	report.RecurringMeetingsTable = true

	ok, err := m.schema.ColumnExists(ctx, db, reportsTable, linkColumn)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.printf("recurring_meeting_id column does not exist in reports")
		return report, fmt.Errorf("%w: %s.%s", ErrMissingColumn, reportsTable, linkColumn)
	}
	report.LinkColumn = true
	m.printf("recurring_meeting_id column exists in reports")

	if report.LinkColumnNullable, err = m.schema.ColumnNullable(ctx, db, reportsTable, linkColumn); err != nil {
		return nil, err
	}
	if report.ForeignKey, err = m.schema.ForeignKeyName(ctx, db, reportsTable, linkColumn); err != nil {
		return nil, err
	}
	if report.LegacyReportType, err = m.schema.ColumnExists(ctx, db, reportsTable, legacyTypeColumn); err != nil {
		return nil, err
	}

	summary, err := counts(ctx, db)
	if err != nil {
		return nil, err
	}
	report.Summary = *summary

	nullability := "NOT NULL"
	if report.LinkColumnNullable {
		nullability = "NULL"
	}
	fk := report.ForeignKey
	if fk == "" {
		fk = "none"
	}
	m.printf("recurring_meeting_id is %s, foreign key: %s", nullability, fk)
	m.printf("Recurring meetings: %d, reports: %d, linked: %d", summary.RecurringMeetings, summary.TotalReports, summary.LinkedReports)
	return report, nil
}
