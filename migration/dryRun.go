package migration

import (
	"context"
)

// DryRun prints what Run would do. Schema changes are only described; the backfill
// is executed inside a transaction that is always rolled back.
func (m *Migrator) DryRun(ctx context.Context) (summary *Summary, err error) {
	m.dryRun = true
	ctx, span, log := m.startPhase(ctx, "DryRun")
	defer func() { endPhase(span, log, err) }()

	db := m.db.WithContext(ctx)
	m.printf("Dry run: no changes will be committed")

	hasReports, err := m.schema.TableExists(ctx, db, reportsTable)
	if err != nil {
		return nil, err
	}
	if !hasReports {
		return nil, ErrMissingTable
	}
	hasMeetings, err := m.schema.TableExists(ctx, db, recurringMeetingTable)
	if err != nil {
		return nil, err
	}
	hasColumn, err := m.schema.ColumnExists(ctx, db, reportsTable, linkColumn)
	if err != nil {
		return nil, err
	}

	if !hasMeetings {
		m.printf("  would create recurring_meetings table")
	}
	if !hasColumn {
		m.printf("  would add reports.recurring_meeting_id and %s", ForeignKeyName)
	}

	if !hasMeetings || !hasColumn {
		// nothing is linked yet: every report is part of the plan
		groups, err := queryGroups(ctx, db, "")
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			m.printf("  would create recurring meeting (%s)", g)
		}
		m.printf("  would make recurring_meeting_id NOT NULL")
		if err := m.RelaxLegacyReportType(ctx); err != nil {
			return nil, err
		}
		return &Summary{CreatedMeetings: len(groups)}, nil
	}

	created, err := m.Backfill(ctx)
	if err != nil {
		return nil, err
	}
	nullable, err := m.schema.ColumnNullable(ctx, db, reportsTable, linkColumn)
	if err != nil {
		return nil, err
	}
	if nullable {
		m.printf("  would make recurring_meeting_id NOT NULL")
	}
	if err := m.RelaxLegacyReportType(ctx); err != nil {
		return nil, err
	}
	summary, err = counts(ctx, db)
	if err != nil {
		return nil, err
	}
	summary.CreatedMeetings = created
	return summary, nil
}
