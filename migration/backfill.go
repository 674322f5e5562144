package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iemipdd12/reports_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Group is one distinct grouping key among reports that still lack a recurring meeting.
type Group struct {
	LeaderPersonID int
	ReportType     string
	Location       string
	GoogleMapsLink *string
	FirstMeeting   time.Time
}

func (g Group) String() string {
	link := "NULL"
	if g.GoogleMapsLink != nil {
		link = *g.GoogleMapsLink
	}
	return fmt.Sprintf("leader=%d type=%s location=%q link=%s first=%s",
		g.LeaderPersonID, g.ReportType, g.Location, link, g.FirstMeeting.Format(time.RFC3339))
}

const groupsQuery = `
SELECT
    leader_person_id,
    report_type,
    location,
    google_maps_link,
    MIN(meeting_datetime) AS first_meeting
FROM reports
%s
GROUP BY leader_person_id, report_type, location, google_maps_link`

// EnsureSchema creates recurring_meetings and the nullable reports.recurring_meeting_id
// column with its foreign key, skipping whatever already exists. DDL commits on its own.
func (m *Migrator) EnsureSchema(ctx context.Context) (err error) {
	ctx, span, log := m.startPhase(ctx, "EnsureSchema")
	defer func() { endPhase(span, log, err) }()

	db := m.db.WithContext(ctx)

	ok, err := m.schema.TableExists(ctx, db, reportsTable)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingTable, reportsTable)
	}

	ok, err = m.schema.TableExists(ctx, db, recurringMeetingTable)
	if err != nil {
		return err
	}
	if ok {
		m.printf("recurring_meetings table exists")
	} else {
		m.printf("Creating recurring_meetings table...")
		if err := m.schema.CreateRecurringMeetingsTable(ctx, db); err != nil {
			return fmt.Errorf("create recurring_meetings: %w", err)
		}
		log.Info("created recurring_meetings table")
	}

	ok, err = m.schema.ColumnExists(ctx, db, reportsTable, linkColumn)
	if err != nil {
		return err
	}
	if ok {
		m.printf("recurring_meeting_id column exists in reports")
		return nil
	}
	m.printf("Adding recurring_meeting_id column to reports...")
	if err := m.schema.AddLinkColumn(ctx, db); err != nil {
		return fmt.Errorf("add reports.recurring_meeting_id: %w", err)
	}
	log.Info("added reports.recurring_meeting_id")
	return nil
}

// ComputeGroups returns one Group per distinct grouping key among unlinked reports.
func ComputeGroups(ctx context.Context, db *gorm.DB) ([]Group, error) {
	return queryGroups(ctx, db, "WHERE recurring_meeting_id IS NULL")
}

func queryGroups(ctx context.Context, db *gorm.DB, where string) ([]Group, error) {
	rows, err := db.WithContext(ctx).Raw(fmt.Sprintf(groupsQuery, where)).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var (
			g     Group
			link  sql.NullString
			first scannedTime
		)
		if err := rows.Scan(&g.LeaderPersonID, &g.ReportType, &g.Location, &link, &first); err != nil {
			return nil, err
		}
		if link.Valid {
			v := link.String
			g.GoogleMapsLink = &v
		}
		g.FirstMeeting = first.Time
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func countUnlinked(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Table(reportsTable).Where("recurring_meeting_id IS NULL").Count(&n).Error
	return n, err
}

// backfillGroup inserts the recurring meeting for g and links the group's reports to it.
// Only recurring_meeting_id changes on reports; updated_at is assigned to itself.
func backfillGroup(ctx context.Context, tx *gorm.DB, g Group) (int, int64, error) {
	reportType, err := models.ParseReportType(g.ReportType)
	if err != nil {
		return 0, 0, fmt.Errorf("group %s: %w", g, err)
	}

	meeting := models.RecurringMeeting{
		MeetingDatetime: g.FirstMeeting,
		LeaderPersonID:  g.LeaderPersonID,
		ReportType:      reportType,
		Location:        g.Location,
		GoogleMapsLink:  g.GoogleMapsLink,
		Periodicity:     models.PeriodicityWeekly,
	}
	if err := tx.WithContext(ctx).Omit("Leader").Create(&meeting).Error; err != nil {
		return 0, 0, fmt.Errorf("insert recurring meeting for %s: %w", g, err)
	}

	res := tx.WithContext(ctx).Table(reportsTable).
		Where("recurring_meeting_id IS NULL AND leader_person_id = ? AND report_type = ? AND location = ?",
			g.LeaderPersonID, g.ReportType, g.Location).
		Where("(google_maps_link = ? OR (google_maps_link IS NULL AND ? IS NULL))",
			g.GoogleMapsLink, g.GoogleMapsLink).
		UpdateColumns(map[string]interface{}{
			linkColumn: meeting.ID,
			// an explicit assignment keeps MySQL's ON UPDATE CURRENT_TIMESTAMP from firing
			"updated_at": gorm.Expr("updated_at"),
		})
	if res.Error != nil {
		return 0, 0, fmt.Errorf("link reports for %s: %w", g, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrEmptyGroup, g)
	}
	return meeting.ID, res.RowsAffected, nil
}

// Backfill creates a recurring meeting per group and links every unlinked report,
// all in one transaction. The transaction commits only if no report is left unlinked.
// It returns the number of recurring meetings created (0 when nothing was unlinked).
func (m *Migrator) Backfill(ctx context.Context) (created int, err error) {
	ctx, span, log := m.startPhase(ctx, "Backfill")
	defer func() { endPhase(span, log, err) }()

	unlinked, err := countUnlinked(ctx, m.db)
	if err != nil {
		return 0, err
	}
	if unlinked == 0 {
		m.printf("All reports have recurring_meeting_id assigned")
		return 0, nil
	}
	m.printf("Found %d reports with NULL recurring_meeting_id", unlinked)

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groups, err := ComputeGroups(ctx, tx)
		if err != nil {
			return err
		}
		m.printf("Creating %d recurring meetings...", len(groups))

		for _, g := range groups {
			id, linked, err := backfillGroup(ctx, tx, g)
			if err != nil {
				return err
			}
			created++
			log.WithFields(logrus.Fields{
				"recurringMeetingId": id,
				"linkedReports":      linked,
				"leaderPersonId":     g.LeaderPersonID,
			}).Info("backfilled group")
			if m.dryRun {
				m.printf("  would create recurring meeting (%s) linking %d reports", g, linked)
			}
		}

		remaining, err := countUnlinked(ctx, tx)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return fmt.Errorf("%w: %d after backfill", ErrUnlinkedReports, remaining)
		}
		if m.dryRun {
			return errDryRunRollback
		}
		return nil
	})
	if errors.Is(err, errDryRunRollback) {
		return created, nil
	}
	if err != nil {
		return 0, err
	}
	m.printf("Created %d recurring meetings", created)
	return created, nil
}

// TightenConstraint makes reports.recurring_meeting_id NOT NULL and (re)attaches
// fk_reports_recurring_meeting. The existing foreign key name is read from the catalog.
func (m *Migrator) TightenConstraint(ctx context.Context) (err error) {
	ctx, span, log := m.startPhase(ctx, "TightenConstraint")
	defer func() { endPhase(span, log, err) }()

	db := m.db.WithContext(ctx)
	nullable, err := m.schema.ColumnNullable(ctx, db, reportsTable, linkColumn)
	if err != nil {
		return err
	}
	fkName, err := m.schema.ForeignKeyName(ctx, db, reportsTable, linkColumn)
	if err != nil {
		return err
	}

	if !nullable {
		m.printf("recurring_meeting_id is already NOT NULL")
		if fkName == "" {
			// a previous run stopped between MODIFY and ADD CONSTRAINT
			m.printf("Re-adding foreign key %s...", ForeignKeyName)
			return m.schema.AddLinkForeignKey(ctx, db)
		}
		return nil
	}

	unlinked, err := countUnlinked(ctx, db)
	if err != nil {
		return err
	}
	if unlinked > 0 {
		return fmt.Errorf("%w: %d, refusing to add NOT NULL", ErrUnlinkedReports, unlinked)
	}

	m.printf("Making recurring_meeting_id NOT NULL...")
	if fkName != "" {
		if err := m.schema.DropForeignKey(ctx, db, reportsTable, fkName); err != nil {
			return fmt.Errorf("drop foreign key %s: %w", fkName, err)
		}
		log.WithField("constraint", fkName).Info("dropped foreign key")
	}
	if err := m.schema.MakeLinkColumnNotNull(ctx, db); err != nil {
		return fmt.Errorf("modify recurring_meeting_id: %w", err)
	}
	if err := m.schema.AddLinkForeignKey(ctx, db); err != nil {
		return fmt.Errorf("add foreign key %s: %w", ForeignKeyName, err)
	}
	m.printf("Made recurring_meeting_id NOT NULL with foreign key constraint")
	return nil
}
