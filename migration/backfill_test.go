package migration

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqliteSchema runs the migration DDL on SQLite. Nullability and foreign keys of
// the link column are tracked in memory since SQLite cannot alter them in place.
type sqliteSchema struct {
	notNull map[string]bool
	fks     map[string]string
}

func newSQLiteSchema() *sqliteSchema {
	return &sqliteSchema{
		notNull: map[string]bool{reportsTable + "." + legacyTypeColumn: true},
		fks:     map[string]string{},
	}
}

func (s *sqliteSchema) TableExists(ctx context.Context, db *gorm.DB, table string) (bool, error) {
	return db.WithContext(ctx).Migrator().HasTable(table), nil
}

func (s *sqliteSchema) ColumnExists(ctx context.Context, db *gorm.DB, table, column string) (bool, error) {
	return db.WithContext(ctx).Migrator().HasColumn(table, column), nil
}

func (s *sqliteSchema) ColumnNullable(ctx context.Context, db *gorm.DB, table, column string) (bool, error) {
	if !db.WithContext(ctx).Migrator().HasColumn(table, column) {
		return false, fmt.Errorf("%w: %s.%s", ErrMissingColumn, table, column)
	}
	return !s.notNull[table+"."+column], nil
}

func (s *sqliteSchema) ForeignKeyName(ctx context.Context, db *gorm.DB, table, column string) (string, error) {
	return s.fks[table+"."+column], nil
}

func (s *sqliteSchema) CreateRecurringMeetingsTable(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&models.RecurringMeeting{})
}

func (s *sqliteSchema) AddLinkColumn(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec("ALTER TABLE reports ADD COLUMN recurring_meeting_id integer NULL").Error; err != nil {
		return err
	}
	s.fks[reportsTable+"."+linkColumn] = ForeignKeyName
	return nil
}

func (s *sqliteSchema) DropForeignKey(ctx context.Context, db *gorm.DB, table, name string) error {
	delete(s.fks, table+"."+linkColumn)
	return nil
}

func (s *sqliteSchema) MakeLinkColumnNotNull(ctx context.Context, db *gorm.DB) error {
	s.notNull[reportsTable+"."+linkColumn] = true
	return nil
}

func (s *sqliteSchema) AddLinkForeignKey(ctx context.Context, db *gorm.DB) error {
	s.fks[reportsTable+"."+linkColumn] = ForeignKeyName
	return nil
}

func (s *sqliteSchema) RelaxLegacyReportType(ctx context.Context, db *gorm.DB) error {
	for _, stmt := range []string{
		"ALTER TABLE reports RENAME COLUMN report_type TO report_type_old",
		"ALTER TABLE reports ADD COLUMN report_type varchar(10) NULL",
		"UPDATE reports SET report_type = report_type_old",
		"ALTER TABLE reports DROP COLUMN report_type_old",
	} {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return err
		}
	}
	delete(s.notNull, reportsTable+"."+legacyTypeColumn)
	return nil
}

func (s *sqliteSchema) DropColumn(ctx context.Context, db *gorm.DB, table, column string) error {
	return db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)).Error
}

const legacyReportsDDL = `
CREATE TABLE reports (
    id integer PRIMARY KEY AUTOINCREMENT,
    registration_date datetime NOT NULL,
    meeting_datetime datetime NOT NULL,
    report_type varchar(10) NOT NULL,
    leader_person_id integer NOT NULL,
    leader_phone varchar(20) NOT NULL,
    collaborator varchar(200),
    location varchar(500) NOT NULL,
    collection_amount decimal(10,2) NOT NULL,
    currency varchar(3) NOT NULL,
    attendees_count integer NOT NULL,
    google_maps_link varchar(1000),
    created_at datetime,
    updated_at datetime
)`

var legacyUpdatedAt = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	schema *sqliteSchema
	out    *bytes.Buffer
}

func setupLegacyDB(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Person{}))
	require.NoError(t, db.Exec(legacyReportsDDL).Error)
	return &fixture{db: db, schema: newSQLiteSchema(), out: &bytes.Buffer{}}
}

func (f *fixture) migrator(opts ...Option) *Migrator {
	opts = append([]Option{WithSchemaManager(f.schema), WithOutput(f.out)}, opts...)
	return New(f.db, nil, config.NewLogger("error"), opts...)
}

func (f *fixture) person(t *testing.T, firstName string) int {
	t.Helper()
	p := models.Person{
		FirstName:   firstName,
		LastName:    "Mamani",
		BirthDate:   models.NewDate(1985, time.May, 2),
		Phone:       "+59171234567",
		HomeAddress: "Calle Sucre 45",
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p.ID
}

func (f *fixture) report(t *testing.T, leaderId int, reportType, location string, link *string, at time.Time) int {
	t.Helper()
	res := f.db.Exec(`INSERT INTO reports
        (registration_date, meeting_datetime, report_type, leader_person_id, leader_phone, location,
         collection_amount, currency, attendees_count, google_maps_link, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		at, at, reportType, leaderId, "+59171234567", location, "10.00", "BOB", 4, link, legacyUpdatedAt, legacyUpdatedAt)
	require.NoError(t, res.Error)
	var id int
	require.NoError(t, f.db.Raw("SELECT MAX(id) FROM reports").Scan(&id).Error)
	return id
}

func (f *fixture) linkOf(t *testing.T, reportId int) *int {
	t.Helper()
	var links []sql.NullInt64
	require.NoError(t, f.db.Table(reportsTable).Where("id = ?", reportId).Pluck(linkColumn, &links).Error)
	require.Len(t, links, 1)
	if !links[0].Valid {
		return nil
	}
	id := int(links[0].Int64)
	return &id
}

func (f *fixture) meetings(t *testing.T) []models.RecurringMeeting {
	t.Helper()
	var meetings []models.RecurringMeeting
	require.NoError(t, f.db.Order("id").Find(&meetings).Error)
	return meetings
}

func strPtr(s string) *string { return &s }

func TestRunGroupsReportsIntoRecurringMeetings(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")

	r1 := f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))
	r2 := f.report(t, leader, "celula", "Casa A", nil, time.Date(2023, 12, 31, 19, 0, 0, 0, time.UTC))
	r3 := f.report(t, leader, "culto", "Templo", nil, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))

	summary, err := f.migrator().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.RecurringMeetings)
	assert.Equal(t, int64(3), summary.TotalReports)
	assert.Equal(t, int64(3), summary.LinkedReports)
	assert.Equal(t, 2, summary.CreatedMeetings)

	l1, l2, l3 := f.linkOf(t, r1), f.linkOf(t, r2), f.linkOf(t, r3)
	require.NotNil(t, l1)
	require.NotNil(t, l2)
	require.NotNil(t, l3)
	assert.Equal(t, *l1, *l2)
	assert.NotEqual(t, *l1, *l3)

	var celula models.RecurringMeeting
	require.NoError(t, f.db.First(&celula, *l1).Error)
	assert.True(t, celula.MeetingDatetime.Equal(time.Date(2023, 12, 31, 19, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.ReportTypeCelula, celula.ReportType)
	assert.Equal(t, models.PeriodicityWeekly, celula.Periodicity)
	assert.Equal(t, "Casa A", celula.Location)
	assert.Equal(t, leader, celula.LeaderPersonID)
	assert.Nil(t, celula.GoogleMapsLink)
	assert.Nil(t, celula.Description)

	var culto models.RecurringMeeting
	require.NoError(t, f.db.First(&culto, *l3).Error)
	assert.Equal(t, models.ReportTypeCulto, culto.ReportType)
	assert.Equal(t, "Templo", culto.Location)

	nullable, err := f.schema.ColumnNullable(ctx, f.db, reportsTable, linkColumn)
	require.NoError(t, err)
	assert.False(t, nullable)
	fk, err := f.schema.ForeignKeyName(ctx, f.db, reportsTable, linkColumn)
	require.NoError(t, err)
	assert.Equal(t, ForeignKeyName, fk)
	assert.Contains(t, f.out.String(), "Migration completed successfully")
}

func TestGroupsDifferingInOneFieldGetDistinctMeetings(t *testing.T) {
	f := setupLegacyDB(t)
	rosa := f.person(t, "Rosa")
	juan := f.person(t, "Juan")
	at := time.Date(2024, 2, 4, 19, 0, 0, 0, time.UTC)

	base := f.report(t, rosa, "celula", "Casa A", strPtr("https://maps.example/a"), at)
	otherLeader := f.report(t, juan, "celula", "Casa A", strPtr("https://maps.example/a"), at)
	otherType := f.report(t, rosa, "culto", "Casa A", strPtr("https://maps.example/a"), at)
	otherLocation := f.report(t, rosa, "celula", "Casa B", strPtr("https://maps.example/a"), at)
	otherLink := f.report(t, rosa, "celula", "Casa A", strPtr("https://maps.example/b"), at)
	nullLink := f.report(t, rosa, "celula", "Casa A", nil, at)
	sameAsBase := f.report(t, rosa, "celula", "Casa A", strPtr("https://maps.example/a"), at.AddDate(0, 0, 7))

	summary, err := f.migrator().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.CreatedMeetings)

	seen := map[int]int{}
	for _, id := range []int{base, otherLeader, otherType, otherLocation, otherLink, nullLink} {
		link := f.linkOf(t, id)
		require.NotNil(t, link)
		seen[*link]++
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, *f.linkOf(t, base), *f.linkOf(t, sameAsBase))
}

func TestNullMapsLinksFormOneGroup(t *testing.T) {
	f := setupLegacyDB(t)
	leader := f.person(t, "Rosa")
	a := f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 3, 3, 19, 0, 0, 0, time.UTC))
	b := f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC))

	_, err := f.migrator().Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, f.linkOf(t, a))
	assert.Equal(t, *f.linkOf(t, a), *f.linkOf(t, b))
	assert.Len(t, f.meetings(t), 1)
}

func TestBackfillLeavesUpdatedAtUntouched(t *testing.T) {
	f := setupLegacyDB(t)
	leader := f.person(t, "Rosa")
	f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))
	f.report(t, leader, "culto", "Templo", nil, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))

	_, err := f.migrator().Run(context.Background())
	require.NoError(t, err)

	var updated []time.Time
	require.NoError(t, f.db.Table(reportsTable).Pluck("updated_at", &updated).Error)
	require.Len(t, updated, 2)
	for _, u := range updated {
		assert.True(t, u.Equal(legacyUpdatedAt), "updated_at changed to %s", u)
	}
}

func TestBackfillRollsBackOnFailure(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	r1 := f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))
	r2 := f.report(t, leader, "culto", "Templo", nil, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))

	m := f.migrator()
	require.NoError(t, m.EnsureSchema(ctx))

	linkFailure := errors.New("link failed")
	updates := 0
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:fail_second_link", func(tx *gorm.DB) {
		if tx.Statement.Table != reportsTable {
			return
		}
		updates++
		if updates == 2 {
			_ = tx.AddError(linkFailure)
		}
	}))

	_, err := m.Backfill(ctx)
	require.ErrorIs(t, err, linkFailure)

	assert.Empty(t, f.meetings(t))
	assert.Nil(t, f.linkOf(t, r1))
	assert.Nil(t, f.linkOf(t, r2))

	err = m.TightenConstraint(ctx)
	assert.ErrorIs(t, err, ErrUnlinkedReports)
	nullable, err := f.schema.ColumnNullable(ctx, f.db, reportsTable, linkColumn)
	require.NoError(t, err)
	assert.True(t, nullable)
}

func TestBackfillRejectsGroupLinkingNoReports(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	r := f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))

	m := f.migrator()
	require.NoError(t, m.EnsureSchema(ctx))

	require.NoError(t, f.db.Callback().Update().After("gorm:update").Register("test:no_rows_linked", func(tx *gorm.DB) {
		if tx.Statement.Table == reportsTable {
			tx.RowsAffected = 0
		}
	}))

	_, err := m.Backfill(ctx)
	require.ErrorIs(t, err, ErrEmptyGroup)

	assert.Empty(t, f.meetings(t))
	assert.Nil(t, f.linkOf(t, r))
}

func TestReportsCanBeCreatedAfterRun(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	legacy := f.report(t, leader, "culto", "Templo", nil, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))

	_, err := f.migrator().Run(ctx)
	require.NoError(t, err)
	require.NoError(t, f.db.AutoMigrate(&models.ReportParticipant{}, &models.ReportAttachment{}))

	prev := config.GetDB()
	config.SetDB(f.db)
	t.Cleanup(func() { config.SetDB(prev) })

	meetings := f.meetings(t)
	require.Len(t, meetings, 1)
	meetingAt := time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
	report, err := models.CreateReport(ctx, &models.NewReport{
		RegistrationDate:   meetingAt.Add(time.Hour),
		MeetingDatetime:    meetingAt,
		RecurringMeetingID: meetings[0].ID,
		LeaderPersonID:     leader,
		LeaderPhone:        "+59171234567",
		Location:           "Templo",
		CollectionAmount:   decimal.RequireFromString("25.50"),
		Currency:           models.CurrencyBOB,
		AttendeesCount:     12,
	}, "BO")
	require.NoError(t, err)
	assert.Equal(t, meetings[0].ID, report.RecurringMeetingID)

	var types []sql.NullString
	require.NoError(t, f.db.Table(reportsTable).Order("id").Pluck(legacyTypeColumn, &types).Error)
	require.Len(t, types, 2)
	assert.Equal(t, sql.NullString{String: "culto", Valid: true}, types[0])
	assert.False(t, types[1].Valid)
	require.NotNil(t, f.linkOf(t, legacy))

	// rerunning leaves the relaxed column alone
	_, err = f.migrator().Run(ctx)
	require.NoError(t, err)
}

func TestRunIsIdempotent(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))

	first, err := f.migrator().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.CreatedMeetings)

	second, err := f.migrator().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreatedMeetings)
	assert.Equal(t, int64(1), second.RecurringMeetings)
	assert.Len(t, f.meetings(t), 1)
}

func TestRunLinksReportsAddedAfterPartialMigration(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	first := f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))

	m := f.migrator()
	require.NoError(t, m.EnsureSchema(ctx))
	_, err := m.Backfill(ctx)
	require.NoError(t, err)

	// written by an old client before the column was tightened
	late := f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 14, 19, 0, 0, 0, time.UTC))

	summary, err := f.migrator().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.LinkedReports)
	require.NotNil(t, f.linkOf(t, late))
	// a group is keyed on unlinked reports only, so the late report gets its own meeting
	assert.NotEqual(t, *f.linkOf(t, first), *f.linkOf(t, late))
}

func TestTightenConstraintRestoresMissingForeignKey(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))

	_, err := f.migrator().Run(ctx)
	require.NoError(t, err)
	delete(f.schema.fks, reportsTable+"."+linkColumn)

	require.NoError(t, f.migrator().TightenConstraint(ctx))
	fk, err := f.schema.ForeignKeyName(ctx, f.db, reportsTable, linkColumn)
	require.NoError(t, err)
	assert.Equal(t, ForeignKeyName, fk)
}

func TestDryRunBeforeSchemaChangesOnlyReports(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))
	f.report(t, leader, "celula", "Casa A", nil, time.Date(2023, 12, 31, 19, 0, 0, 0, time.UTC))
	f.report(t, leader, "culto", "Templo", nil, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))

	summary, err := f.migrator(WithDryRun(true)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CreatedMeetings)

	assert.False(t, f.db.Migrator().HasTable(recurringMeetingTable))
	assert.False(t, f.db.Migrator().HasColumn(reportsTable, linkColumn))
	assert.Contains(t, f.out.String(), "would create recurring_meetings table")
	assert.Contains(t, f.out.String(), "would allow NULL in reports.report_type")
	assert.True(t, f.schema.notNull[reportsTable+"."+legacyTypeColumn])
}

func TestDryRunRollsBackBackfill(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	r := f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))
	require.NoError(t, f.migrator().EnsureSchema(ctx))

	summary, err := f.migrator(WithDryRun(true)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedMeetings)
	assert.Equal(t, int64(0), summary.LinkedReports)

	assert.Empty(t, f.meetings(t))
	assert.Nil(t, f.linkOf(t, r))
	nullable, err := f.schema.ColumnNullable(ctx, f.db, reportsTable, linkColumn)
	require.NoError(t, err)
	assert.True(t, nullable)
}

func TestStatus(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))

	_, err := f.migrator().Status(ctx)
	assert.ErrorIs(t, err, ErrMissingTable)

	require.NoError(t, f.schema.CreateRecurringMeetingsTable(ctx, f.db))
	_, err = f.migrator().Status(ctx)
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = f.migrator().Run(ctx)
	require.NoError(t, err)
	status, err := f.migrator().Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Complete())
	assert.True(t, status.LegacyReportType)
	assert.Equal(t, ForeignKeyName, status.ForeignKey)
	assert.Equal(t, int64(1), status.LinkedReports)
}

func TestEnsureSchemaRequiresReports(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m := New(db, nil, config.NewLogger("error"), WithSchemaManager(newSQLiteSchema()), WithOutput(&bytes.Buffer{}))
	_, err = m.Run(context.Background())
	assert.ErrorIs(t, err, ErrMissingTable)
}

func TestDropLegacyReportType(t *testing.T) {
	f := setupLegacyDB(t)
	ctx := context.Background()
	leader := f.person(t, "Rosa")
	f.report(t, leader, "celula", "Casa A", nil, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC))

	require.NoError(t, f.migrator().EnsureSchema(ctx))
	err := f.migrator().DropLegacyReportType(ctx)
	assert.ErrorIs(t, err, ErrUnlinkedReports)
	assert.True(t, f.db.Migrator().HasColumn(reportsTable, legacyTypeColumn))

	_, err = f.migrator().Run(ctx)
	require.NoError(t, err)
	require.NoError(t, f.migrator().DropLegacyReportType(ctx))
	assert.False(t, f.db.Migrator().HasColumn(reportsTable, legacyTypeColumn))

	// already gone
	require.NoError(t, f.migrator().DropLegacyReportType(ctx))
	_, err = f.migrator().Run(ctx)
	require.NoError(t, err)
}

func TestScannedTime(t *testing.T) {
	want := time.Date(2023, 12, 31, 19, 0, 0, 0, time.UTC)
	for _, in := range []interface{}{
		want,
		"2023-12-31 19:00:00+00:00",
		"2023-12-31T19:00:00Z",
		[]byte("2023-12-31 19:00:00"),
	} {
		var st scannedTime
		require.NoError(t, st.Scan(in), "%v", in)
		assert.True(t, st.Time.Equal(want), "%v parsed as %s", in, st.Time)
	}
	var st scannedTime
	assert.Error(t, st.Scan(nil))
	assert.Error(t, st.Scan("yesterday"))
}
