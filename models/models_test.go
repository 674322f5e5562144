package models

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testPhone = "+59171234567"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, MigrateTable(db))

	prev := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(prev)
		_ = sqlDB.Close()
	})
	return db
}

func strPtr(s string) *string { return &s }

func createTestPerson(t *testing.T, firstName string) *Person {
	t.Helper()
	p, err := CreatePerson(context.Background(), &NewPerson{
		FirstName:   firstName,
		LastName:    "Quispe",
		BirthDate:   NewDate(1990, time.March, 14),
		Phone:       testPhone,
		HomeAddress: "Av. Busch 123",
	}, "BO")
	require.NoError(t, err)
	return p
}

func createTestMeeting(t *testing.T, leaderId int) *RecurringMeeting {
	t.Helper()
	m, err := CreateRecurringMeeting(context.Background(), &NewRecurringMeeting{
		MeetingDatetime: time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC),
		LeaderPersonID:  leaderId,
		ReportType:      ReportTypeCelula,
		Location:        "Casa Quispe",
		Periodicity:     PeriodicityWeekly,
	})
	require.NoError(t, err)
	return m
}

func newTestReport(meetingId, leaderId int, meetingAt time.Time) *NewReport {
	return &NewReport{
		RegistrationDate:   meetingAt.Add(time.Hour),
		MeetingDatetime:    meetingAt,
		RecurringMeetingID: meetingId,
		LeaderPersonID:     leaderId,
		LeaderPhone:        testPhone,
		Location:           "Casa Quispe",
		CollectionAmount:   decimal.RequireFromString("25.50"),
		Currency:           CurrencyBOB,
		AttendeesCount:     3,
		Participants: []*NewParticipant{
			{ParticipantName: "Ana", ParticipantType: ParticipantTypeMember},
			{ParticipantName: "Luis", ParticipantType: ParticipantTypeVisitor},
		},
	}
}

func TestPersonCRUD(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	created := createTestPerson(t, "Maria")
	assert.NotZero(t, created.ID)

	got, err := GetPerson(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria", got.FirstName)
	assert.Equal(t, "1990-03-14", got.BirthDate.String())
	assert.Nil(t, got.GoogleMapsLink)

	updated, err := UpdatePerson(ctx, created.ID, &PersonUpdate{
		HomeAddress:    strPtr("Calle Sucre 45"),
		GoogleMapsLink: strPtr("https://maps.example/1"),
	}, "BO")
	require.NoError(t, err)
	assert.Equal(t, "Maria", updated.FirstName, "untouched fields keep their value")
	assert.Equal(t, "Calle Sucre 45", updated.HomeAddress)
	require.NotNil(t, updated.GoogleMapsLink)
	assert.Equal(t, "https://maps.example/1", *updated.GoogleMapsLink)

	createTestPerson(t, "Jose")
	createTestPerson(t, "Rosa")
	page, err := GetPersons(ctx, Page{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Jose", page[0].FirstName)

	_, err = GetPerson(ctx, 9999)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestCreatePersonRejectsInvalidPhone(t *testing.T) {
	setupTestDB(t)
	_, err := CreatePerson(context.Background(), &NewPerson{
		FirstName:   "Maria",
		LastName:    "Quispe",
		BirthDate:   NewDate(1990, time.March, 14),
		Phone:       "12",
		HomeAddress: "Av. Busch 123",
	}, "BO")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "phone", verr.Field)
}

func TestRecurringMeetingRequiresExistingLeader(t *testing.T) {
	setupTestDB(t)
	_, err := CreateRecurringMeeting(context.Background(), &NewRecurringMeeting{
		MeetingDatetime: time.Now().UTC(),
		LeaderPersonID:  42,
		ReportType:      ReportTypeCulto,
		Location:        "Templo",
		Periodicity:     PeriodicityWeekly,
	})
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestRecurringMeetingUpdateAndListByLeader(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	leader := createTestPerson(t, "Maria")
	other := createTestPerson(t, "Jose")
	m := createTestMeeting(t, leader.ID)
	require.NotNil(t, m.Leader)
	assert.Equal(t, leader.ID, m.Leader.ID)

	monthly := PeriodicityMonthly
	updated, err := UpdateRecurringMeeting(ctx, m.ID, &RecurringMeetingUpdate{
		LeaderPersonID: &other.ID,
		Periodicity:    &monthly,
	})
	require.NoError(t, err)
	assert.Equal(t, PeriodicityMonthly, updated.Periodicity)
	assert.Equal(t, "Casa Quispe", updated.Location)

	byOld, err := GetRecurringMeetingsByLeader(ctx, leader.ID)
	require.NoError(t, err)
	assert.Empty(t, byOld)
	byNew, err := GetRecurringMeetingsByLeader(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, byNew, 1)

	missing := 999
	_, err = UpdateRecurringMeeting(ctx, m.ID, &RecurringMeetingUpdate{LeaderPersonID: &missing})
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestCreateReportWithParticipants(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	leader := createTestPerson(t, "Maria")
	m := createTestMeeting(t, leader.ID)

	r, err := CreateReport(ctx, newTestReport(m.ID, leader.ID, time.Date(2024, 1, 14, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)
	assert.Len(t, r.Participants, 2)
	require.NotNil(t, r.RecurringMeeting)
	require.NotNil(t, r.RecurringMeeting.Leader)
	assert.Equal(t, "Maria", r.RecurringMeeting.Leader.FirstName)
	assert.True(t, decimal.RequireFromString("25.5").Equal(r.CollectionAmount))

	listed, err := GetRecurringMeetingReports(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestCreateReportRequiresExistingMeeting(t *testing.T) {
	setupTestDB(t)
	leader := createTestPerson(t, "Maria")
	_, err := CreateReport(context.Background(), newTestReport(77, leader.ID, time.Now().UTC()), "BO")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "recurring_meeting_id", verr.Field)
}

func TestCreateReportRejectsNegativeCollection(t *testing.T) {
	setupTestDB(t)
	leader := createTestPerson(t, "Maria")
	m := createTestMeeting(t, leader.ID)
	input := newTestReport(m.ID, leader.ID, time.Now().UTC())
	input.CollectionAmount = decimal.NewFromInt(-1)
	_, err := CreateReport(context.Background(), input, "BO")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "collection_amount", verr.Field)
}

func TestUpdateReportReplacesParticipants(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	leader := createTestPerson(t, "Maria")
	m := createTestMeeting(t, leader.ID)
	r, err := CreateReport(ctx, newTestReport(m.ID, leader.ID, time.Date(2024, 1, 14, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)

	attendees := 10
	updated, err := UpdateReport(ctx, r.ID, &ReportUpdate{AttendeesCount: &attendees}, "BO")
	require.NoError(t, err)
	assert.Equal(t, 10, updated.AttendeesCount)
	assert.Len(t, updated.Participants, 2, "participants untouched when absent")

	updated, err = UpdateReport(ctx, r.ID, &ReportUpdate{
		Participants: []*NewParticipant{{ParticipantName: "Pedro", ParticipantType: ParticipantTypeParticipant}},
	}, "BO")
	require.NoError(t, err)
	require.Len(t, updated.Participants, 1)
	assert.Equal(t, "Pedro", updated.Participants[0].ParticipantName)

	updated, err = UpdateReport(ctx, r.ID, &ReportUpdate{Participants: []*NewParticipant{}}, "BO")
	require.NoError(t, err)
	assert.Empty(t, updated.Participants)
}

func TestGetReportsFilters(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	maria := createTestPerson(t, "Maria")
	jose := createTestPerson(t, "Jose")
	m1 := createTestMeeting(t, maria.ID)
	m2 := createTestMeeting(t, jose.ID)

	for _, day := range []int{7, 14, 21} {
		_, err := CreateReport(ctx, newTestReport(m1.ID, maria.ID, time.Date(2024, 1, day, 19, 0, 0, 0, time.UTC)), "BO")
		require.NoError(t, err)
	}
	_, err := CreateReport(ctx, newTestReport(m2.ID, jose.ID, time.Date(2024, 1, 14, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)

	all, err := GetReports(ctx, ReportFilter{}, Page{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byMeeting, err := GetReports(ctx, ReportFilter{RecurringMeetingID: m1.ID}, Page{})
	require.NoError(t, err)
	assert.Len(t, byMeeting, 3)

	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	ranged, err := GetReports(ctx, ReportFilter{LeaderPersonID: maria.ID, From: &from, To: &to}, Page{})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, 14, ranged[0].MeetingDatetime.Day())
}

func TestDeletePersonCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	maria := createTestPerson(t, "Maria")
	jose := createTestPerson(t, "Jose")
	mariaMeeting := createTestMeeting(t, maria.ID)
	joseMeeting := createTestMeeting(t, jose.ID)

	inMariaMeeting, err := CreateReport(ctx, newTestReport(mariaMeeting.ID, jose.ID, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)
	ledByMaria, err := CreateReport(ctx, newTestReport(joseMeeting.ID, maria.ID, time.Date(2024, 1, 8, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)
	survivor, err := CreateReport(ctx, newTestReport(joseMeeting.ID, jose.ID, time.Date(2024, 1, 9, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)

	require.NoError(t, CreateAttachment(ctx, &ReportAttachment{
		ReportID: inMariaMeeting.ID, FileName: "foto.jpg", FileKey: "reports/1/a.jpg", FileSize: 10, ContentType: "image/jpeg",
	}))

	_, removed, err := DeletePerson(ctx, maria.ID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "reports/1/a.jpg", removed[0].FileKey)

	for _, id := range []int{inMariaMeeting.ID, ledByMaria.ID} {
		_, err := GetReport(ctx, id)
		assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
	}
	_, err = GetRecurringMeeting(ctx, mariaMeeting.ID)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	kept, err := GetReport(ctx, survivor.ID)
	require.NoError(t, err)
	assert.Len(t, kept.Participants, 2)

	var participants int64
	require.NoError(t, db.Model(&ReportParticipant{}).Count(&participants).Error)
	assert.Equal(t, int64(2), participants, "only the survivor's participants remain")
}

func TestDeleteRecurringMeetingCascades(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	maria := createTestPerson(t, "Maria")
	m := createTestMeeting(t, maria.ID)
	r, err := CreateReport(ctx, newTestReport(m.ID, maria.ID, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)

	_, _, err = DeleteRecurringMeeting(ctx, m.ID)
	require.NoError(t, err)
	_, err = GetReport(ctx, r.ID)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	_, err = GetPerson(ctx, maria.ID)
	assert.NoError(t, err, "leader survives")
}

func TestAttachmentScopedToReport(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	maria := createTestPerson(t, "Maria")
	m := createTestMeeting(t, maria.ID)
	r1, err := CreateReport(ctx, newTestReport(m.ID, maria.ID, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)
	r2, err := CreateReport(ctx, newTestReport(m.ID, maria.ID, time.Date(2024, 1, 14, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)

	a := &ReportAttachment{ReportID: r1.ID, FileName: "acta.pdf", FileKey: "reports/1/x.pdf", FileSize: 5, ContentType: "application/pdf"}
	require.NoError(t, CreateAttachment(ctx, a))

	_, err = GetAttachment(ctx, r2.ID, a.ID)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	deleted, err := DeleteAttachment(ctx, r1.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "reports/1/x.pdf", deleted.FileKey)

	list, err := GetAttachments(ctx, r1.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExportReports(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	maria := createTestPerson(t, "Maria")
	m := createTestMeeting(t, maria.ID)
	_, err := CreateReport(ctx, newTestReport(m.ID, maria.ID, time.Date(2024, 1, 7, 19, 0, 0, 0, time.UTC)), "BO")
	require.NoError(t, err)

	f, err := ExportReports(ctx, ReportFilter{})
	require.NoError(t, err)
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "celula", rows[1][4])
	assert.Equal(t, "Maria Quispe", rows[1][5])
	assert.Equal(t, "1", rows[1][12], "members")
	assert.Equal(t, "1", rows[1][13], "visitors")
	assert.Contains(t, rows[1][15], "(M)")
	assert.Contains(t, rows[1][15], "(V)")
}

func TestEnumParsing(t *testing.T) {
	rt, err := ParseReportType("CELULA")
	require.NoError(t, err)
	assert.Equal(t, ReportTypeCelula, rt)

	pt, err := ParseParticipantType("v")
	require.NoError(t, err)
	assert.Equal(t, ParticipantTypeVisitor, pt)
	assert.Equal(t, "V", pt.Code())

	_, err = ParseCurrency("EUR")
	assert.Error(t, err)

	var input NewRecurringMeeting
	err = json.Unmarshal([]byte(`{"report_type":"Culto","periodicity":"weekly"}`), &input)
	require.NoError(t, err)
	assert.Equal(t, ReportTypeCulto, input.ReportType)
	assert.Equal(t, PeriodicityWeekly, input.Periodicity)

	err = json.Unmarshal([]byte(`{"periodicity":"YEARLY"}`), &input)
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	var p NewPerson
	require.NoError(t, json.Unmarshal([]byte(`{"birth_date":"2001-12-31"}`), &p))
	assert.Equal(t, 2001, p.BirthDate.Year())

	out, err := json.Marshal(p.BirthDate)
	require.NoError(t, err)
	assert.Equal(t, `"2001-12-31"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"birth_date":"31/12/2001"}`), &p))
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Skip: 0, Limit: DefaultPageLimit}, Page{Skip: -3}.Normalize())
	assert.Equal(t, MaxPageLimit, Page{Limit: 5000}.Normalize().Limit)
}
