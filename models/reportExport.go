package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Reports"

var exportHeaders = []string{
	"ID", "Registration Date", "Meeting Date", "Recurring Meeting", "Type", "Leader", "Leader Phone",
	"Collaborator", "Location", "Collection", "Currency", "Attendees", "Members", "Visitors", "Participants", "Participant Names",
}

// ExportReports renders every report matching filter into a single-sheet workbook.
func ExportReports(ctx context.Context, filter ReportFilter) (*excelize.File, error) {
	db := config.GetDB()
	var reports []Report
	err := filterReports(db.WithContext(ctx), filter).
		Preload("Participants").
		Preload("RecurringMeeting").
		Preload("Leader").
		Order("meeting_datetime").
		Find(&reports).Error
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, err
		}
	}

	for i, r := range reports {
		row := i + 2
		values := exportRow(r)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func exportRow(r Report) []interface{} {
	var members, visitors, others int
	names := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		names = append(names, fmt.Sprintf("%s (%s)", p.ParticipantName, p.ParticipantType.Code()))
		switch p.ParticipantType {
		case ParticipantTypeMember:
			members++
		case ParticipantTypeVisitor:
			visitors++
		default:
			others++
		}
	}

	reportType := ""
	if r.RecurringMeeting != nil {
		reportType = string(r.RecurringMeeting.ReportType)
	}
	leader := ""
	if r.Leader != nil {
		leader = fmt.Sprintf("%s %s", r.Leader.FirstName, r.Leader.LastName)
	}
	collaborator := ""
	if r.Collaborator != nil {
		collaborator = *r.Collaborator
	}
	amount, _ := r.CollectionAmount.Float64()

	return []interface{}{
		r.ID,
		r.RegistrationDate.Format("2006-01-02"),
		r.MeetingDatetime.Format("2006-01-02 15:04"),
		r.RecurringMeetingID,
		reportType,
		leader,
		r.LeaderPhone,
		collaborator,
		r.Location,
		amount,
		string(r.Currency),
		r.AttendeesCount,
		members,
		visitors,
		others,
		strings.Join(names, ", "),
	}
}
