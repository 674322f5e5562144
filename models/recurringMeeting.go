package models

import (
	"context"
	"strings"
	"time"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/utils"
	"gorm.io/gorm"
)

type RecurringMeeting struct {
	ID              int         `gorm:"primary_key" json:"id"`
	MeetingDatetime time.Time   `gorm:"not null" json:"meeting_datetime"`
	LeaderPersonID  int         `gorm:"index;not null" json:"leader_person_id"`
	Leader          *Person     `gorm:"foreignKey:LeaderPersonID;constraint:OnDelete:CASCADE" json:"leader,omitempty"`
	ReportType      ReportType  `gorm:"not null" json:"report_type"`
	Location        string      `gorm:"size:500;not null" json:"location"`
	Description     *string     `gorm:"size:1000" json:"description"`
	GoogleMapsLink  *string     `gorm:"size:1000" json:"google_maps_link"`
	Periodicity     Periodicity `gorm:"not null" json:"periodicity"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRecurringMeeting struct {
	MeetingDatetime time.Time   `json:"meeting_datetime" binding:"required"`
	LeaderPersonID  int         `json:"leader_person_id" binding:"required,gt=0"`
	ReportType      ReportType  `json:"report_type" binding:"required"`
	Location        string      `json:"location" binding:"required,max=500"`
	Description     *string     `json:"description" binding:"omitempty,max=1000"`
	Periodicity     Periodicity `json:"periodicity" binding:"required"`
	GoogleMapsLink  *string     `json:"google_maps_link" binding:"omitempty,max=1000"`
}

type RecurringMeetingUpdate struct {
	MeetingDatetime *time.Time   `json:"meeting_datetime"`
	LeaderPersonID  *int         `json:"leader_person_id" binding:"omitempty,gt=0"`
	ReportType      *ReportType  `json:"report_type"`
	Location        *string      `json:"location" binding:"omitempty,min=1,max=500"`
	Description     *string      `json:"description" binding:"omitempty,max=1000"`
	Periodicity     *Periodicity `json:"periodicity"`
	GoogleMapsLink  *string      `json:"google_maps_link" binding:"omitempty,max=1000"`
}

func (input RecurringMeetingUpdate) Fillable() map[string]interface{} {
	m := make(map[string]interface{})
	if input.MeetingDatetime != nil {
		m["meeting_datetime"] = *input.MeetingDatetime
	}
	if input.LeaderPersonID != nil {
		m["leader_person_id"] = *input.LeaderPersonID
	}
	if input.ReportType != nil {
		m["report_type"] = *input.ReportType
	}
	if input.Location != nil {
		m["location"] = strings.TrimSpace(*input.Location)
	}
	if input.Description != nil {
		m["description"] = utils.TrimmedOrNil(input.Description)
	}
	if input.Periodicity != nil {
		m["periodicity"] = *input.Periodicity
	}
	if input.GoogleMapsLink != nil {
		m["google_maps_link"] = utils.TrimmedOrNil(input.GoogleMapsLink)
	}
	return m
}

func validateLeader(ctx context.Context, db *gorm.DB, leaderPersonId int) error {
	if err := utils.ValidateResourceId[Person](ctx, db, leaderPersonId); err != nil {
		return &ValidationError{Field: "leader_person_id", Err: err}
	}
	return nil
}

func CreateRecurringMeeting(ctx context.Context, input *NewRecurringMeeting) (*RecurringMeeting, error) {
	db := config.GetDB()
	if err := validateLeader(ctx, db, input.LeaderPersonID); err != nil {
		return nil, err
	}

	meeting := RecurringMeeting{
		MeetingDatetime: input.MeetingDatetime,
		LeaderPersonID:  input.LeaderPersonID,
		ReportType:      input.ReportType,
		Location:        strings.TrimSpace(input.Location),
		Description:     utils.TrimmedOrNil(input.Description),
		GoogleMapsLink:  utils.TrimmedOrNil(input.GoogleMapsLink),
		Periodicity:     input.Periodicity,
	}
	if err := db.WithContext(ctx).Create(&meeting).Error; err != nil {
		return nil, utils.NormalizeDBError(err)
	}
	return GetRecurringMeeting(ctx, meeting.ID)
}

// GetRecurringMeeting preloads the leader.
func GetRecurringMeeting(ctx context.Context, id int) (*RecurringMeeting, error) {
	return utils.FetchSingleModel[RecurringMeeting](ctx, config.GetDB(), id, "Leader")
}

func GetRecurringMeetings(ctx context.Context, page Page) ([]RecurringMeeting, error) {
	page = page.Normalize()
	return utils.FetchPage[RecurringMeeting](ctx, config.GetDB(), page.Skip, page.Limit, "Leader")
}

func GetRecurringMeetingsByLeader(ctx context.Context, leaderPersonId int) ([]RecurringMeeting, error) {
	db := config.GetDB()
	var results []RecurringMeeting
	err := db.WithContext(ctx).
		Preload("Leader").
		Where("leader_person_id = ?", leaderPersonId).
		Order("meeting_datetime").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateRecurringMeeting(ctx context.Context, id int, input *RecurringMeetingUpdate) (*RecurringMeeting, error) {
	db := config.GetDB()
	var meeting RecurringMeeting
	if err := db.WithContext(ctx).First(&meeting, id).Error; err != nil {
		return nil, utils.NormalizeDBError(err)
	}
	if input.LeaderPersonID != nil {
		if err := validateLeader(ctx, db, *input.LeaderPersonID); err != nil {
			return nil, err
		}
	}
	fillable := input.Fillable()
	if len(fillable) > 0 {
		if err := db.WithContext(ctx).Model(&meeting).Updates(fillable).Error; err != nil {
			return nil, utils.NormalizeDBError(err)
		}
	}
	return GetRecurringMeeting(ctx, id)
}

// DeleteRecurringMeeting removes the meeting and every report linked to it.
func DeleteRecurringMeeting(ctx context.Context, id int) (*RecurringMeeting, []ReportAttachment, error) {
	db := config.GetDB()
	var result RecurringMeeting
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, nil, utils.NormalizeDBError(err)
	}

	var removed []ReportAttachment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reportIds []int
		if err := tx.Model(&Report{}).Where("recurring_meeting_id = ?", id).Pluck("id", &reportIds).Error; err != nil {
			return err
		}
		var err error
		removed, err = deleteReportsCascade(tx, reportIds)
		if err != nil {
			return err
		}
		return tx.Delete(&result).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &result, removed, nil
}

// GetRecurringMeetingReports returns ErrorRecordNotFound when the meeting does not exist.
func GetRecurringMeetingReports(ctx context.Context, id int) ([]Report, error) {
	db := config.GetDB()
	if err := utils.ValidateResourceId[RecurringMeeting](ctx, db, id); err != nil {
		return nil, err
	}
	var results []Report
	err := db.WithContext(ctx).
		Preload("Participants").
		Preload("Attachments").
		Where("recurring_meeting_id = ?", id).
		Order("meeting_datetime DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
