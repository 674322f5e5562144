package models

import (
	"context"
	"strings"
	"time"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Report struct {
	ID                 int                 `gorm:"primary_key" json:"id"`
	RegistrationDate   time.Time           `gorm:"not null" json:"registration_date"`
	MeetingDatetime    time.Time           `gorm:"not null" json:"meeting_datetime"`
	RecurringMeetingID int                 `gorm:"index;not null" json:"recurring_meeting_id"`
	RecurringMeeting   *RecurringMeeting   `gorm:"foreignKey:RecurringMeetingID;constraint:OnDelete:CASCADE" json:"recurring_meeting,omitempty"`
	LeaderPersonID     int                 `gorm:"index;not null" json:"leader_person_id"`
	Leader             *Person             `gorm:"foreignKey:LeaderPersonID;constraint:OnDelete:CASCADE" json:"-"`
	LeaderPhone        string              `gorm:"size:20;not null" json:"leader_phone"`
	Collaborator       *string             `gorm:"size:200" json:"collaborator"`
	Location           string              `gorm:"size:500;not null" json:"location"`
	CollectionAmount   decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"collection_amount"`
	Currency           Currency            `gorm:"not null" json:"currency"`
	AttendeesCount     int                 `gorm:"not null" json:"attendees_count"`
	GoogleMapsLink     *string             `gorm:"size:1000" json:"google_maps_link"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
	Participants       []ReportParticipant `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE" json:"participants"`
	Attachments        []ReportAttachment  `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE" json:"attachments"`
}

type ReportParticipant struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ReportID        int             `gorm:"index;not null" json:"-"`
	ParticipantName string          `gorm:"size:200;not null" json:"participant_name"`
	ParticipantType ParticipantType `gorm:"not null" json:"participant_type"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewParticipant struct {
	ParticipantName string          `json:"participant_name" binding:"required,max=200"`
	ParticipantType ParticipantType `json:"participant_type" binding:"required"`
}

type NewReport struct {
	RegistrationDate   time.Time         `json:"registration_date" binding:"required"`
	MeetingDatetime    time.Time         `json:"meeting_datetime" binding:"required"`
	RecurringMeetingID int               `json:"recurring_meeting_id" binding:"required,gt=0"`
	LeaderPersonID     int               `json:"leader_person_id" binding:"required,gt=0"`
	LeaderPhone        string            `json:"leader_phone" binding:"required,max=20"`
	Collaborator       *string           `json:"collaborator" binding:"omitempty,max=200"`
	Location           string            `json:"location" binding:"required,max=500"`
	CollectionAmount   decimal.Decimal   `json:"collection_amount"`
	Currency           Currency          `json:"currency" binding:"required"`
	AttendeesCount     int               `json:"attendees_count" binding:"gte=0"`
	GoogleMapsLink     *string           `json:"google_maps_link" binding:"omitempty,max=1000"`
	Participants       []*NewParticipant `json:"participants" binding:"omitempty,dive"`
}

// ReportUpdate is a partial update. Participants, when present, replaces the whole set.
type ReportUpdate struct {
	RegistrationDate   *time.Time        `json:"registration_date"`
	MeetingDatetime    *time.Time        `json:"meeting_datetime"`
	RecurringMeetingID *int              `json:"recurring_meeting_id" binding:"omitempty,gt=0"`
	LeaderPersonID     *int              `json:"leader_person_id" binding:"omitempty,gt=0"`
	LeaderPhone        *string           `json:"leader_phone" binding:"omitempty,max=20"`
	Collaborator       *string           `json:"collaborator" binding:"omitempty,max=200"`
	Location           *string           `json:"location" binding:"omitempty,min=1,max=500"`
	CollectionAmount   *decimal.Decimal  `json:"collection_amount"`
	Currency           *Currency         `json:"currency"`
	AttendeesCount     *int              `json:"attendees_count" binding:"omitempty,gte=0"`
	GoogleMapsLink     *string           `json:"google_maps_link" binding:"omitempty,max=1000"`
	Participants       []*NewParticipant `json:"participants" binding:"omitempty,dive"`
}

// ReportFilter narrows GetReports. Zero values are ignored.
type ReportFilter struct {
	RecurringMeetingID int        `form:"recurring_meeting_id"`
	LeaderPersonID     int        `form:"leader_person_id"`
	From               *time.Time `form:"from" time_format:"2006-01-02"`
	To                 *time.Time `form:"to" time_format:"2006-01-02"`
}

func (input ReportUpdate) Fillable() map[string]interface{} {
	m := make(map[string]interface{})
	if input.RegistrationDate != nil {
		m["registration_date"] = *input.RegistrationDate
	}
	if input.MeetingDatetime != nil {
		m["meeting_datetime"] = *input.MeetingDatetime
	}
	if input.RecurringMeetingID != nil {
		m["recurring_meeting_id"] = *input.RecurringMeetingID
	}
	if input.LeaderPersonID != nil {
		m["leader_person_id"] = *input.LeaderPersonID
	}
	if input.LeaderPhone != nil {
		m["leader_phone"] = strings.TrimSpace(*input.LeaderPhone)
	}
	if input.Collaborator != nil {
		m["collaborator"] = utils.TrimmedOrNil(input.Collaborator)
	}
	if input.Location != nil {
		m["location"] = strings.TrimSpace(*input.Location)
	}
	if input.CollectionAmount != nil {
		m["collection_amount"] = input.CollectionAmount.Round(2)
	}
	if input.Currency != nil {
		m["currency"] = *input.Currency
	}
	if input.AttendeesCount != nil {
		m["attendees_count"] = *input.AttendeesCount
	}
	if input.GoogleMapsLink != nil {
		m["google_maps_link"] = utils.TrimmedOrNil(input.GoogleMapsLink)
	}
	return m
}

func mapNewParticipants(input []*NewParticipant, reportId int) []ReportParticipant {
	participants := make([]ReportParticipant, 0, len(input))
	for _, p := range input {
		if p == nil {
			continue
		}
		participants = append(participants, ReportParticipant{
			ReportID:        reportId,
			ParticipantName: strings.TrimSpace(p.ParticipantName),
			ParticipantType: p.ParticipantType,
		})
	}
	return participants
}

func validateCollectionAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &ValidationError{Field: "collection_amount", Err: errNegative}
	}
	// decimal(10,2)
	if amount.Round(2).Abs().GreaterThanOrEqual(decimal.New(1, 8)) {
		return &ValidationError{Field: "collection_amount", Err: errOutOfRange}
	}
	return nil
}

func (input *NewReport) validate(ctx context.Context, db *gorm.DB, phoneRegion string) error {
	if err := utils.ValidateResourceId[RecurringMeeting](ctx, db, input.RecurringMeetingID); err != nil {
		return &ValidationError{Field: "recurring_meeting_id", Err: err}
	}
	if err := validateLeader(ctx, db, input.LeaderPersonID); err != nil {
		return err
	}
	if err := utils.ValidatePhoneNumber(input.LeaderPhone, phoneRegion); err != nil {
		return &ValidationError{Field: "leader_phone", Err: err}
	}
	return validateCollectionAmount(input.CollectionAmount)
}

func (input *ReportUpdate) validate(ctx context.Context, db *gorm.DB, phoneRegion string) error {
	if input.RecurringMeetingID != nil {
		if err := utils.ValidateResourceId[RecurringMeeting](ctx, db, *input.RecurringMeetingID); err != nil {
			return &ValidationError{Field: "recurring_meeting_id", Err: err}
		}
	}
	if input.LeaderPersonID != nil {
		if err := validateLeader(ctx, db, *input.LeaderPersonID); err != nil {
			return err
		}
	}
	if input.LeaderPhone != nil {
		if err := utils.ValidatePhoneNumber(*input.LeaderPhone, phoneRegion); err != nil {
			return &ValidationError{Field: "leader_phone", Err: err}
		}
	}
	if input.CollectionAmount != nil {
		return validateCollectionAmount(*input.CollectionAmount)
	}
	return nil
}

// CreateReport stores the report and its participants in one transaction.
func CreateReport(ctx context.Context, input *NewReport, phoneRegion string) (*Report, error) {
	db := config.GetDB()
	if err := input.validate(ctx, db, phoneRegion); err != nil {
		return nil, err
	}

	report := Report{
		RegistrationDate:   input.RegistrationDate,
		MeetingDatetime:    input.MeetingDatetime,
		RecurringMeetingID: input.RecurringMeetingID,
		LeaderPersonID:     input.LeaderPersonID,
		LeaderPhone:        strings.TrimSpace(input.LeaderPhone),
		Collaborator:       utils.TrimmedOrNil(input.Collaborator),
		Location:           strings.TrimSpace(input.Location),
		CollectionAmount:   input.CollectionAmount.Round(2),
		Currency:           input.Currency,
		AttendeesCount:     input.AttendeesCount,
		GoogleMapsLink:     utils.TrimmedOrNil(input.GoogleMapsLink),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants", "Attachments").Create(&report).Error; err != nil {
			return err
		}
		participants := mapNewParticipants(input.Participants, report.ID)
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, utils.NormalizeDBError(err)
	}
	return GetReport(ctx, report.ID)
}

// GetReport preloads participants, attachments and the recurring meeting with its leader.
func GetReport(ctx context.Context, id int) (*Report, error) {
	return utils.FetchSingleModel[Report](ctx, config.GetDB(), id,
		"Participants", "Attachments", "RecurringMeeting", "RecurringMeeting.Leader")
}

func filterReports(dbCtx *gorm.DB, filter ReportFilter) *gorm.DB {
	if filter.RecurringMeetingID > 0 {
		dbCtx = dbCtx.Where("recurring_meeting_id = ?", filter.RecurringMeetingID)
	}
	if filter.LeaderPersonID > 0 {
		dbCtx = dbCtx.Where("leader_person_id = ?", filter.LeaderPersonID)
	}
	if filter.From != nil {
		dbCtx = dbCtx.Where("meeting_datetime >= ?", *filter.From)
	}
	if filter.To != nil {
		// inclusive of the whole "to" day
		dbCtx = dbCtx.Where("meeting_datetime < ?", filter.To.AddDate(0, 0, 1))
	}
	return dbCtx
}

func GetReports(ctx context.Context, filter ReportFilter, page Page) ([]Report, error) {
	page = page.Normalize()
	db := config.GetDB()
	dbCtx := filterReports(db.WithContext(ctx), filter).
		Preload("Participants").
		Preload("Attachments")

	var results []Report
	err := dbCtx.Order("id").Offset(page.Skip).Limit(page.Limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateReport(ctx context.Context, id int, input *ReportUpdate, phoneRegion string) (*Report, error) {
	db := config.GetDB()
	var report Report
	if err := db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, utils.NormalizeDBError(err)
	}
	if err := input.validate(ctx, db, phoneRegion); err != nil {
		return nil, err
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fillable := input.Fillable()
		if len(fillable) > 0 {
			if err := tx.Model(&report).Updates(fillable).Error; err != nil {
				return err
			}
		}
		if input.Participants != nil {
			if err := tx.Where("report_id = ?", id).Delete(&ReportParticipant{}).Error; err != nil {
				return err
			}
			participants := mapNewParticipants(input.Participants, id)
			if len(participants) > 0 {
				if err := tx.Create(&participants).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, utils.NormalizeDBError(err)
	}
	return GetReport(ctx, id)
}

// DeleteReport removes the report, its participants and attachment rows.
func DeleteReport(ctx context.Context, id int) (*Report, []ReportAttachment, error) {
	db := config.GetDB()
	var result Report
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, nil, utils.NormalizeDBError(err)
	}

	var removed []ReportAttachment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		removed, err = deleteReportsCascade(tx, []int{id})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &result, removed, nil
}

// deleteReportsCascade deletes reports and their children inside tx and
// returns the attachment rows that were removed.
func deleteReportsCascade(tx *gorm.DB, reportIds []int) ([]ReportAttachment, error) {
	if len(reportIds) == 0 {
		return nil, nil
	}
	var attachments []ReportAttachment
	if err := tx.Where("report_id IN ?", reportIds).Find(&attachments).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("report_id IN ?", reportIds).Delete(&ReportAttachment{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("report_id IN ?", reportIds).Delete(&ReportParticipant{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("id IN ?", reportIds).Delete(&Report{}).Error; err != nil {
		return nil, err
	}
	return attachments, nil
}
