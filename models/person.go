package models

import (
	"context"
	"strings"
	"time"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/utils"
	"gorm.io/gorm"
)

type Person struct {
	ID             int       `gorm:"primary_key" json:"id"`
	FirstName      string    `gorm:"size:100;not null" json:"first_name"`
	LastName       string    `gorm:"size:100;not null" json:"last_name"`
	BirthDate      Date      `gorm:"type:date;not null" json:"birth_date"`
	Phone          string    `gorm:"size:20;not null" json:"phone"`
	HomeAddress    string    `gorm:"size:500;not null" json:"home_address"`
	GoogleMapsLink *string   `gorm:"size:1000" json:"google_maps_link"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPerson struct {
	FirstName      string  `json:"first_name" binding:"required,max=100"`
	LastName       string  `json:"last_name" binding:"required,max=100"`
	BirthDate      Date    `json:"birth_date"`
	Phone          string  `json:"phone" binding:"required,max=20"`
	HomeAddress    string  `json:"home_address" binding:"required,max=500"`
	GoogleMapsLink *string `json:"google_maps_link" binding:"omitempty,max=1000"`
}

// PersonUpdate is a partial update; nil fields are left untouched.
type PersonUpdate struct {
	FirstName      *string `json:"first_name" binding:"omitempty,min=1,max=100"`
	LastName       *string `json:"last_name" binding:"omitempty,min=1,max=100"`
	BirthDate      *Date   `json:"birth_date"`
	Phone          *string `json:"phone" binding:"omitempty,max=20"`
	HomeAddress    *string `json:"home_address" binding:"omitempty,min=1,max=500"`
	GoogleMapsLink *string `json:"google_maps_link" binding:"omitempty,max=1000"`
}

// map for updating
// db.Model(m).Updates(...)
func (input PersonUpdate) Fillable() map[string]interface{} {
	m := make(map[string]interface{})
	if input.FirstName != nil {
		m["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		m["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.BirthDate != nil {
		m["birth_date"] = *input.BirthDate
	}
	if input.Phone != nil {
		m["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.HomeAddress != nil {
		m["home_address"] = strings.TrimSpace(*input.HomeAddress)
	}
	if input.GoogleMapsLink != nil {
		m["google_maps_link"] = utils.TrimmedOrNil(input.GoogleMapsLink)
	}
	return m
}

func (input *NewPerson) validate(phoneRegion string) error {
	if input.BirthDate.IsZero() {
		return &ValidationError{Field: "birth_date", Err: errRequired}
	}
	if err := utils.ValidatePhoneNumber(input.Phone, phoneRegion); err != nil {
		return &ValidationError{Field: "phone", Err: err}
	}
	return nil
}

func (input *PersonUpdate) validate(phoneRegion string) error {
	if input.Phone != nil {
		if err := utils.ValidatePhoneNumber(*input.Phone, phoneRegion); err != nil {
			return &ValidationError{Field: "phone", Err: err}
		}
	}
	return nil
}

func CreatePerson(ctx context.Context, input *NewPerson, phoneRegion string) (*Person, error) {
	if err := input.validate(phoneRegion); err != nil {
		return nil, err
	}

	person := Person{
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		BirthDate:      input.BirthDate,
		Phone:          strings.TrimSpace(input.Phone),
		HomeAddress:    strings.TrimSpace(input.HomeAddress),
		GoogleMapsLink: utils.TrimmedOrNil(input.GoogleMapsLink),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&person).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

func GetPerson(ctx context.Context, id int) (*Person, error) {
	return utils.FetchSingleModel[Person](ctx, config.GetDB(), id)
}

func GetPersons(ctx context.Context, page Page) ([]Person, error) {
	page = page.Normalize()
	return utils.FetchPage[Person](ctx, config.GetDB(), page.Skip, page.Limit)
}

func UpdatePerson(ctx context.Context, id int, input *PersonUpdate, phoneRegion string) (*Person, error) {
	if err := input.validate(phoneRegion); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var person Person
	if err := db.WithContext(ctx).First(&person, id).Error; err != nil {
		return nil, utils.NormalizeDBError(err)
	}
	fillable := input.Fillable()
	if len(fillable) > 0 {
		if err := db.WithContext(ctx).Model(&person).Updates(fillable).Error; err != nil {
			return nil, err
		}
	}
	return GetPerson(ctx, id)
}

// DeletePerson removes the person together with every recurring meeting they lead,
// every report linked to those meetings or led by them, and those reports' children.
// The attachment rows removed are returned so their objects can be deleted after commit.
func DeletePerson(ctx context.Context, id int) (*Person, []ReportAttachment, error) {
	db := config.GetDB()
	var result Person
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, nil, utils.NormalizeDBError(err)
	}

	var removed []ReportAttachment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meetingIds := tx.Model(&RecurringMeeting{}).Select("id").Where("leader_person_id = ?", id)

		var reportIds []int
		if err := tx.Model(&Report{}).
			Where("leader_person_id = ? OR recurring_meeting_id IN (?)", id, meetingIds).
			Pluck("id", &reportIds).Error; err != nil {
			return err
		}

		var err error
		removed, err = deleteReportsCascade(tx, reportIds)
		if err != nil {
			return err
		}

		if err := tx.Where("leader_person_id = ?", id).Delete(&RecurringMeeting{}).Error; err != nil {
			return err
		}
		return tx.Delete(&result).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &result, removed, nil
}
