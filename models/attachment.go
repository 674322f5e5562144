package models

import (
	"context"
	"time"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/utils"
)

// ReportAttachment is the row for a file held in the object store under FileKey.
type ReportAttachment struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ReportID    int       `gorm:"index;not null" json:"report_id"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	FileKey     string    `gorm:"size:500;not null" json:"file_key"`
	FileSize    int       `gorm:"not null" json:"file_size"`
	ContentType string    `gorm:"size:100;not null" json:"content_type"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateAttachment(ctx context.Context, attachment *ReportAttachment) error {
	db := config.GetDB()
	if err := utils.ValidateResourceId[Report](ctx, db, attachment.ReportID); err != nil {
		return err
	}
	return utils.NormalizeDBError(db.WithContext(ctx).Create(attachment).Error)
}

// GetAttachment returns ErrorRecordNotFound unless the attachment belongs to reportId.
func GetAttachment(ctx context.Context, reportId, attachmentId int) (*ReportAttachment, error) {
	db := config.GetDB()
	var result ReportAttachment
	err := db.WithContext(ctx).
		Where("report_id = ?", reportId).
		First(&result, attachmentId).Error
	if err != nil {
		return nil, utils.NormalizeDBError(err)
	}
	return &result, nil
}

func GetAttachments(ctx context.Context, reportId int) ([]ReportAttachment, error) {
	db := config.GetDB()
	if err := utils.ValidateResourceId[Report](ctx, db, reportId); err != nil {
		return nil, err
	}
	var results []ReportAttachment
	if err := db.WithContext(ctx).Where("report_id = ?", reportId).Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteAttachment(ctx context.Context, reportId, attachmentId int) (*ReportAttachment, error) {
	result, err := GetAttachment(ctx, reportId, attachmentId)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
