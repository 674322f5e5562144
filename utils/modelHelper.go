package utils

import (
	"context"

	"gorm.io/gorm"
)

// FetchSingleModel loads one row by primary key (may return ErrorRecordNotFound).
func FetchSingleModel[T any](ctx context.Context, db *gorm.DB, id int, associations ...string) (*T, error) {
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, NormalizeDBError(err)
	}
	return &result, nil
}

// FetchPage lists rows ordered by id with offset pagination.
func FetchPage[T any](ctx context.Context, db *gorm.DB, skip, limit int, associations ...string) ([]T, error) {
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []T
	err := dbCtx.Order("id").Offset(skip).Limit(limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
