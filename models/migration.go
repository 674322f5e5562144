package models

import (
	"gorm.io/gorm"
)

// AllModels lists the final schema in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Person{}, &RecurringMeeting{}, &Report{}, &ReportParticipant{}, &ReportAttachment{},
	}
}

// MigrateTable creates the final schema on a fresh database (AUTO_MIGRATE=true).
// Existing deployments go through the migration package instead.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
