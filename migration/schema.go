package migration

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

const (
	reportsTable          = "reports"
	recurringMeetingTable = "recurring_meetings"
	linkColumn            = "recurring_meeting_id"
	legacyTypeColumn      = "report_type"

	// ForeignKeyName is the constraint name left on reports.recurring_meeting_id.
	ForeignKeyName = "fk_reports_recurring_meeting"
)

// SchemaManager performs the DDL and catalog lookups of the migration.
// Every method takes the connection (or transaction) to run on.
type SchemaManager interface {
	TableExists(ctx context.Context, db *gorm.DB, table string) (bool, error)
	ColumnExists(ctx context.Context, db *gorm.DB, table, column string) (bool, error)
	ColumnNullable(ctx context.Context, db *gorm.DB, table, column string) (bool, error)
	// ForeignKeyName returns "" when column carries no foreign key.
	ForeignKeyName(ctx context.Context, db *gorm.DB, table, column string) (string, error)

	CreateRecurringMeetingsTable(ctx context.Context, db *gorm.DB) error
	AddLinkColumn(ctx context.Context, db *gorm.DB) error
	DropForeignKey(ctx context.Context, db *gorm.DB, table, name string) error
	MakeLinkColumnNotNull(ctx context.Context, db *gorm.DB) error
	AddLinkForeignKey(ctx context.Context, db *gorm.DB) error
	// RelaxLegacyReportType lets reports.report_type be NULL so rows written without it are accepted.
	RelaxLegacyReportType(ctx context.Context, db *gorm.DB) error
	DropColumn(ctx context.Context, db *gorm.DB, table, column string) error
}

// MySQLSchema reads information_schema of one database. An empty Database means DATABASE().
type MySQLSchema struct {
	Database string
}

func NewMySQLSchema(database string) *MySQLSchema {
	return &MySQLSchema{Database: database}
}

func (s *MySQLSchema) schemaCond() (string, []interface{}) {
	if s.Database == "" {
		return "TABLE_SCHEMA = DATABASE()", nil
	}
	return "TABLE_SCHEMA = ?", []interface{}{s.Database}
}

func (s *MySQLSchema) TableExists(ctx context.Context, db *gorm.DB, table string) (bool, error) {
	cond, args := s.schemaCond()
	var count int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM information_schema.TABLES WHERE "+cond+" AND TABLE_NAME = ?", append(args, table)...).
		Scan(&count).Error
	return count > 0, err
}

func (s *MySQLSchema) ColumnExists(ctx context.Context, db *gorm.DB, table, column string) (bool, error) {
	cond, args := s.schemaCond()
	var count int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM information_schema.COLUMNS WHERE "+cond+" AND TABLE_NAME = ? AND COLUMN_NAME = ?", append(args, table, column)...).
		Scan(&count).Error
	return count > 0, err
}

func (s *MySQLSchema) ColumnNullable(ctx context.Context, db *gorm.DB, table, column string) (bool, error) {
	cond, args := s.schemaCond()
	var isNullable string
	err := db.WithContext(ctx).
		Raw("SELECT IS_NULLABLE FROM information_schema.COLUMNS WHERE "+cond+" AND TABLE_NAME = ? AND COLUMN_NAME = ?", append(args, table, column)...).
		Scan(&isNullable).Error
	if err != nil {
		return false, err
	}
	if isNullable == "" {
		return false, fmt.Errorf("%w: %s.%s", ErrMissingColumn, table, column)
	}
	return isNullable == "YES", nil
}

func (s *MySQLSchema) ForeignKeyName(ctx context.Context, db *gorm.DB, table, column string) (string, error) {
	cond, args := s.schemaCond()
	var names []string
	err := db.WithContext(ctx).
		Raw("SELECT CONSTRAINT_NAME FROM information_schema.KEY_COLUMN_USAGE WHERE "+cond+
			" AND TABLE_NAME = ? AND COLUMN_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL ORDER BY CONSTRAINT_NAME",
			append(args, table, column)...).
		Scan(&names).Error
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[0], nil
}

func (s *MySQLSchema) CreateRecurringMeetingsTable(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(`
CREATE TABLE IF NOT EXISTS recurring_meetings (
    id INT PRIMARY KEY AUTO_INCREMENT,
    meeting_datetime DATETIME(3) NOT NULL,
    leader_person_id INT NOT NULL,
    report_type ENUM('celula', 'culto') NOT NULL,
    location VARCHAR(500) NOT NULL,
    description VARCHAR(1000) NULL,
    google_maps_link VARCHAR(1000) NULL,
    periodicity ENUM('WEEKLY', 'MONTHLY', 'DAILY') NOT NULL,
    created_at DATETIME(3) DEFAULT CURRENT_TIMESTAMP(3),
    updated_at DATETIME(3) DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
    INDEX idx_recurring_meetings_leader_person_id (leader_person_id),
    CONSTRAINT fk_recurring_meetings_leader FOREIGN KEY (leader_person_id) REFERENCES persons(id) ON DELETE CASCADE
)`).Error
}

func (s *MySQLSchema) AddLinkColumn(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(`
ALTER TABLE reports
    ADD COLUMN recurring_meeting_id INT NULL,
    ADD CONSTRAINT ` + ForeignKeyName + ` FOREIGN KEY (recurring_meeting_id) REFERENCES recurring_meetings(id)`).Error
}

// DropForeignKey quotes name since it comes from the catalog.
func (s *MySQLSchema) DropForeignKey(ctx context.Context, db *gorm.DB, table, name string) error {
	return db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE `%s` DROP FOREIGN KEY `%s`", table, name)).Error
}

func (s *MySQLSchema) MakeLinkColumnNotNull(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec("ALTER TABLE reports MODIFY COLUMN recurring_meeting_id INT NOT NULL").Error
}

func (s *MySQLSchema) AddLinkForeignKey(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(`
ALTER TABLE reports
    ADD CONSTRAINT ` + ForeignKeyName + ` FOREIGN KEY (recurring_meeting_id) REFERENCES recurring_meetings(id) ON DELETE CASCADE`).Error
}

func (s *MySQLSchema) RelaxLegacyReportType(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec("ALTER TABLE reports MODIFY COLUMN report_type ENUM('celula', 'culto') NULL").Error
}

func (s *MySQLSchema) DropColumn(ctx context.Context, db *gorm.DB, table, column string) error {
	return db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE `%s` DROP COLUMN `%s`", table, column)).Error
}
