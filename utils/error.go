package utils

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrorRecordNotFound    = errors.New("record not found")
	ErrorInvalidReference  = errors.New("referenced record does not exist or is still referenced")
	ErrorUnauthorized      = errors.New("unauthorized")
	ErrorInvalidCredential = errors.New("invalid username or password")
	ErrorTokenRevoked      = errors.New("token has been revoked")
	ErrorUnsupportedFile   = errors.New("unsupported file type")
	ErrorFileTooLarge      = errors.New("file too large")
)

// MySQL server error numbers for foreign key violations.
const (
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

// NormalizeDBError maps driver errors onto the package sentinels.
func NormalizeDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorRecordNotFound
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlRowIsReferenced, mysqlNoReferencedRow:
			return ErrorInvalidReference
		}
	}
	return err
}
