package models

import (
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// enumColumnType renders a MySQL ENUM column and a plain varchar elsewhere (SQLite tests).
func enumColumnType(db *gorm.DB, size string, values ...string) string {
	if db.Dialector.Name() == "mysql" {
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = "'" + v + "'"
		}
		return "ENUM(" + strings.Join(quoted, ",") + ")"
	}
	return "varchar(" + size + ")"
}

func unmarshalEnumString(data []byte, name string) (string, error) {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return "", errors.New(name + " must be string")
	}
	return str, nil
}

type ReportType string

const (
	ReportTypeCelula ReportType = "celula"
	ReportTypeCulto  ReportType = "culto"
)

// ParseReportType is case-insensitive and returns the canonical lower-case value.
func ParseReportType(s string) (ReportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "celula":
		return ReportTypeCelula, nil
	case "culto":
		return ReportTypeCulto, nil
	}
	return "", errors.New("invalid report type")
}

func (t *ReportType) UnmarshalJSON(data []byte) error {
	str, err := unmarshalEnumString(data, "report type")
	if err != nil {
		return err
	}
	v, err := ParseReportType(str)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (ReportType) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumnType(db, "10", string(ReportTypeCelula), string(ReportTypeCulto))
}

type Periodicity string

const (
	PeriodicityWeekly  Periodicity = "WEEKLY"
	PeriodicityMonthly Periodicity = "MONTHLY"
	PeriodicityDaily   Periodicity = "DAILY"
)

func ParsePeriodicity(s string) (Periodicity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WEEKLY":
		return PeriodicityWeekly, nil
	case "MONTHLY":
		return PeriodicityMonthly, nil
	case "DAILY":
		return PeriodicityDaily, nil
	}
	return "", errors.New("invalid periodicity")
}

func (t *Periodicity) UnmarshalJSON(data []byte) error {
	str, err := unmarshalEnumString(data, "periodicity")
	if err != nil {
		return err
	}
	v, err := ParsePeriodicity(str)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (Periodicity) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumnType(db, "10", string(PeriodicityWeekly), string(PeriodicityMonthly), string(PeriodicityDaily))
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyBOB Currency = "BOB"
)

func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USD":
		return CurrencyUSD, nil
	case "BOB":
		return CurrencyBOB, nil
	}
	return "", errors.New("invalid currency")
}

func (t *Currency) UnmarshalJSON(data []byte) error {
	str, err := unmarshalEnumString(data, "currency")
	if err != nil {
		return err
	}
	v, err := ParseCurrency(str)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (Currency) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumnType(db, "3", string(CurrencyUSD), string(CurrencyBOB))
}

// ParticipantType is stored by name; the short codes M, V and P are accepted on input.
type ParticipantType string

const (
	ParticipantTypeMember      ParticipantType = "MEMBER"
	ParticipantTypeVisitor     ParticipantType = "VISITOR"
	ParticipantTypeParticipant ParticipantType = "PARTICIPANT"
)

func ParseParticipantType(s string) (ParticipantType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MEMBER", "M":
		return ParticipantTypeMember, nil
	case "VISITOR", "V":
		return ParticipantTypeVisitor, nil
	case "PARTICIPANT", "P":
		return ParticipantTypeParticipant, nil
	}
	return "", errors.New("invalid participant type")
}

// Code is the single-letter form used by the frontend.
func (t ParticipantType) Code() string {
	switch t {
	case ParticipantTypeMember:
		return "M"
	case ParticipantTypeVisitor:
		return "V"
	case ParticipantTypeParticipant:
		return "P"
	}
	return ""
}

func (t *ParticipantType) UnmarshalJSON(data []byte) error {
	str, err := unmarshalEnumString(data, "participant type")
	if err != nil {
		return err
	}
	v, err := ParseParticipantType(str)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (ParticipantType) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumnType(db, "11", string(ParticipantTypeMember), string(ParticipantTypeVisitor), string(ParticipantTypeParticipant))
}
