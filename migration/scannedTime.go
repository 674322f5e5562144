package migration

import (
	"fmt"
	"time"
)

// scannedTime accepts aggregate datetimes as MySQL (time.Time with parseTime)
// and SQLite (text) return them.
type scannedTime struct {
	Time time.Time
}

var scannedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *scannedTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		return fmt.Errorf("unexpected NULL datetime")
	}
	return fmt.Errorf("cannot scan %T into time", value)
}

func (t *scannedTime) parse(s string) error {
	for _, layout := range scannedTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised datetime %q", s)
}
