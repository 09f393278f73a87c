package warehouse

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// timeLayout is fixed-width UTC so stored instants sort lexically on every backend.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// sqlTime stores a time.Time as timeLayout text.
type sqlTime struct {
	time.Time
}

func (t sqlTime) Value() (driver.Value, error) {
	return t.UTC().Format(timeLayout), nil
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (t *sqlTime) parse(value string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan time: unrecognized value %q", value)
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return sqlTime{*value}
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
