package types

import (
	"fmt"
	"time"
)

// TimeFormat is the wire format for all engine timestamps: RFC3339 with
// millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Time embeds time.Time and marshals as RFC3339 with millisecond precision.
// The zero value marshals as null.
type Time struct {
	time.Time
}

// NewTime wraps a time.Time, truncating to millisecond precision.
func NewTime(t time.Time) Time {
	return Time{t.Truncate(time.Millisecond)}
}

// Now returns the current time at millisecond precision.
func Now() Time {
	return NewTime(time.Now())
}

// MarshalJSON implements json.Marshaler
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", t.Format(TimeFormat))), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid timestamp: %s", s)
	}
	parsed, err := time.Parse(time.RFC3339, s[1:len(s)-1])
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	t.Time = parsed
	return nil
}
