package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a point in time as carried by producer payloads. Producers
// emit RFC 3339 strings, ISO-8601 strings without a zone (treated as UTC) or
// Unix epochs in seconds or milliseconds.
type Timestamp struct {
	time.Time
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// NewTimestamp wraps t in UTC.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t.UTC()} }

// ParseTimestamp parses the textual forms accepted on the wire.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f), nil
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func fromEpoch(f float64) Timestamp {
	if f > epochMillisThreshold {
		return NewTimestamp(time.UnixMilli(int64(f)))
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return NewTimestamp(time.Unix(sec, nsec))
}

// MarshalJSON renders the timestamp as RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts a string, a number or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = Timestamp{}
			return nil
		}
		ts, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = ts
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = fromEpoch(f)
	return nil
}
