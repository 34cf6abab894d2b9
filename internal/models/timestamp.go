package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// timestampLayouts are tried in order when decoding a Timestamp
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a point in time that decodes leniently.
// Values that cannot be parsed decode as the zero time, which sorts last in newest-first order.
type Timestamp struct {
	time.Time
}

// At wraps t as a Timestamp
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses s with the accepted layouts, returning the zero Timestamp on failure
func ParseTimestamp(s string) Timestamp {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}
		}
	}
	return Timestamp{}
}

// MarshalJSON encodes the timestamp as RFC 3339, or an empty string for the zero time
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON never fails on malformed input
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = Timestamp{}
		return nil
	}
	*t = ParseTimestamp(s)
	return nil
}
