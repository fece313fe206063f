package request

import (
	"database/sql"
	"fmt"
	"time"
)

// createdAtLayouts are the text forms the ingestion webhook writes.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
}

// Timestamp holds created_at in either representation. Text is what the
// ingestion side stores; Time is filled once the pipeline normalized it.
type Timestamp struct {
	Text string
	Time sql.NullTime
}

// NeedsNormalization is true while only the text form is stored.
func (ts Timestamp) NeedsNormalization() bool {
	return !ts.Time.Valid && ts.Text != ""
}

// Resolve returns the structured time, parsing the text form if needed.
func (ts Timestamp) Resolve() (time.Time, error) {
	if ts.Time.Valid {
		return ts.Time.Time, nil
	}
	if ts.Text == "" {
		return time.Time{}, fmt.Errorf("created_at is not set")
	}
	return ParseCreatedAt(ts.Text)
}

// ParseCreatedAt parses a text created_at value.
func ParseCreatedAt(text string) (time.Time, error) {
	var lastErr error
	for _, layout := range createdAtLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("malformed created_at %q: %w", text, lastErr)
}
