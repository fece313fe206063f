// internal/domain/advisory/advisory.go
package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is one security advisory as returned by the feed. Only the fields the
// report summary needs are kept.
type Entry struct {
	AdvisoryID  string `json:"advisoryId"`
	Title       string `json:"advisoryTitle"`
	SIR         string `json:"sir"`
	LastUpdated string `json:"lastUpdated"` // yyyy-mm-ddThh:mm:ss
}

// Snapshot is the feed content fetched once at the start of a run.
type Snapshot struct {
	Entries []Entry
	From    time.Time
	To      time.Time
}

// Feed fetches advisories first published between from and to.
type Feed interface {
	Fetch(ctx context.Context, from, to time.Time) (*Snapshot, error)
}

// Failure categories reported by Feed implementations. All are fatal for a run.
var (
	ErrUnauthorized     = fmt.Errorf("advisory feed: unauthorized")
	ErrNotFound         = fmt.Errorf("advisory feed: not found")
	ErrRateLimited      = fmt.Errorf("advisory feed: rate limited")
	ErrBadRequest       = fmt.Errorf("advisory feed: bad request")
	ErrUnexpectedStatus = fmt.Errorf("advisory feed: unexpected status")
)

// CategorizeStatus maps an HTTP status of the feed or its token endpoint to a failure category.
func CategorizeStatus(status int) error {
	switch status {
	case 401, 403:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	case 429:
		return ErrRateLimited
	case 400:
		return ErrBadRequest
	default:
		return ErrUnexpectedStatus
	}
}

// LastUpdatedDate returns the calendar date of the entry's lastUpdated value.
// Everything from the "T" separator on (time of day and zone) is discarded.
func (e Entry) LastUpdatedDate() (time.Time, error) {
	datePart := e.LastUpdated
	if i := strings.Index(datePart, "T"); i >= 0 {
		datePart = datePart[:i]
	}
	d, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("advisory %s: malformed lastUpdated %q: %w", e.AdvisoryID, e.LastUpdated, err)
	}
	return d, nil
}
