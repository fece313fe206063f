package app

import (
	"fmt"
	"strings"
	"time"

	"psirt_report_bot/internal/domain/advisory"
	"psirt_report_bot/internal/domain/messaging"
	"psirt_report_bot/internal/domain/request"
)

const (
	summaryTitle = "PSIRT Summary Report"
	// summaryFallbackText is shown by clients that cannot render the card.
	summaryFallbackText = "Adaptive card response. Open message on a supported client to respond."
)

// LinkTable maps a lookback window (days) to the published report link id.
type LinkTable map[int]string

// ReportCounts are the numbers shown in the summary card.
type ReportCounts struct {
	Total  int
	Recent int
}

// CountEntries counts all entries in the snapshot and those whose lastUpdated
// date falls strictly after today minus windowDays. Comparison is by date only.
// Entries with an unparseable lastUpdated count toward Total but never as recent.
func CountEntries(snapshot *advisory.Snapshot, windowDays int, today time.Time) ReportCounts {
	counts := ReportCounts{}
	if snapshot == nil {
		return counts
	}
	cutoff := dateOf(today).AddDate(0, 0, -windowDays)
	for _, entry := range snapshot.Entries {
		counts.Total++
		updated, err := entry.LastUpdatedDate()
		if err != nil {
			continue
		}
		if updated.After(cutoff) {
			counts.Recent++
		}
	}
	return counts
}

// dateOf truncates t to its calendar date in t's location, expressed in UTC so
// it compares cleanly with dates parsed from the feed.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidationError explains why a record cannot be dispatched.
type ValidationError struct {
	Field      string
	Diagnostic string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DispatchRequest is a record that passed validation, with defaults applied.
type DispatchRequest struct {
	ID          int64
	ReplyTarget string
	Variant     request.ReportVariant
	WindowDays  int
	LinkID      string
}

// validateDispatch turns a record into a DispatchRequest or a *ValidationError.
// It runs before anything is sent so a malformed record never gets a partial reply.
func validateDispatch(rec *request.Record, defaultWindowDays int, links LinkTable) (*DispatchRequest, error) {
	target := strings.TrimSpace(rec.ReplyTarget.String)
	if !rec.ReplyTarget.Valid || target == "" {
		return nil, &ValidationError{Field: "reply_target", Diagnostic: request.DiagnosticMissingReplyTo, Reason: "missing"}
	}

	window := defaultWindowDays
	if rec.ReportWindowDays.Valid {
		window = int(rec.ReportWindowDays.Int32)
	}
	linkID, ok := links[window]
	if !ok || linkID == "" {
		return nil, &ValidationError{
			Field:      "report_window_days",
			Diagnostic: request.DiagnosticUnsupportedWindow,
			Reason:     fmt.Sprintf("no report link for a %d-day window", window),
		}
	}

	return &DispatchRequest{
		ID:          rec.ID,
		ReplyTarget: target,
		Variant:     request.ParseReportVariant(rec.ReportVariant.String),
		WindowDays:  window,
		LinkID:      linkID,
	}, nil
}

// buildSummaryMessage builds the first reply: the summary card.
func buildSummaryMessage(counts ReportCounts, windowDays, lookbackDays int) messaging.Message {
	return messaging.Message{
		Text: summaryFallbackText,
		Summary: &messaging.Summary{
			Title:         summaryTitle,
			TotalEntries:  counts.Total,
			RecentEntries: counts.Recent,
			WindowDays:    windowDays,
			LookbackDays:  lookbackDays,
		},
	}
}

// buildAttachmentMessage builds the second reply: the report file.
func buildAttachmentMessage(baseURL string, req *DispatchRequest) messaging.Message {
	ext := req.Variant.FileExtension()
	return messaging.Message{
		Files: []messaging.File{{
			URL:       attachmentURL(baseURL, req.LinkID, ext),
			Name:      fmt.Sprintf("psirt-report-%dd.%s", req.WindowDays, ext),
			Extension: ext,
		}},
	}
}

// attachmentURL follows the published-spreadsheet format: <base>/<link>/pub?output=<ext>.
func attachmentURL(baseURL, linkID, ext string) string {
	return fmt.Sprintf("%s/%s/pub?output=%s", strings.TrimRight(baseURL, "/"), linkID, ext)
}
