// internal/domain/request/record.go
package request

import (
	"database/sql"
	"time"
)

// Record is one inbound chat message asking for a report.
// Corresponds to the 'report_requests' table.
type Record struct {
	ID                 int64          // BIGSERIAL, defines store order
	RequesterID        sql.NullString // Sender account key (email)
	CreatedAt          Timestamp      // Text as ingested, structured once normalized
	SenderDisplayName  sql.NullString // "bot" for automated senders
	ReplyTarget        sql.NullString // Room/chat the reply goes to
	ReportVariant      sql.NullString // Raw variant as requested, see ParseReportVariant
	ReportWindowDays   sql.NullInt32  // Lookback window for "recently updated" counts
	Classification     Classification
	Outcome            Outcome
	Diagnostic         sql.NullString // e.g. "malformed_msg"
	DispatchClaimedAt  sql.NullTime   // Set when a run claims the record for delivery
	DeliveryStatusCode sql.NullInt32
	DeliveredAt        sql.NullTime
}

// IsTerminal reports whether the record already carries a terminal outcome.
func (r *Record) IsTerminal() bool {
	return r.Outcome.IsTerminal()
}

// IsDeliveryPending reports whether the record was claimed for delivery
// but no delivery result was stored yet.
func (r *Record) IsDeliveryPending() bool {
	return r.Outcome == OutcomeValid && !r.DeliveryStatusCode.Valid
}

// IsDelivered reports whether a delivery attempt was recorded.
func (r *Record) IsDelivered() bool {
	return r.DeliveryStatusCode.Valid
}

// RunCounter is the singleton odometer incremented on every pipeline run.
// Corresponds to the 'run_counters' table, keyed by Name.
type RunCounter struct {
	Name       string
	Count      int64
	FirstRunAt time.Time // Set once on creation
}
