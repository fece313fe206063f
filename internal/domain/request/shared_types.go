// internal/domain/request/shared_types.go
package request

import "strings"

// Outcome is the terminal state of a request. The zero value means pending.
type Outcome string

const (
	OutcomeNone           Outcome = ""
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeValid          Outcome = "valid"
	OutcomeUnknownRequest Outcome = "unknown_request"
)

// IsTerminal reports whether o is one of the immutable terminal outcomes.
func (o Outcome) IsTerminal() bool {
	switch o {
	case OutcomeDuplicate, OutcomeValid, OutcomeUnknownRequest:
		return true
	default:
		return false
	}
}

// Classification records whether a request came from a person or an automated sender.
type Classification string

const (
	ClassificationNone Classification = ""
	ClassificationUser Classification = "user"
	ClassificationBot  Classification = "bot"
)

// BotDisplayName is the literal sender name used by automated senders.
const BotDisplayName = "bot"

// Diagnostics stored alongside an unknown_request outcome.
const (
	DiagnosticMalformed         = "malformed_msg"
	DiagnosticMissingReplyTo    = "missing_reply_target"
	DiagnosticUnsupportedWindow = "unsupported_report_window"
)

// ReportVariant is the requested output format of the delivered report.
type ReportVariant string

const (
	VariantSpreadsheet   ReportVariant = "spreadsheet"
	VariantDelimitedText ReportVariant = "delimited-text"
)

// ParseReportVariant maps the raw requested format to a variant. Anything that
// is not a spreadsheet request is delivered as delimited text.
func ParseReportVariant(raw string) ReportVariant {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "spreadsheet", "xlsx", "xlxs": // "xlxs" is what the chat card submits
		return VariantSpreadsheet
	default:
		return VariantDelimitedText
	}
}

// FileExtension returns the attachment extension for the variant.
func (v ReportVariant) FileExtension() string {
	if v == VariantSpreadsheet {
		return "xlsx"
	}
	return "csv"
}
