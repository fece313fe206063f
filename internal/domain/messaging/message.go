// internal/domain/messaging/message.go
package messaging

import (
	"context"
	"fmt"
)

// Transport sends one message to a reply target and returns the status code the
// messaging service answered with. A non-2xx answer is a status code, not an error;
// errors are reserved for malformed payloads and requests that got no answer.
type Transport interface {
	Send(ctx context.Context, target string, msg Message) (int, error)
}

// Message is either a summary (Text + Summary) or a file attachment (Files).
type Message struct {
	Text    string
	Summary *Summary
	Files   []File
}

// Summary is the structured report summary rendered as a card where supported.
type Summary struct {
	Title         string
	TotalEntries  int
	RecentEntries int
	WindowDays    int
	LookbackDays  int
}

// File is a report file the messaging service downloads from URL.
type File struct {
	URL       string
	Name      string
	Extension string
}

// IsSuccess reports whether a status code means the message was accepted.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Body renders the summary counts as markdown bullet lines.
func (s *Summary) Body() string {
	return fmt.Sprintf("* Number of CVE entries in the last %d-days: %d\n* Number of CVE entries updated in last %d-days: %d",
		s.LookbackDays, s.TotalEntries, s.WindowDays, s.RecentEntries)
}
