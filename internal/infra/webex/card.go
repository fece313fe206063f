// internal/infra/webex/card.go
package webex

import "psirt_report_bot/internal/domain/messaging"

const (
	adaptiveCardContentType = "application/vnd.microsoft.card.adaptive"
	adaptiveCardSchema      = "http://adaptivecards.io/schemas/adaptive-card.json"
	bannerImageURL          = "https://user-images.githubusercontent.com/10964629/172955101-76942969-039e-402a-a1c0-e3ed6c71ab38.png"
)

type attachment struct {
	ContentType string       `json:"contentType"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Type    string        `json:"type"`
	Schema  string        `json:"$schema"`
	Version string        `json:"version"`
	Body    []cardElement `json:"body"`
}

// cardElement covers the three element kinds the summary card uses.
type cardElement struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	URL       string    `json:"url,omitempty"`
	Text      string    `json:"text,omitempty"`
	Wrap      bool      `json:"wrap,omitempty"`
	Inlines   []textRun `json:"inlines,omitempty"`
	Spacing   string    `json:"spacing,omitempty"`
	Separator bool      `json:"separator,omitempty"`
}

type textRun struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func summaryCard(s *messaging.Summary) []attachment {
	return []attachment{{
		ContentType: adaptiveCardContentType,
		Content: adaptiveCard{
			Type:    "AdaptiveCard",
			Schema:  adaptiveCardSchema,
			Version: "1.2",
			Body: []cardElement{
				{Type: "Image", ID: "Banner_Image", URL: bannerImageURL},
				{Type: "TextBlock", ID: "text_block_1", Text: s.Title, Wrap: true},
				{
					Type:      "RichTextBlock",
					ID:        "sum",
					Inlines:   []textRun{{Type: "TextRun", Text: s.Body()}},
					Spacing:   "Small",
					Separator: true,
				},
			},
		},
	}}
}
