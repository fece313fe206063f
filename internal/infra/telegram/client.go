// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"psirt_report_bot/internal/domain/messaging"

	"gopkg.in/telebot.v3"
)

// Sender is the part of *telebot.Bot the transport needs.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter implements messaging.Transport using the gopkg.in/telebot.v3 library.
// The reply target is a numeric Telegram chat id.
type TelebotAdapter struct {
	bot Sender
}

var _ messaging.Transport = (*TelebotAdapter)(nil)

func NewTelebotAdapter(b Sender) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// NewOfflineBot creates a bot that only sends; it does not call getMe on start.
func NewOfflineBot(token string) (*telebot.Bot, error) {
	return telebot.NewBot(telebot.Settings{Token: token, Offline: true})
}

// Send delivers a summary as Markdown text or a file as a document.
// Telegram API rejections come back as their status code, not as an error.
func (tba *TelebotAdapter) Send(ctx context.Context, target string, msg messaging.Message) (int, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", target, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	recipient := &telebot.Chat{ID: chatID}

	var what interface{}
	options := &telebot.SendOptions{}
	switch {
	case len(msg.Files) > 0:
		f := msg.Files[0]
		what = &telebot.Document{File: telebot.FromURL(f.URL), FileName: fileName(f)}
	case msg.Summary != nil:
		what = summaryText(msg.Summary)
		options.ParseMode = telebot.ModeMarkdown
	default:
		what = msg.Text
	}

	if _, err := tba.bot.Send(recipient, what, options); err != nil {
		if status, ok := statusOf(err); ok {
			return status, nil
		}
		return 0, fmt.Errorf("sending telegram message: %w", err)
	}
	return http.StatusOK, nil
}

// summaryText renders the card as Markdown. Bullet asterisks would open bold spans, so they become dots.
func summaryText(s *messaging.Summary) string {
	lines := strings.Split(s.Body(), "\n")
	for i, line := range lines {
		lines[i] = "• " + strings.TrimPrefix(line, "* ")
	}
	return "*" + s.Title + "*\n" + strings.Join(lines, "\n")
}

func fileName(f messaging.File) string {
	name := f.Name
	if name == "" {
		name = "psirt-report"
	}
	if f.Extension != "" {
		name += "." + f.Extension
	}
	return name
}

// Unrecognized API errors are formatted by telebot as "telegram: <description> (<code>)".
var apiErrorCode = regexp.MustCompile(`^telegram: .* \((\d{3})\)$`)

// statusOf maps a Telegram API rejection to its status code. Network errors have none.
func statusOf(err error) (int, bool) {
	var flood telebot.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests, true
	}
	var group telebot.GroupError
	if errors.As(err, &group) {
		return http.StatusBadRequest, true
	}
	var apiErr *telebot.Error
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return apiErr.Code, true
	}
	if m := apiErrorCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code, true
	}
	return 0, false
}
