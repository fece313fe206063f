// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"psirt_report_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const runReportTimeout = 5 * time.Minute

// Handler registration target; *telebot.Bot satisfies it.
type Handler interface {
	Handle(endpoint interface{}, h telebot.HandlerFunc, m ...telebot.MiddlewareFunc)
}

// RegisterBotCommands wires /start, /help and the admin-only /run_report command.
func RegisterBotCommands(
	b Handler,
	reports app.ReportService,
	adminID int64, // 0 disables /run_report
	baseLogger *logrus.Entry,
) {
	logger := baseLogger.WithField("handler_group", "bot_commands")

	b.Handle("/start", func(c telebot.Context) error {
		logger.WithField("command", "/start").WithField("sender_id", c.Sender().ID).Info("Processing /start command")
		return c.Send("Hi! I reply to PSIRT report requests with an advisory summary and the report file.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logger.WithField("command", "/help").WithField("sender_id", senderID).Info("Processing /help command")

		var helpText strings.Builder
		helpText.WriteString("Report requests are picked up automatically.\n\n")
		if isAdmin(senderID, adminID) {
			helpText.WriteString("`/run_report`\n - Process pending requests now.\n\n")
		}
		helpText.WriteString("`/help`\n - Show this message.")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})

	b.Handle("/run_report", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := logger.WithField("command", "/run_report").WithField("sender_id", senderID)
		if !isAdmin(senderID, adminID) {
			logCtx.Warn("Unauthorized attempt to trigger a run")
			return c.Send("This command is restricted to the administrator.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), runReportTimeout)
		defer cancel()
		summary, err := reports.Run(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Run triggered from chat failed")
			return c.Send(fmt.Sprintf("Run failed: %v", err))
		}
		logCtx.WithField("run_id", summary.RunID).Info("Run triggered from chat finished")
		return c.Send(formatRunSummary(summary))
	})
}

func isAdmin(senderID, adminID int64) bool {
	return adminID != 0 && senderID == adminID
}

func formatRunSummary(s *app.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished.\n", s.RunID)
	fmt.Fprintf(&b, "Pending: %d\n", s.Pending)
	if s.Duplicates != nil {
		fmt.Fprintf(&b, "Duplicates: %d\n", len(s.Duplicates.Duplicates))
	}
	if s.Classified != nil {
		fmt.Fprintf(&b, "Users: %d, bots: %d, invalid: %d\n",
			s.Classified.UserCount(), s.Classified.BotCount(), s.Classified.InvalidCount())
	}
	if s.Dispatched != nil {
		fmt.Fprintf(&b, "Delivered: %d, rejected: %d, pending delivery: %d\n",
			len(s.Dispatched.Delivered), len(s.Dispatched.Rejected), len(s.Dispatched.Pending))
	}
	if s.Counter != nil {
		fmt.Fprintf(&b, "Runs so far: %d", s.Counter.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}
