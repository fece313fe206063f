package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"psirt_report_bot/internal/app"
	"psirt_report_bot/internal/domain/messaging"
	"psirt_report_bot/internal/infra/advisory"
	"psirt_report_bot/internal/infra/config"
	idb "psirt_report_bot/internal/infra/database"
	"psirt_report_bot/internal/infra/logger"
	"psirt_report_bot/internal/infra/metrics"
	"psirt_report_bot/internal/infra/scheduler"
	"psirt_report_bot/internal/infra/telegram"
	"psirt_report_bot/internal/infra/webex"
	"psirt_report_bot/internal/infra/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 15 * time.Second

// application holds everything built from configuration.
type application struct {
	cfg      *config.AppConfig
	db       *sql.DB
	pipeline *app.Pipeline
	bot      *telebot.Bot // nil unless TRANSPORT=telegram
}

// buildApp loads configuration and wires the pipeline. A polling Telegram bot
// is created only when the process keeps running (serve).
func buildApp(serving bool) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.Infof("Configuration loaded. LogLevel: %s, Environment: %s, Transport: %s", cfg.LogLevel, cfg.Environment, cfg.Transport)

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL, cfg.DBConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	mainLogger.Info("Database connection established successfully.")

	// Initialize Repositories
	requestRepo := idb.NewPostgresRequestRepository(db)
	counterRepo := idb.NewPostgresCounterRepository(db)

	feed := advisory.NewClient(advisory.Config{
		ClientID:     cfg.PSIRTClientID,
		ClientSecret: cfg.PSIRTClientSecret,
		TokenURL:     cfg.PSIRTTokenURL,
		APIURL:       cfg.PSIRTAPIURL,
	}, logger.Component("advisory_feed"))

	a := &application{cfg: cfg, db: db}
	var transport messaging.Transport
	switch cfg.Transport {
	case config.TransportTelegram:
		if a.bot, err = newTelegramBot(cfg, serving); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		transport = telegram.NewTelebotAdapter(a.bot)
	default:
		transport = webex.NewClient(webex.Config{
			APIURL:        cfg.WebexAPIURL,
			Bearer:        cfg.WebexBearer,
			RatePerSecond: cfg.WebexRatePerSecond,
		}, logger.Component("webex"))
	}

	a.pipeline = app.NewPipeline(requestRepo, counterRepo, feed, transport, logger.Component("pipeline"), app.Options{
		DefaultWindowDays: cfg.DefaultWindowDays,
		ClaimStaleAfter:   cfg.ClaimStaleAfter,
		CounterName:       cfg.CounterName,
		Links:             app.LinkTable(cfg.ReportLinks),
		ReportBaseURL:     cfg.ReportBaseURL,
	})
	a.pipeline.SetObserver(metrics.NewRecorder(prometheus.DefaultRegisterer))
	return a, nil
}

func newTelegramBot(cfg *config.AppConfig, polling bool) (*telebot.Bot, error) {
	if !polling || cfg.TelegramAdminID == 0 {
		return telegram.NewOfflineBot(cfg.TelegramToken)
	}
	botLogger := logger.Component("telebot")
	return telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID).WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram handler failed")
		},
	})
}

// serve runs the scheduler, the HTTP server and the Telegram poller until ctx is cancelled.
func (a *application) serve(ctx context.Context, withHTTP bool) error {
	mainLogger := logger.Component("main")

	reportScheduler := scheduler.NewReportScheduler(a.pipeline, logger.Component("scheduler"), a.cfg.CronSpecPoll, 0)
	if err := reportScheduler.Start(); err != nil {
		return err
	}
	defer reportScheduler.Stop()

	if a.bot != nil && a.cfg.TelegramAdminID != 0 {
		telegram.RegisterBotCommands(a.bot, a.pipeline, a.cfg.TelegramAdminID, logger.Component("telegram"))
		go a.bot.Start() // Start bot in a goroutine so it doesn't block graceful shutdown handling
		defer a.bot.Stop()
		mainLogger.Info("Telegram command handlers registered.")
	}

	errCh := make(chan error, 1)
	var srv *webhook.Server
	if withHTTP {
		srv = webhook.NewServer(a.cfg.HTTPAddr, a.pipeline, a.cfg.WebhookToken, prometheus.DefaultGatherer, logger.Component("http"))
		go func() { errCh <- srv.Run(ctx) }()
	}

	mainLogger.Info("Application setup complete. Waiting for requests...")
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
	}

	mainLogger.Info("Shutting down application...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			mainLogger.WithError(err).Warn("HTTP server did not shut down cleanly")
		}
	}
	return nil
}

func (a *application) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
