// internal/infra/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"psirt_report_bot/internal/app" // For ReportService interface

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultRunTimeout = 5 * time.Minute

type ReportScheduler struct {
	cronEngine   *cron.Cron
	reports      app.ReportService
	logger       *logrus.Entry
	cronSpecPoll string
	runTimeout   time.Duration
}

func NewReportScheduler(
	reports app.ReportService,
	logger *logrus.Entry,
	cronSpecPoll string, // e.g., "*/5 * * * *" (every 5 minutes)
	runTimeout time.Duration,
) *ReportScheduler {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &ReportScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			// A poll that outlasts the interval is not stacked behind the next one.
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		reports:      reports,
		logger:       logger,
		cronSpecPoll: cronSpecPoll,
		runTimeout:   runTimeout,
	}
}

// Start registers the polling job and starts the cron engine.
func (s *ReportScheduler) Start() error {
	s.logger.Info("Starting report scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpecPoll, s.pollOnce)
	if err != nil {
		return fmt.Errorf("could not add polling cron job %q: %w", s.cronSpecPoll, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.cronSpecPoll).Info("Report scheduler started")
	return nil
}

func (s *ReportScheduler) pollOnce() {
	s.logger.Debug("Cron job triggered for pending report requests.")
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	summary, err := s.reports.Run(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled run failed")
		return
	}
	s.logger.WithField("run_id", summary.RunID).Debug("Scheduled run finished")
}

func (s *ReportScheduler) Stop() {
	s.logger.Info("Stopping report scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Report scheduler gracefully stopped.")
}
