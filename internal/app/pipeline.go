// internal/app/pipeline.go
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"psirt_report_bot/internal/domain/advisory"
	"psirt_report_bot/internal/domain/messaging"
	"psirt_report_bot/internal/domain/request"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWindowDays      = 7
	DefaultLookbackDays    = 90
	DefaultClaimStaleAfter = 10 * time.Minute
)

// ReportService runs the request reconciliation pipeline once.
type ReportService interface {
	Run(ctx context.Context) (*RunSummary, error)
}

// RunObserver receives every finished run, fatal ones included (summary may be partial).
type RunObserver interface {
	ObserveRun(summary *RunSummary, err error)
}

// Options are the knobs that used to differ between copies of the run script.
type Options struct {
	DuplicateWindow   time.Duration
	DefaultWindowDays int
	LookbackDays      int
	ClaimStaleAfter   time.Duration
	CounterName       string
	Links             LinkTable
	ReportBaseURL     string
	Now               func() time.Time
}

func (o *Options) applyDefaults() {
	if o.DuplicateWindow <= 0 {
		o.DuplicateWindow = DefaultDuplicateWindow
	}
	if o.DefaultWindowDays <= 0 {
		o.DefaultWindowDays = DefaultWindowDays
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = DefaultLookbackDays
	}
	if o.ClaimStaleAfter <= 0 {
		o.ClaimStaleAfter = DefaultClaimStaleAfter
	}
	if o.CounterName == "" {
		o.CounterName = DefaultCounterName
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// RunSummary aggregates the per-stage results of one run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Pending    int // Records with no outcome at the start of the run
	Duplicates *DuplicateResult
	Classified *ClassifyResult
	Resumed    []int64 // Stale delivery-pending records picked up again
	Dispatched *DispatchResult
	Counter    *request.RunCounter
	CounterErr error
}

// Pipeline wires the stages together. Runs on one Pipeline never overlap.
type Pipeline struct {
	mu         sync.Mutex
	repo       request.Repository
	feed       advisory.Feed
	filter     *DuplicateFilter
	classifier *Classifier
	dispatcher *Dispatcher
	counter    *RunCounterService
	observer   RunObserver
	logger     *logrus.Entry
	opts       Options
}

func NewPipeline(
	repo request.Repository,
	counters request.CounterRepository,
	feed advisory.Feed,
	transport messaging.Transport,
	logger *logrus.Entry,
	opts Options,
) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{
		repo:       repo,
		feed:       feed,
		filter:     NewDuplicateFilter(repo, logger.WithField("stage", "rapid_test"), opts.DuplicateWindow),
		classifier: NewClassifier(repo, logger.WithField("stage", "classifier")),
		dispatcher: NewDispatcher(repo, transport, logger.WithField("stage", "dispatcher"), DispatcherOptions{
			DefaultWindowDays: opts.DefaultWindowDays,
			LookbackDays:      opts.LookbackDays,
			ClaimStaleAfter:   opts.ClaimStaleAfter,
			Links:             opts.Links,
			ReportBaseURL:     opts.ReportBaseURL,
			Now:               opts.Now,
		}),
		counter: NewRunCounterService(counters, logger.WithField("stage", "run_counter"), opts.CounterName, opts.Now),
		logger:  logger,
		opts:    opts,
	}
}

// SetObserver registers a RunObserver, e.g. metrics.
func (p *Pipeline) SetObserver(o RunObserver) {
	p.observer = o
}

// Run executes one full pass. The returned error is fatal: it is only set when
// the run stopped before touching any record.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	summary := &RunSummary{RunID: uuid.NewString(), StartedAt: p.opts.Now().UTC()}
	err := p.run(ctx, summary)
	summary.FinishedAt = p.opts.Now().UTC()
	if p.observer != nil {
		p.observer.ObserveRun(summary, err)
	}
	return summary, err
}

func (p *Pipeline) run(ctx context.Context, summary *RunSummary) error {
	logCtx := p.logger.WithField("run_id", summary.RunID)
	logCtx.Info("------------------------------------------------------")

	today := p.opts.Now()
	from := today.AddDate(0, 0, -p.opts.LookbackDays)
	snapshot, err := p.feed.Fetch(ctx, from, today)
	if err != nil {
		logCtx.WithError(err).Error("Advisory feed unavailable, aborting run")
		return fmt.Errorf("failed to fetch advisory snapshot: %w", err)
	}
	logCtx.WithField("entries", len(snapshot.Entries)).Info("Advisory snapshot fetched")

	pendingIDs, err := p.repo.ListPendingIDs(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list pending requests, aborting run")
		return fmt.Errorf("failed to list pending requests: %w", err)
	}
	summary.Pending = len(pendingIDs)
	logCtx.WithField("pending", summary.Pending).Info("Number of records to check for validity")

	summary.Duplicates = p.filter.Filter(ctx, pendingIDs)
	summary.Classified = p.classifier.Classify(ctx, summary.Duplicates.Survivors)

	toDispatch := summary.Classified.Users
	staleIDs, err := p.repo.ListStaleClaims(ctx, today.Add(-p.opts.ClaimStaleAfter))
	if err != nil {
		logCtx.WithError(err).Error("Failed to list stale delivery claims, they will be retried next run")
	} else {
		summary.Resumed = staleIDs
		toDispatch = mergeIDs(toDispatch, staleIDs)
	}
	summary.Dispatched = p.dispatcher.Dispatch(ctx, toDispatch, snapshot)

	summary.Counter, summary.CounterErr = p.counter.Increment(ctx)
	if summary.CounterErr != nil {
		logCtx.WithError(summary.CounterErr).Error("Run counter not updated")
	}

	logCtx.WithFields(logrus.Fields{
		"pending":    summary.Pending,
		"duplicates": len(summary.Duplicates.Duplicates),
		"users":      summary.Classified.UserCount(),
		"bots":       summary.Classified.BotCount(),
		"invalid":    summary.Classified.InvalidCount(),
		"delivered":  len(summary.Dispatched.Delivered),
		"rejected":   len(summary.Dispatched.Rejected),
	}).Info("Run finished")
	return nil
}

// mergeIDs appends the ids of extra not already in base, keeping order.
func mergeIDs(base, extra []int64) []int64 {
	seen := make(map[int64]struct{}, len(base))
	merged := make([]int64, 0, len(base)+len(extra))
	for _, id := range base {
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	for _, id := range extra {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	return merged
}
