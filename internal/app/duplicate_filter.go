package app

import (
	"context"
	"fmt"
	"time"

	"psirt_report_bot/internal/domain/request"

	"github.com/sirupsen/logrus"
)

// DefaultDuplicateWindow is how close two submissions from the same requester
// must be for the later one to count as a duplicate.
const DefaultDuplicateWindow = 10 * time.Second

// DuplicateResult is the outcome of the rapid test over one batch.
// Survivors and Duplicates together always hold every input id.
type DuplicateResult struct {
	Survivors  []int64
	Duplicates []int64
	Errors     []error // Local errors; the affected records survive
}

// DuplicateFilter suppresses near-simultaneous repeat submissions.
type DuplicateFilter struct {
	repo   request.Repository
	logger *logrus.Entry
	window time.Duration
}

func NewDuplicateFilter(repo request.Repository, logger *logrus.Entry, window time.Duration) *DuplicateFilter {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &DuplicateFilter{repo: repo, logger: logger, window: window}
}

// dupCandidate is what the rapid test needs from one record.
type dupCandidate struct {
	id          int64
	requesterID string
	createdAt   time.Time
	usable      bool // false when the record could not be loaded or its timestamp is malformed
}

// Filter runs the rapid test over pending ids given in store order. Adjacent pairs
// are compared newest to oldest; only adjacent pairs are compared because repeat
// submissions land next to each other in insertion order.
func (f *DuplicateFilter) Filter(ctx context.Context, ids []int64) *DuplicateResult {
	result := &DuplicateResult{}
	f.logger.WithField("ids", ids).Info("Before rapid request filter")

	candidates := make([]dupCandidate, len(ids))
	for i, id := range ids {
		c, err := f.load(ctx, id)
		if err != nil {
			f.logger.WithError(err).WithField("request_id", id).Warn("Rapid test: record kept without comparison")
			result.Errors = append(result.Errors, err)
		}
		candidates[i] = c
	}

	duplicate := make([]bool, len(candidates))
	for i := len(candidates) - 1; i >= 1; i-- {
		current, previous := candidates[i], candidates[i-1]
		if !current.usable || !previous.usable {
			continue
		}
		if current.requesterID != previous.requesterID {
			continue
		}

		delta := current.createdAt.Sub(previous.createdAt)
		if delta < 0 {
			delta = -delta
		}
		logCtx := f.logger.WithFields(logrus.Fields{"request_id": current.id, "anchor_id": previous.id, "delta": delta})
		if delta >= f.window {
			logCtx.Debug("Same requester outside the duplicate window, both kept")
			continue
		}

		applied, err := f.repo.MarkDuplicate(ctx, current.id)
		if err != nil {
			logCtx.WithError(err).Error("Failed to mark request as duplicate, keeping it")
			result.Errors = append(result.Errors, fmt.Errorf("mark duplicate %d: %w", current.id, err))
			continue
		}
		if !applied {
			logCtx.Info("Request already has an outcome, treating as handled")
		} else {
			logCtx.Info("Request tagged as duplicate")
		}
		duplicate[i] = true
	}

	for i, c := range candidates {
		if duplicate[i] {
			result.Duplicates = append(result.Duplicates, c.id)
		} else {
			result.Survivors = append(result.Survivors, c.id)
		}
	}

	f.logger.WithField("ids", result.Survivors).Info("Deduped request ids")
	return result
}

// load reads the record and normalizes a text created_at, persisting the structured form.
func (f *DuplicateFilter) load(ctx context.Context, id int64) (dupCandidate, error) {
	c := dupCandidate{id: id}

	rec, err := f.repo.GetByID(ctx, id)
	if err != nil {
		return c, fmt.Errorf("load request %d: %w", id, err)
	}

	createdAt, err := rec.CreatedAt.Resolve()
	if err != nil {
		return c, fmt.Errorf("request %d: %w", id, err)
	}
	if rec.CreatedAt.NeedsNormalization() {
		if err := f.repo.NormalizeCreatedAt(ctx, id, createdAt); err != nil {
			// The parsed value is still good for this run.
			f.logger.WithError(err).WithField("request_id", id).Error("Failed to persist normalized created_at")
		}
	}

	c.requesterID = rec.RequesterID.String
	c.createdAt = createdAt
	c.usable = rec.RequesterID.Valid && rec.RequesterID.String != ""
	return c, nil
}
