package app

import (
	"context"
	"errors"
	"time"

	"psirt_report_bot/internal/domain/advisory"
	"psirt_report_bot/internal/domain/messaging"
	"psirt_report_bot/internal/domain/request"

	"github.com/sirupsen/logrus"
)

// DispatchResult groups the ids handled by one dispatcher pass.
type DispatchResult struct {
	Delivered []int64 // Reply attempted and recorded, outcome valid
	Rejected  []int64 // Failed validation, outcome unknown_request
	Pending   []int64 // Claimed but no delivery recorded; retried once the claim goes stale
	Skipped   []int64 // Terminal, not a user request, or claimed by another run
}

// DispatcherOptions holds the variable parts of report delivery.
type DispatcherOptions struct {
	DefaultWindowDays int
	LookbackDays      int
	ClaimStaleAfter   time.Duration
	Links             LinkTable
	ReportBaseURL     string
	Now               func() time.Time
}

// Dispatcher sends the summary and the report file for validated requests.
type Dispatcher struct {
	repo      request.Repository
	transport messaging.Transport
	logger    *logrus.Entry
	opts      DispatcherOptions
}

func NewDispatcher(repo request.Repository, transport messaging.Transport, logger *logrus.Entry, opts DispatcherOptions) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{repo: repo, transport: transport, logger: logger, opts: opts}
}

// Dispatch processes ids sequentially against a snapshot fetched once per run.
// Failures stay local to the record that caused them.
func (d *Dispatcher) Dispatch(ctx context.Context, ids []int64, snapshot *advisory.Snapshot) *DispatchResult {
	result := &DispatchResult{}
	for _, id := range ids {
		switch d.dispatchOne(ctx, id, snapshot) {
		case dispatchDelivered:
			result.Delivered = append(result.Delivered, id)
		case dispatchRejected:
			result.Rejected = append(result.Rejected, id)
		case dispatchPending:
			result.Pending = append(result.Pending, id)
		default:
			result.Skipped = append(result.Skipped, id)
		}
	}

	d.logger.WithFields(logrus.Fields{
		"delivered": len(result.Delivered),
		"rejected":  len(result.Rejected),
		"pending":   len(result.Pending),
		"skipped":   len(result.Skipped),
	}).Info("Dispatch finished")
	return result
}

type dispatchState int

const (
	dispatchSkipped dispatchState = iota
	dispatchDelivered
	dispatchRejected
	dispatchPending
)

func (d *Dispatcher) dispatchOne(ctx context.Context, id int64, snapshot *advisory.Snapshot) dispatchState {
	logCtx := d.logger.WithField("request_id", id)

	rec, err := d.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, request.ErrRequestNotFound) {
			logCtx.Warn("Request disappeared before dispatch")
		} else {
			logCtx.WithError(err).Error("Failed to load request for dispatch")
		}
		return dispatchSkipped
	}

	// Only fresh user requests and delivery-pending ones may proceed.
	if rec.IsDelivered() || (rec.IsTerminal() && !rec.IsDeliveryPending()) {
		logCtx.WithField("outcome", rec.Outcome).Debug("Request already finalized, skipping")
		return dispatchSkipped
	}
	if rec.Classification != request.ClassificationUser {
		logCtx.WithField("classification", rec.Classification).Warn("Request is not classified as a user request, skipping")
		return dispatchSkipped
	}

	req, err := validateDispatch(rec, d.opts.DefaultWindowDays, d.opts.Links)
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			logCtx.WithError(err).Error("Unexpected validation failure")
			return dispatchSkipped
		}
		logCtx.WithError(err).Warn("Request cannot be dispatched, marking unknown_request")
		if _, err := d.repo.MarkUnknownRequest(ctx, id, verr.Diagnostic); err != nil {
			logCtx.WithError(err).Error("Failed to mark request unknown_request")
		}
		return dispatchRejected
	}

	now := d.opts.Now()
	claimed, err := d.repo.ClaimDispatch(ctx, id, now, now.Add(-d.opts.ClaimStaleAfter))
	if err != nil {
		logCtx.WithError(err).Error("Failed to claim request for dispatch")
		return dispatchSkipped
	}
	if !claimed {
		logCtx.Info("Request claimed by another run, skipping")
		return dispatchSkipped
	}

	counts := CountEntries(snapshot, req.WindowDays, now)
	logCtx.WithFields(logrus.Fields{
		"total_entries":  counts.Total,
		"recent_entries": counts.Recent,
		"window_days":    req.WindowDays,
	}).Info("Report counts computed")

	statusCode, sent := d.send(ctx, logCtx, req, counts)
	if !sent {
		return dispatchPending
	}

	applied, err := d.repo.RecordDelivery(ctx, id, statusCode, d.opts.Now().UTC())
	if err != nil {
		logCtx.WithError(err).Error("Failed to record delivery result")
		return dispatchPending
	}
	if !applied {
		logCtx.Warn("Delivery result was already recorded by another run")
	}
	return dispatchDelivered
}

// send delivers the summary then the attachment and returns the status of the
// last answered call. sent is false only when the summary got no answer at all.
func (d *Dispatcher) send(ctx context.Context, logCtx *logrus.Entry, req *DispatchRequest, counts ReportCounts) (int, bool) {
	summary := buildSummaryMessage(counts, req.WindowDays, d.opts.LookbackDays)
	statusCode, err := d.transport.Send(ctx, req.ReplyTarget, summary)
	if err != nil {
		logCtx.WithError(err).Error("Summary reply failed, request stays delivery-pending")
		return 0, false
	}
	logCtx.WithFields(logrus.Fields{"reply_target": req.ReplyTarget, "status_code": statusCode}).Info("Summary reply sent")

	attachment := buildAttachmentMessage(d.opts.ReportBaseURL, req)
	attachStatus, err := d.transport.Send(ctx, req.ReplyTarget, attachment)
	if err != nil {
		logCtx.WithError(err).Error("Attachment reply failed, keeping summary status")
		return statusCode, true
	}
	logCtx.WithFields(logrus.Fields{
		"file_type":   req.Variant.FileExtension(),
		"status_code": attachStatus,
	}).Info("Attachment reply sent")
	if attachStatus != statusCode {
		logCtx.WithFields(logrus.Fields{"summary_status": statusCode, "attachment_status": attachStatus}).Warn("Replies answered with different status codes, keeping the last")
	}
	return attachStatus, true
}
