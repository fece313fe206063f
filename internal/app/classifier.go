package app

import (
	"context"
	"errors"

	"psirt_report_bot/internal/domain/request"

	"github.com/sirupsen/logrus"
)

// ClassifyResult splits the surviving ids by sender type.
type ClassifyResult struct {
	Users   []int64
	Bots    []int64
	Invalid []int64 // Malformed records marked unknown_request
	Skipped []int64 // Already terminal or gone
}

func (r *ClassifyResult) UserCount() int    { return len(r.Users) }
func (r *ClassifyResult) BotCount() int     { return len(r.Bots) }
func (r *ClassifyResult) InvalidCount() int { return len(r.Invalid) }

// Classifier decides whether a request came from a person or an automated sender.
type Classifier struct {
	repo   request.Repository
	logger *logrus.Entry
}

func NewClassifier(repo request.Repository, logger *logrus.Entry) *Classifier {
	return &Classifier{repo: repo, logger: logger}
}

// ClassifySender is the pure classification rule.
func ClassifySender(displayName string) (request.Classification, request.Outcome) {
	if displayName == request.BotDisplayName {
		return request.ClassificationBot, request.OutcomeUnknownRequest
	}
	return request.ClassificationUser, request.OutcomeNone
}

// Classify re-reads each record, since a concurrent run may have moved it on,
// and persists its classification. One bad record never stops the batch.
func (c *Classifier) Classify(ctx context.Context, ids []int64) *ClassifyResult {
	result := &ClassifyResult{}

	for _, id := range ids {
		logCtx := c.logger.WithField("request_id", id)

		rec, err := c.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, request.ErrRequestNotFound) {
				logCtx.Warn("Request disappeared before classification")
			} else {
				logCtx.WithError(err).Error("Failed to load request for classification")
			}
			result.Skipped = append(result.Skipped, id)
			continue
		}

		if rec.IsTerminal() {
			logCtx.WithField("outcome", rec.Outcome).Debug("Request already has an outcome, skipping")
			result.Skipped = append(result.Skipped, id)
			continue
		}

		if !rec.SenderDisplayName.Valid || !rec.RequesterID.Valid || rec.RequesterID.String == "" {
			logCtx.Warn("Malformed request, marking unknown_request")
			if _, err := c.repo.MarkUnknownRequest(ctx, id, request.DiagnosticMalformed); err != nil {
				logCtx.WithError(err).Error("Failed to mark malformed request")
			}
			result.Invalid = append(result.Invalid, id)
			continue
		}

		classification, outcome := ClassifySender(rec.SenderDisplayName.String)
		applied, err := c.repo.Classify(ctx, id, classification, outcome)
		if err != nil {
			logCtx.WithError(err).Error("Failed to store classification")
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if !applied {
			logCtx.Info("Request finalized by another run during classification")
			result.Skipped = append(result.Skipped, id)
			continue
		}

		if classification == request.ClassificationBot {
			logCtx.Info("Request sent by an automated sender")
			result.Bots = append(result.Bots, id)
		} else {
			result.Users = append(result.Users, id)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"users":   result.UserCount(),
		"bots":    result.BotCount(),
		"invalid": result.InvalidCount(),
		"skipped": len(result.Skipped),
	}).Info("Classification finished")
	return result
}
