package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"psirt_report_bot/internal/domain/request"

	"github.com/sirupsen/logrus"
)

// DefaultCounterName is the run counter used when none is configured.
const DefaultCounterName = "card_counter"

// RunCounterService bumps the process-wide run odometer.
type RunCounterService struct {
	repo   request.CounterRepository
	logger *logrus.Entry
	name   string
	now    func() time.Time
}

func NewRunCounterService(repo request.CounterRepository, logger *logrus.Entry, name string, now func() time.Time) *RunCounterService {
	if name == "" {
		name = DefaultCounterName
	}
	if now == nil {
		now = time.Now
	}
	return &RunCounterService{repo: repo, logger: logger, name: name, now: now}
}

// Increment adds one run. The first ever run creates the counter with count 1
// and stamps first_run_at; a lost creation race falls back to incrementing.
func (s *RunCounterService) Increment(ctx context.Context) (*request.RunCounter, error) {
	counter, err := s.repo.Increment(ctx, s.name)
	if err == nil {
		s.logger.WithFields(logrus.Fields{"counter": s.name, "count": counter.Count}).Info("Run counter incremented")
		return counter, nil
	}
	if !errors.Is(err, request.ErrCounterNotFound) {
		return nil, fmt.Errorf("failed to increment run counter %s: %w", s.name, err)
	}

	counter = &request.RunCounter{Name: s.name, Count: 1, FirstRunAt: s.now().UTC()}
	if err := s.repo.Create(ctx, counter); err != nil {
		if errors.Is(err, request.ErrDuplicateCounter) {
			s.logger.WithField("counter", s.name).Info("Run counter created concurrently, incrementing instead")
			counter, err = s.repo.Increment(ctx, s.name)
			if err != nil {
				return nil, fmt.Errorf("failed to increment run counter %s after create race: %w", s.name, err)
			}
			return counter, nil
		}
		return nil, fmt.Errorf("failed to create run counter %s: %w", s.name, err)
	}
	s.logger.WithFields(logrus.Fields{"counter": s.name, "first_run_at": counter.FirstRunAt}).Info("Run counter created")
	return counter, nil
}
