package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/jobs"
)

const completionJobType = "event.complete"

type dueEventLister interface {
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]models.Event, error)
}

type intentApplier interface {
	Apply(ctx context.Context, principalID string, intent dto.Intent) (*dto.Outcome, error)
}

type sweepRecorder interface {
	RecordSweepCompletion()
}

// CompletionConfig tunes the completion sweeper.
type CompletionConfig struct {
	SystemPrincipalID string
	Interval          time.Duration
	Workers           int
	BatchSize         int
	MaxRetries        int
	RetryDelay        time.Duration
}

// CompletionService moves approved events whose sub-events have all ended to
// completed. Transitions go through the gateway as the system principal so
// they are authorized and audited like any other mutation.
type CompletionService struct {
	events  dueEventLister
	gateway intentApplier
	metrics sweepRecorder
	queue   *jobs.Queue
	cfg     CompletionConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewCompletionService constructs the sweeper and its worker queue.
func NewCompletionService(events dueEventLister, gateway intentApplier, metrics sweepRecorder, cfg CompletionConfig, logger *zap.Logger) *CompletionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	s := &CompletionService{
		events:  events,
		gateway: gateway,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	s.queue = jobs.NewQueue("completion", s.Handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Retryable: func(err error) bool {
			return appErrors.FromError(err).Retryable
		},
		OnExhausted: func(job jobs.Job, err error) {
			logger.Error("event completion abandoned", zap.String("event_id", job.ID), zap.Error(err))
		},
		Logger: logger,
	})
	return s
}

// Run starts the workers and sweeps every Interval until ctx is done.
func (s *CompletionService) Run(ctx context.Context) error {
	if s.cfg.SystemPrincipalID == "" {
		return fmt.Errorf("completion sweeper requires a system principal")
	}
	s.queue.Start(ctx)
	defer s.queue.Stop()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("completion sweeper started", zap.Duration("interval", s.cfg.Interval))
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("completion sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("completion sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep enqueues every event due for completion and returns how many were
// queued. Events already in flight are skipped.
func (s *CompletionService) Sweep(ctx context.Context) (int, error) {
	due, err := s.events.ListDueForCompletion(ctx, s.now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return 0, wrapStorage(err, "failed to list events due for completion")
	}
	queued := 0
	for _, event := range due {
		err := s.queue.Enqueue(jobs.Job{ID: event.ID, Type: completionJobType, Payload: event.Version})
		switch {
		case err == nil:
			queued++
		case errors.Is(err, jobs.ErrDuplicate):
		default:
			return queued, err
		}
	}
	if queued > 0 {
		s.logger.Info("events queued for completion", zap.Int("count", queued))
	}
	return queued, nil
}

// Handle completes a single event. Outcomes that mean another writer got
// there first are treated as done.
func (s *CompletionService) Handle(ctx context.Context, job jobs.Job) error {
	intent := dto.TransitionEvent{EventID: job.ID, To: models.EventStatusCompleted}
	if version, ok := job.Payload.(int64); ok {
		intent.ExpectedVersion = version
	}
	_, err := s.gateway.Apply(ctx, s.cfg.SystemPrincipalID, intent)
	if err == nil {
		if s.metrics != nil {
			s.metrics.RecordSweepCompletion()
		}
		return nil
	}
	switch appErrors.FromError(err).Code {
	case appErrors.ErrInvalidTransition.Code, appErrors.ErrStaleVersion.Code, appErrors.ErrNotFound.Code, appErrors.ErrEventNotEnded.Code:
		s.logger.Info("event completion skipped", zap.String("event_id", job.ID), zap.String("reason", appErrors.FromError(err).Code))
		return nil
	}
	s.logger.Warn("event completion failed",
		zap.String("event_id", job.ID),
		zap.String("kind", string(appErrors.KindOf(err))),
		zap.Int("attempt", job.Attempt),
		zap.Error(err))
	return err
}
