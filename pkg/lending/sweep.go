package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"library_backend/pkg/circuitbreaker"
	"library_backend/pkg/config"
	"library_backend/pkg/models"
	"library_backend/pkg/queue"
)

type SweepResult struct {
	Matched int64 `json:"matched"`
	Updated int64 `json:"updated"`
}

// Sweep re-derives the stored status of every outstanding loan against now.
// It never touches book availability.
func (l *Ledger) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.clock()

		if err := outstanding(tx).Count(&result.Matched).Error; err != nil {
			return errors.Wrap(err, "count outstanding loans")
		}

		overdue := outstanding(tx).
			Where("due_date < ? AND status <> ?", now, models.LoanOverdue).
			Updates(map[string]interface{}{"status": models.LoanOverdue, "updated_at": now})
		if overdue.Error != nil {
			return errors.Wrap(overdue.Error, "mark overdue loans")
		}

		active := outstanding(tx).
			Where("due_date >= ? AND status <> ?", now, models.LoanActive).
			Updates(map[string]interface{}{"status": models.LoanActive, "updated_at": now})
		if active.Error != nil {
			return errors.Wrap(active.Error, "mark active loans")
		}

		returned := tx.Model(&models.Loan{}).
			Where("return_date IS NOT NULL AND status <> ?", models.LoanReturned).
			Updates(map[string]interface{}{"status": models.LoanReturned, "updated_at": now})
		if returned.Error != nil {
			return errors.Wrap(returned.Error, "mark returned loans")
		}

		result.Updated = overdue.RowsAffected + active.RowsAffected + returned.RowsAffected
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}

	l.logger.Info("overdue sweep finished",
		zap.Int64("matched", result.Matched),
		zap.Int64("updated", result.Updated),
	)
	return result, nil
}

const sweepJobName = "overdue-sweep"

type SweepFunc func(ctx context.Context) (SweepResult, error)

// Sweeper runs sweeps on a schedule. Each tick enqueues a job; failed jobs are
// retried with exponential backoff and all runs go through a circuit breaker.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	attempts int
	backoff  time.Duration
	queue    *queue.Queue
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweeper(sweep SweepFunc, cfg config.Sweeper, logger *zap.Logger) *Sweeper {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Sweeper{
		sweep:    sweep,
		interval: cfg.Interval,
		attempts: attempts,
		backoff:  time.Second,
		queue:    queue.NewQueue(),
		breaker:  circuitbreaker.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerTimeout),
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. A non-positive interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("overdue sweeper disabled")
		return
	}
	s.logger.Info("overdue sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	poll := time.NewTicker(s.backoff)
	defer poll.Stop()

	s.Schedule()
	s.RunDue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("overdue sweeper stopped")
			return
		case <-ticker.C:
			s.Schedule()
			s.RunDue(ctx)
		case <-poll.C:
			s.RunDue(ctx)
		}
	}
}

// Schedule enqueues a sweep unless one is already waiting.
func (s *Sweeper) Schedule() {
	if s.queue.HasPending(sweepJobName) {
		return
	}
	s.queue.Enqueue(&queue.Job{
		ID:          uuid.New().String(),
		Name:        sweepJobName,
		RunAt:       s.now(),
		MaxAttempts: s.attempts,
	})
}

// RunDue executes every job that is due now.
func (s *Sweeper) RunDue(ctx context.Context) {
	for {
		job := s.queue.Dequeue(s.now())
		if job == nil {
			return
		}
		s.execute(ctx, job)
	}
}

func (s *Sweeper) execute(ctx context.Context, job *queue.Job) {
	job.Attempt++
	err := s.breaker.Execute(func() error {
		_, err := s.sweep(ctx)
		return err
	})
	if err == nil {
		return
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		s.logger.Warn("overdue sweep skipped, circuit breaker open", zap.String("job", job.ID))
		return
	}
	if job.Exhausted() {
		s.logger.Error("overdue sweep failed, giving up",
			zap.String("job", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		return
	}

	delay := s.backoff << (job.Attempt - 1)
	job.RunAt = s.now().Add(delay)
	s.queue.Enqueue(job)
	s.logger.Warn("overdue sweep failed, retrying",
		zap.String("job", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("retryIn", delay),
		zap.Error(err),
	)
}
