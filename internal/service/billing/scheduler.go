// internal/service/billing/scheduler.go
package billing

import (
	"context"
	"fmt"
	"time"

	"propdesk-service/internal/domain/billing"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSchedule = "0 2 * * *"

// Runner is the part of Processor the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (*billing.RunSummary, error)
}

// Scheduler triggers Run daily; Run itself only bills on the first of the month.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger
}

func NewScheduler(runner Runner, spec string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:  runner,
		timeout: timeout,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid billing schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("billing scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop waits for a running billing tick to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("billing scheduler stop timed out")
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	summary, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled billing run failed", zap.Error(err))
		return
	}
	if summary.Skipped {
		return
	}
	s.logger.Info("scheduled billing run complete",
		zap.Int("charged", summary.Charged),
		zap.Int("failed", summary.Failed),
	)
}
