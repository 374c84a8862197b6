package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
)

const sweepLockKey = "opsdesk:lock:unaccounted-sweep"

// UnaccountedChecker flags trips that are overdue.
type UnaccountedChecker interface {
	CheckUnaccounted(ctx context.Context) (int, error)
}

// Locker grants a short lease so only one instance sweeps at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (*persistence.Lock, bool, error)
}

// UnaccountedSweep periodically looks for vehicles that were not returned.
type UnaccountedSweep struct {
	checker  UnaccountedChecker
	locker   Locker
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewUnaccountedSweep(checker UnaccountedChecker, locker Locker, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *UnaccountedSweep {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnaccountedSweep{
		checker:  checker,
		locker:   locker,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *UnaccountedSweep) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep if the lease is free. It returns the number of
// trips flagged.
func (s *UnaccountedSweep) RunOnce(ctx context.Context) int {
	lock, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.interval)
	if err != nil {
		s.logger.Warn("sweep lock unavailable", zap.Error(err))
		s.metrics.RecordSweep("lock_error", 0)
		return 0
	}
	if !ok {
		s.logger.Debug("sweep already running elsewhere")
		s.metrics.RecordSweep("skipped", 0)
		return 0
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release sweep lock", zap.Error(err))
		}
	}()

	flagged, err := s.checker.CheckUnaccounted(ctx)
	if err != nil {
		s.logger.Error("unaccounted sweep", zap.Int("flagged", flagged), zap.Error(err))
		s.metrics.RecordSweep("error", flagged)
		return flagged
	}
	if flagged > 0 {
		s.logger.Info("flagged unaccounted trips", zap.Int("count", flagged))
	}
	s.metrics.RecordSweep("ok", flagged)
	return flagged
}
