package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/repository"
)

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// StaleAfter requeues rows left in processing by a relay that died.
	StaleAfter time.Duration
	// SendTimeout bounds delivery of a single event.
	SendTimeout time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// OutboxRelay polls the outbox and delivers each event to every sink.
// An event is marked processed only when all sinks accepted it.
type OutboxRelay struct {
	store   repository.OutboxRepository
	sinks   []Sink
	cfg     RelayConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewOutboxRelay(store repository.OutboxRepository, cfg RelayConfig, logger *zap.Logger, metrics *observability.Metrics, sinks ...Sink) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelay{
		store:   store,
		sinks:   sinks,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: metrics,
	}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	r.logger.Info("outbox relay started", zap.Strings("sinks", names), zap.Duration("interval", r.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if n, err := r.store.RequeueStale(ctx, r.cfg.StaleAfter); err != nil {
				r.logger.Warn("requeue stale outbox rows", zap.Error(err))
			} else if n > 0 {
				r.logger.Warn("requeued stale outbox rows", zap.Int64("count", n))
			}
			if _, err := r.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("process outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch claims one batch and delivers it. It returns the number of
// events marked processed.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	records, err := r.store.Claim(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var processed []string
	for _, rec := range records {
		if err := r.deliver(ctx, rec); err != nil {
			r.logger.Warn("outbox delivery failed",
				zap.String("event_id", rec.Event.ID),
				zap.String("event_type", string(rec.Event.Type)),
				zap.Int("attempt", rec.Attempts+1),
				zap.Error(err))
			if err := r.store.MarkFailed(ctx, rec.Event.ID, err, r.cfg.MaxAttempts); err != nil {
				r.logger.Error("mark outbox row failed", zap.String("event_id", rec.Event.ID), zap.Error(err))
			}
			continue
		}
		processed = append(processed, rec.Event.ID)
	}

	if err := r.store.MarkProcessed(ctx, processed); err != nil {
		return 0, fmt.Errorf("mark outbox processed: %w", err)
	}
	return len(processed), nil
}

func (r *OutboxRelay) deliver(ctx context.Context, rec repository.OutboxRecord) error {
	var errs []error
	for _, sink := range r.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
		err := sink.Deliver(sendCtx, rec.Event)
		cancel()
		r.metrics.RecordDelivery(sink.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
