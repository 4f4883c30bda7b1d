package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Maintainer performs periodic housekeeping on the local cache.
type Maintainer interface {
	EvictExpired(ctx context.Context) (int64, error)
}

type Scheduler struct {
	maintainer Maintainer
	interval   time.Duration
	timeout    time.Duration
	logger     *slog.Logger
}

func NewScheduler(maintainer Maintainer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		maintainer: maintainer,
		interval:   interval,
		timeout:    time.Minute,
		logger:     logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runMaintenance(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runMaintenance(ctx)
		}
	}
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.maintainer.EvictExpired(runCtx)
	if err != nil {
		s.logger.Error("cache maintenance failed", "error", err)
		return
	}
	s.logger.Debug("cache maintenance done", "evicted", n)
}
