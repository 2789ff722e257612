package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ExpiredLicenseSweeper is the part of the license service the sweeper drives.
type ExpiredLicenseSweeper interface {
	SweepExpired(ctx context.Context) ([]string, error)
}

// ExpirySweeper periodically deactivates licenses whose expiry has passed but which
// nobody has validated since. Lazy expiry on validation stays authoritative; the
// sweeper only catches licenses that are never checked again.
type ExpirySweeper struct {
	svc      ExpiredLicenseSweeper
	interval time.Duration
	logger   *slog.Logger
	running  atomic.Bool
}

func NewExpirySweeper(svc ExpiredLicenseSweeper, interval time.Duration, logger *slog.Logger) *ExpirySweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled, sweeping once immediately and then every interval.
func (s *ExpirySweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("expiry sweeper disabled")
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("expiry sweeper already running")
		return
	}
	defer s.running.Store(false)

	s.logger.Info("starting expiry sweeper", "interval", s.interval)
	s.TriggerSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down expiry sweeper")
			return
		case <-ticker.C:
			s.TriggerSweep(ctx)
		}
	}
}

// TriggerSweep runs one sweep and returns how many licenses it deactivated.
func (s *ExpirySweeper) TriggerSweep(ctx context.Context) int {
	keys, err := s.svc.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return 0
	}
	return len(keys)
}
