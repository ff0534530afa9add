package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
)

// HousekeepingService periodically clears expired one-time codes and
// revocation entries so neither grows without bound. Expiry is always
// enforced at read time too; this is only hygiene.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Metrics  *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the deletions. Each one is independent; a failure in
// one does not stop the other.
func (s *HousekeepingService) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Interval)
	defer cancel()

	now := s.Now()
	s.Logger.Debug("starting housekeeping cleanup")

	challenges, err := s.Store.Users().ClearExpiredChallenges(ctx, now)
	if err != nil {
		s.Logger.Error("failed to clear expired challenges", "error", err)
	} else {
		s.Metrics.HousekeepingRemoved("challenges", challenges)
	}

	revocations, err := s.Store.Revocations().DeleteExpiredRevocations(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired revocations", "error", err)
	} else {
		s.Metrics.HousekeepingRemoved("revocations", revocations)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"challenges_cleared", challenges,
		"revocations_deleted", revocations,
	)
}
