// Package cleanup enforces honey-token retention.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/trapline-sec/trapline/pkg/database"
)

// Service periodically purges honey tokens deployed longer ago than the
// retention window. Captured sessions and interactions are kept forever;
// only the fabricated credentials age out, since their value as trip wires
// decays once external detectors stop watching for them.
//
// Purges are idempotent and safe to run alongside live traffic.
type Service struct {
	store         *database.Store
	retentionDays int
	interval      time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention worker. retentionDays <= 0 disables it.
func NewService(store *database.Store, retentionDays int, interval time.Duration) *Service {
	return &Service{
		store:         store,
		retentionDays: retentionDays,
		interval:      interval,
	}
}

// Start launches the background purge loop. No-op when retention is
// disabled.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	if s.retentionDays <= 0 {
		slog.Info("Token retention disabled, cleanup worker not started")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"token_retention_days", s.retentionDays,
		"interval", s.interval)
}

// Stop signals the purge loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.purgeExpiredTokens(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeExpiredTokens(ctx)
		}
	}
}

// purgeExpiredTokens runs one purge against a fresh context so an in-flight
// delete is not torn down mid-statement during shutdown.
func (s *Service) purgeExpiredTokens(_ context.Context) {
	count, err := s.store.PurgeTokensOlderThan(context.Background(), s.retentionDays)
	if err != nil {
		slog.Error("Retention: token purge failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: purged expired honey tokens", "count", count)
	}
}
