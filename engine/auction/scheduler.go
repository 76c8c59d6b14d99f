package auction

import (
	"context"
	"log/slog"
	"time"

	"github.com/stayswap/engine/engine/database/repositories"
	"github.com/stayswap/engine/engine/events"
	"github.com/stayswap/engine/engine/logger"
	"golang.org/x/sync/errgroup"
)

const DefaultSweepInterval = 15 * time.Second

// Scheduler drives the background sweeps: expiring listings and finalizing
// auctions. Both sweeps are idempotent, so running several schedulers against
// the same database is safe.
type Scheduler struct {
	lifecycle *Lifecycle
	listings  repositories.ListingRepository
	emitter   events.Emitter
	interval  time.Duration
}

func NewScheduler(lifecycle *Lifecycle, listings repositories.ListingRepository, emitter events.Emitter, interval time.Duration) *Scheduler {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Scheduler{
		lifecycle: lifecycle,
		listings:  listings,
		emitter:   emitter,
		interval:  interval,
	}
}

// Run blocks until the context is cancelled, sweeping every interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Sweep scheduler started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sweep scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	g, gctx := errgroup.WithContext(sweepCtx)

	g.Go(func() error {
		start := time.Now()
		expired, err := s.listings.ExpireOld(gctx)
		logger.LogSweep("listing_expiry", expired, time.Since(start), err)
		if err == nil && expired > 0 {
			s.emitter.Emit(events.Event{Type: events.ListingExpired, At: time.Now()})
		}
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		finalized, err := s.lifecycle.SweepExpired(gctx)
		logger.LogSweep("auction_finalize", finalized, time.Since(start), err)
		return nil
	})

	g.Wait()
}
