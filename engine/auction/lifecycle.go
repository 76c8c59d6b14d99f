package auction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/stayswap/engine/engine/database/repositories"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const defaultFinalizeConcurrency = 4

// Lifecycle finalizes expired auctions: the best-ranked pending proposal wins,
// or the auction simply ends when nothing was proposed. Idempotent and safe
// to run from multiple workers; an auction already ended elsewhere is a no-op.
type Lifecycle struct {
	manager    *Manager
	repo       repositories.AuctionRepository
	comparator Comparator
	sem        *semaphore.Weighted
}

func NewLifecycle(manager *Manager, repo repositories.AuctionRepository, comparator Comparator) *Lifecycle {
	if comparator == nil {
		comparator = CashFirst{}
	}
	return &Lifecycle{
		manager:    manager,
		repo:       repo,
		comparator: comparator,
		sem:        semaphore.NewWeighted(defaultFinalizeConcurrency),
	}
}

// SweepExpired finds and finalizes every active auction past its end time.
// Returns the number of auctions this worker actually finalized.
func (l *Lifecycle) SweepExpired(ctx context.Context) (int, error) {
	expired, err := l.repo.FindExpired(ctx)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	finalized := make(chan int64, len(expired))
	g, gctx := errgroup.WithContext(ctx)

	for _, a := range expired {
		auction := a
		g.Go(func() error {
			if err := l.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer l.sem.Release(1)

			done, err := l.finalize(gctx, auction)
			if err != nil {
				return err
			}
			if done {
				finalized <- auction.ID
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return len(finalized), err
	}
	close(finalized)

	count := 0
	for range finalized {
		count++
	}
	if count > 0 {
		slog.Info("Expired auctions finalized", slog.Int("count", count))
	}
	return count, nil
}

func (l *Lifecycle) finalize(ctx context.Context, auction *models.Auction) (bool, error) {
	finalizeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	proposals, err := l.repo.GetPendingProposals(finalizeCtx, auction.ID)
	if err != nil {
		return false, err
	}

	if best := BestProposal(proposals, l.comparator); best != nil {
		_, err = l.manager.SelectWinner(finalizeCtx, auction.ID, best.ID)
	} else {
		err = l.repo.EndWithoutWinner(finalizeCtx, auction.ID)
	}

	if err != nil {
		// Another worker got there first; the terminal-state guard makes
		// re-processing a no-op.
		if errors.Is(err, models.ErrStaleState) {
			return false, nil
		}
		slog.Error("Failed to finalize expired auction",
			slog.Int64("auction_id", auction.ID),
			slog.Any("error", err))
		return false, err
	}
	return true, nil
}
