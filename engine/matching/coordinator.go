package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stayswap/engine/engine/auction"
	"github.com/stayswap/engine/engine/database/models"
	"github.com/stayswap/engine/engine/database/repositories"
	"github.com/stayswap/engine/engine/events"
	"github.com/stayswap/engine/engine/interfaces"
)

var _ interfaces.SettlementRecorder = (*Coordinator)(nil)

// Coordinator is the unit callers interact with: propose, retarget, accept,
// check eligibility. It composes the graph store, the resolver and the
// auction engine, emits events and dispatches notifications.
type Coordinator struct {
	listings repositories.ListingRepository
	targets  repositories.TargetRepository
	auctions repositories.AuctionRepository
	resolver *Resolver
	compat   *Compat
	manager  *auction.Manager
	emitter  events.Emitter
	notifier interfaces.Notifier

	// Optional; enriches notification payloads with display data.
	directory interfaces.UserDirectory
}

// WithUserDirectory attaches a directory for notification enrichment.
func (c *Coordinator) WithUserDirectory(directory interfaces.UserDirectory) *Coordinator {
	c.directory = directory
	return c
}

func NewCoordinator(
	listings repositories.ListingRepository,
	targets repositories.TargetRepository,
	auctions repositories.AuctionRepository,
	resolver *Resolver,
	compat *Compat,
	manager *auction.Manager,
	emitter events.Emitter,
	notifier interfaces.Notifier,
) *Coordinator {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if notifier == nil {
		notifier = interfaces.NopNotifier{}
	}
	return &Coordinator{
		listings: listings,
		targets:  targets,
		auctions: auctions,
		resolver: resolver,
		compat:   compat,
		manager:  manager,
		emitter:  emitter,
		notifier: notifier,
	}
}

// Propose targets one listing from another on behalf of the requesting user.
// The user must own the source listing (derived through its reservation).
// When the target runs an auction, the new edge is also entered into the
// auction as a booking proposal; a rejected proposal rolls the edge back.
func (c *Coordinator) Propose(ctx context.Context, sourceListingID, targetListingID int64, userID string) (*models.TargetEdge, error) {
	sourceOwner, err := c.listings.OwnerOf(ctx, sourceListingID)
	if err != nil {
		return nil, err
	}
	if sourceOwner != userID {
		return nil, fmt.Errorf("user %s does not own listing %d: %w", userID, sourceListingID, models.ErrNotEligible)
	}

	eligibility, err := c.resolver.Eligibility(ctx, targetListingID, userID)
	if err != nil {
		return nil, err
	}
	if !eligibility.CanTarget {
		return nil, fmt.Errorf("targeting blocked (%v): %w", eligibility.Reasons, models.ErrNotEligible)
	}

	edge, err := c.targets.CreateEdge(ctx, sourceListingID, targetListingID)
	if err != nil {
		if errors.Is(err, models.ErrCycle) {
			c.emitter.Emit(events.Event{
				Type:      events.CycleRejected,
				ListingID: sourceListingID,
				UserID:    userID,
				At:        time.Now(),
			})
		}
		return nil, err
	}

	if eligibility.Mode == models.StrategyAuction {
		if err := c.enterAuction(ctx, edge, userID); err != nil {
			return nil, err
		}
	}

	c.emitter.Emit(events.Event{
		Type:      events.EdgeCreated,
		ListingID: sourceListingID,
		EdgeID:    edge.ID,
		UserID:    userID,
		At:        time.Now(),
	})
	c.notifyListingOwner(ctx, targetListingID, "listing_targeted", map[string]any{
		"source_listing_id": sourceListingID,
		"edge_id":           edge.ID,
	})

	return edge, nil
}

// enterAuction records the freshly created edge as a booking proposal. A
// failure compensates by cancelling the edge so graph and ledger stay in
// step.
func (c *Coordinator) enterAuction(ctx context.Context, edge *models.TargetEdge, userID string) error {
	activeAuction, err := c.auctions.GetActiveByListing(ctx, edge.TargetListingID)
	if err == nil && activeAuction == nil {
		err = fmt.Errorf("auction for listing %d: %w", edge.TargetListingID, models.ErrAuctionClosed)
	}
	if err == nil {
		_, err = c.manager.SubmitProposal(ctx, activeAuction.ID, auction.ProposalInput{
			ProposerID:      userID,
			Type:            models.ProposalBooking,
			SourceListingID: edge.SourceListingID,
			EdgeID:          edge.ID,
		})
	}
	if err != nil {
		if _, cancelErr := c.targets.CancelOutgoing(ctx, edge.SourceListingID, "auction entry failed"); cancelErr != nil {
			slog.Error("Failed to roll back edge after auction rejection",
				slog.Int64("edge_id", edge.ID),
				slog.Any("error", cancelErr))
		}
		return err
	}
	return nil
}

// Retarget is Propose; the graph store cancels the previous outgoing edge in
// the same transaction that creates the new one.
func (c *Coordinator) Retarget(ctx context.Context, sourceListingID, targetListingID int64, userID string) (*models.TargetEdge, error) {
	return c.Propose(ctx, sourceListingID, targetListingID, userID)
}

// CancelTargets withdraws every active proposal made by the source listing.
func (c *Coordinator) CancelTargets(ctx context.Context, sourceListingID int64, userID string, reason string) (int, error) {
	ownerID, err := c.listings.OwnerOf(ctx, sourceListingID)
	if err != nil {
		return 0, err
	}
	if ownerID != userID {
		return 0, fmt.Errorf("user %s does not own listing %d: %w", userID, sourceListingID, models.ErrNotEligible)
	}

	if reason == "" {
		reason = repositories.ReasonRetargeting
	}
	cancelled, err := c.targets.CancelOutgoing(ctx, sourceListingID, reason)
	if err != nil {
		return 0, err
	}

	if cancelled > 0 {
		c.emitter.Emit(events.Event{
			Type:      events.EdgeCancelled,
			ListingID: sourceListingID,
			UserID:    userID,
			At:        time.Now(),
		})
	}
	return cancelled, nil
}

// Accept lets the owner of a first-match target accept the incoming proposal.
// Auction-mode listings resolve through winner selection instead.
func (c *Coordinator) Accept(ctx context.Context, edgeID int64, userID string) (*models.TargetEdge, error) {
	edge, err := c.targets.GetEdge(ctx, edgeID)
	if err != nil {
		return nil, err
	}

	ownerID, err := c.listings.OwnerOf(ctx, edge.TargetListingID)
	if err != nil {
		return nil, err
	}
	if ownerID != userID {
		return nil, fmt.Errorf("user %s does not own target listing %d: %w", userID, edge.TargetListingID, models.ErrNotEligible)
	}

	target, err := c.listings.GetByID(ctx, edge.TargetListingID)
	if err != nil {
		return nil, err
	}
	if target.Strategy == models.StrategyAuction {
		return nil, fmt.Errorf("auction listings resolve through winner selection: %w", models.ErrNotEligible)
	}

	accepted, err := c.targets.AcceptEdge(ctx, edgeID)
	if err != nil {
		return nil, err
	}

	c.emitter.Emit(events.Event{
		Type:      events.EdgeAccepted,
		ListingID: edge.TargetListingID,
		EdgeID:    edgeID,
		UserID:    userID,
		At:        time.Now(),
	})
	c.notifyListingOwner(ctx, edge.SourceListingID, "proposal_accepted", map[string]any{
		"edge_id":           edgeID,
		"target_listing_id": edge.TargetListingID,
	})

	return accepted, nil
}

func (c *Coordinator) Eligibility(ctx context.Context, targetListingID int64, userID string) (*Eligibility, error) {
	return c.resolver.Eligibility(ctx, targetListingID, userID)
}

func (c *Coordinator) EligibleListings(ctx context.Context, userID string, targetListingID int64) ([]*models.Listing, error) {
	return c.resolver.EligibleListings(ctx, userID, targetListingID)
}

func (c *Coordinator) Score(ctx context.Context, sourceListingID, targetListingID int64) (*Score, error) {
	return c.compat.Score(ctx, sourceListingID, targetListingID)
}

func (c *Coordinator) History(ctx context.Context, listingID int64) ([]*models.TargetHistoryEntry, error) {
	return c.targets.HistoryFor(ctx, listingID)
}

// RecordReference implements interfaces.SettlementRecorder over listings:
// recording the same reference twice is a no-op.
func (c *Coordinator) RecordReference(ctx context.Context, entityID int64, referenceID string) error {
	return c.listings.RecordSettlementRef(ctx, entityID, referenceID)
}

func (c *Coordinator) notifyListingOwner(ctx context.Context, listingID int64, eventType string, payload map[string]any) {
	ownerID, err := c.listings.OwnerOf(ctx, listingID)
	if err != nil {
		slog.Warn("Failed to resolve listing owner for notification",
			slog.Int64("listing_id", listingID),
			slog.Any("error", err))
		return
	}
	if c.directory != nil {
		if summary, err := c.directory.GetUserSummary(ctx, ownerID); err == nil {
			payload["display_name"] = summary.DisplayName
		}
	}
	if err := c.notifier.Notify(ctx, ownerID, eventType, payload); err != nil {
		slog.Warn("Notification dispatch failed",
			slog.String("user_id", ownerID),
			slog.String("event", eventType),
			slog.Any("error", err))
	}
}
