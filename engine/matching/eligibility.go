package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/stayswap/engine/engine/database/repositories"
)

// Eligibility is the structured answer to "may this user target that
// listing". Reasons explain a false CanTarget so callers can surface them;
// RetargetWarning is informational only.
type Eligibility struct {
	CanTarget       bool
	Reasons         []string
	Mode            models.AcceptanceStrategy
	CurrentIncoming int
	MaxIncoming     int

	// The user already targets something else with one of their listings;
	// proposing here would retarget. A warning, never a blocker.
	RetargetWarning bool
}

// Resolver computes targeting eligibility. Ownership is always derived
// through the reservation join, never read off a listing.
type Resolver struct {
	listings repositories.ListingRepository
	targets  repositories.TargetRepository
	auctions repositories.AuctionRepository
}

func NewResolver(listings repositories.ListingRepository, targets repositories.TargetRepository, auctions repositories.AuctionRepository) *Resolver {
	return &Resolver{
		listings: listings,
		targets:  targets,
		auctions: auctions,
	}
}

func (r *Resolver) Eligibility(ctx context.Context, targetListingID int64, userID string) (*Eligibility, error) {
	target, err := r.listings.GetByID(ctx, targetListingID)
	if err != nil {
		return nil, err
	}

	result := &Eligibility{
		CanTarget:   true,
		Mode:        target.Strategy,
		MaxIncoming: 1,
	}

	ownerID, err := r.listings.OwnerOf(ctx, targetListingID)
	if err != nil {
		return nil, err
	}
	if ownerID == userID {
		result.block("cannot target own listing")
	}

	if target.Status != models.ListingStatusPending {
		result.block(fmt.Sprintf("listing is %s", target.Status))
	} else if target.Expired(time.Now()) {
		result.block("listing offer window has passed")
	}

	incoming, err := r.targets.ActiveIncoming(ctx, targetListingID)
	if err != nil {
		return nil, err
	}
	result.CurrentIncoming = len(incoming)

	switch target.Strategy {
	case models.StrategyAuction:
		if err := r.checkAuction(ctx, target, result); err != nil {
			return nil, err
		}
	default:
		if err := r.checkFirstMatch(ctx, incoming, userID, result); err != nil {
			return nil, err
		}
	}

	warn, err := r.hasOutgoingElsewhere(ctx, userID, targetListingID)
	if err != nil {
		return nil, err
	}
	result.RetargetWarning = warn

	return result, nil
}

func (r *Resolver) checkAuction(ctx context.Context, target *models.Listing, result *Eligibility) error {
	auction, err := r.auctions.GetActiveByListing(ctx, target.ID)
	if err != nil {
		return err
	}
	if auction == nil {
		result.MaxIncoming = models.DefaultMaxProposals
		result.block("auction is not open")
		return nil
	}

	result.MaxIncoming = auction.MaxProposals
	if result.MaxIncoming <= 0 {
		result.MaxIncoming = models.DefaultMaxProposals
	}

	if !auction.EndTime.After(time.Now()) {
		result.block("auction has ended")
	}
	if result.CurrentIncoming >= result.MaxIncoming {
		result.block("auction proposal limit reached")
	}
	return nil
}

// checkFirstMatch rejects when another user's edge already occupies the
// single first-match slot. The requesting user re-checking their own active
// proposal stays eligible, keeping the call idempotent.
func (r *Resolver) checkFirstMatch(ctx context.Context, incoming []*models.TargetEdge, userID string, result *Eligibility) error {
	for _, edge := range incoming {
		sourceOwner, err := r.listings.OwnerOf(ctx, edge.SourceListingID)
		if err != nil {
			return err
		}
		if sourceOwner == userID {
			return nil
		}
	}
	if len(incoming) >= 1 {
		result.block("listing already has an active proposal")
	}
	return nil
}

func (r *Resolver) hasOutgoingElsewhere(ctx context.Context, userID string, targetListingID int64) (bool, error) {
	own, err := r.listings.EligibleForUser(ctx, userID, targetListingID)
	if err != nil {
		return false, err
	}
	for _, listing := range own {
		has, err := r.targets.HasActiveOutgoing(ctx, listing.ID)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

// EligibleListings returns which of the user's own listings may be offered
// against the target.
func (r *Resolver) EligibleListings(ctx context.Context, userID string, targetListingID int64) ([]*models.Listing, error) {
	return r.listings.EligibleForUser(ctx, userID, targetListingID)
}

func (e *Eligibility) block(reason string) {
	e.CanTarget = false
	e.Reasons = append(e.Reasons, reason)
}
