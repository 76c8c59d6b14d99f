package matching

import (
	"context"
	"errors"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/uptrace/bun"
)

var errFakeUnsupported = errors.New("not supported by fake")

// fakeListings serves reads from maps; write paths are unsupported.
type fakeListings struct {
	listings map[int64]*models.Listing
	owners   map[int64]string
	eligible []*models.Listing
}

func (f *fakeListings) DB() *bun.DB { return nil }

func (f *fakeListings) Create(ctx context.Context, listing *models.Listing) error {
	return errFakeUnsupported
}

func (f *fakeListings) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	listing, ok := f.listings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return listing, nil
}

func (f *fakeListings) GetByListingID(ctx context.Context, listingID string) (*models.Listing, error) {
	for _, listing := range f.listings {
		if listing.ListingID == listingID {
			return listing, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeListings) GetWithReservation(ctx context.Context, id int64) (*models.Listing, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeListings) OwnerOf(ctx context.Context, id int64) (string, error) {
	owner, ok := f.owners[id]
	if !ok {
		return "", models.ErrNotFound
	}
	return owner, nil
}

func (f *fakeListings) UpdateStatus(ctx context.Context, id int64, status models.ListingStatus) error {
	return errFakeUnsupported
}

func (f *fakeListings) Cancel(ctx context.Context, id int64) error { return errFakeUnsupported }

func (f *fakeListings) Complete(ctx context.Context, id int64, settlementRef string) error {
	return errFakeUnsupported
}

func (f *fakeListings) RecordSettlementRef(ctx context.Context, id int64, ref string) error {
	return errFakeUnsupported
}

func (f *fakeListings) EligibleForUser(ctx context.Context, userID string, targetListingID int64) ([]*models.Listing, error) {
	return f.eligible, nil
}

func (f *fakeListings) PendingWithReservations(ctx context.Context) ([]*models.Listing, error) {
	var out []*models.Listing
	for _, listing := range f.listings {
		if listing.Status == models.ListingStatusPending && listing.Reservation != nil {
			out = append(out, listing)
		}
	}
	return out, nil
}

func (f *fakeListings) ExpireOld(ctx context.Context) (int, error) { return 0, nil }

type fakeTargets struct {
	incoming map[int64][]*models.TargetEdge
	outgoing map[int64]bool
}

func (f *fakeTargets) DB() *bun.DB { return nil }

func (f *fakeTargets) CreateEdge(ctx context.Context, sourceListingID, targetListingID int64) (*models.TargetEdge, error) {
	return nil, errFakeUnsupported
}

func (f *fakeTargets) CancelOutgoing(ctx context.Context, sourceListingID int64, reason string) (int, error) {
	return 0, nil
}

func (f *fakeTargets) AcceptEdge(ctx context.Context, edgeID int64) (*models.TargetEdge, error) {
	return nil, errFakeUnsupported
}

func (f *fakeTargets) GetEdge(ctx context.Context, edgeID int64) (*models.TargetEdge, error) {
	return nil, models.ErrNotFound
}

func (f *fakeTargets) ActiveOutgoing(ctx context.Context, sourceListingID int64) (*models.TargetEdge, error) {
	return nil, nil
}

func (f *fakeTargets) ActiveIncoming(ctx context.Context, targetListingID int64) ([]*models.TargetEdge, error) {
	return f.incoming[targetListingID], nil
}

func (f *fakeTargets) CountActiveIncoming(ctx context.Context, targetListingID int64) (int, error) {
	return len(f.incoming[targetListingID]), nil
}

func (f *fakeTargets) HasActiveOutgoing(ctx context.Context, sourceListingID int64) (bool, error) {
	return f.outgoing[sourceListingID], nil
}

func (f *fakeTargets) HistoryFor(ctx context.Context, listingID int64) ([]*models.TargetHistoryEntry, error) {
	return nil, nil
}

type fakeAuctions struct {
	active map[int64]*models.Auction
}

func (f *fakeAuctions) DB() *bun.DB { return nil }

func (f *fakeAuctions) Create(ctx context.Context, auction *models.Auction) error {
	return errFakeUnsupported
}

func (f *fakeAuctions) GetByID(ctx context.Context, id int64) (*models.Auction, error) {
	return nil, models.ErrNotFound
}

func (f *fakeAuctions) GetByAuctionID(ctx context.Context, auctionID string) (*models.Auction, error) {
	return nil, models.ErrNotFound
}

func (f *fakeAuctions) GetActiveByListing(ctx context.Context, listingID int64) (*models.Auction, error) {
	return f.active[listingID], nil
}

func (f *fakeAuctions) GetProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error) {
	return nil, nil
}

func (f *fakeAuctions) GetPendingProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error) {
	return nil, nil
}

func (f *fakeAuctions) GetProposal(ctx context.Context, proposalID int64) (*models.AuctionProposal, error) {
	return nil, models.ErrNotFound
}

func (f *fakeAuctions) InsertProposalTx(ctx context.Context, tx bun.Tx, proposal *models.AuctionProposal) error {
	return errFakeUnsupported
}

func (f *fakeAuctions) SelectWinner(ctx context.Context, auctionID, proposalID int64) (*models.Auction, error) {
	return nil, errFakeUnsupported
}

func (f *fakeAuctions) EndWithoutWinner(ctx context.Context, auctionID int64) error {
	return errFakeUnsupported
}

func (f *fakeAuctions) FindExpired(ctx context.Context) ([]*models.Auction, error) {
	return nil, nil
}

func (f *fakeAuctions) RecordSettlementRef(ctx context.Context, auctionID int64, ref string) error {
	return errFakeUnsupported
}
