package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/uptrace/bun"
)

type stubListings struct {
	listings map[int64]*models.Listing
	owners   map[int64]string
}

func (s *stubListings) DB() *bun.DB                                               { return nil }
func (s *stubListings) Create(ctx context.Context, listing *models.Listing) error { return nil }

func (s *stubListings) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	listing, ok := s.listings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return listing, nil
}

func (s *stubListings) GetByListingID(ctx context.Context, listingID string) (*models.Listing, error) {
	return nil, models.ErrNotFound
}

func (s *stubListings) GetWithReservation(ctx context.Context, id int64) (*models.Listing, error) {
	return s.GetByID(ctx, id)
}

func (s *stubListings) OwnerOf(ctx context.Context, id int64) (string, error) {
	return s.owners[id], nil
}

func (s *stubListings) UpdateStatus(ctx context.Context, id int64, status models.ListingStatus) error {
	return nil
}

func (s *stubListings) Cancel(ctx context.Context, id int64) error { return nil }

func (s *stubListings) Complete(ctx context.Context, id int64, settlementRef string) error {
	return nil
}

func (s *stubListings) RecordSettlementRef(ctx context.Context, id int64, ref string) error {
	return nil
}

func (s *stubListings) EligibleForUser(ctx context.Context, userID string, targetListingID int64) ([]*models.Listing, error) {
	return nil, nil
}

func (s *stubListings) PendingWithReservations(ctx context.Context) ([]*models.Listing, error) {
	return nil, nil
}

func (s *stubListings) ExpireOld(ctx context.Context) (int, error) { return 0, nil }

type stubAuctions struct {
	active  map[int64]*models.Auction
	created *models.Auction
}

func (s *stubAuctions) DB() *bun.DB { return nil }

func (s *stubAuctions) Create(ctx context.Context, auction *models.Auction) error {
	auction.ID = 1
	auction.Status = models.AuctionStatusActive
	s.created = auction
	return nil
}

func (s *stubAuctions) GetByID(ctx context.Context, id int64) (*models.Auction, error) {
	return nil, models.ErrNotFound
}

func (s *stubAuctions) GetByAuctionID(ctx context.Context, auctionID string) (*models.Auction, error) {
	return nil, models.ErrNotFound
}

func (s *stubAuctions) GetActiveByListing(ctx context.Context, listingID int64) (*models.Auction, error) {
	return s.active[listingID], nil
}

func (s *stubAuctions) GetProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error) {
	return nil, nil
}

func (s *stubAuctions) GetPendingProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error) {
	return nil, nil
}

func (s *stubAuctions) GetProposal(ctx context.Context, proposalID int64) (*models.AuctionProposal, error) {
	return nil, models.ErrNotFound
}

func (s *stubAuctions) InsertProposalTx(ctx context.Context, tx bun.Tx, proposal *models.AuctionProposal) error {
	return nil
}

func (s *stubAuctions) SelectWinner(ctx context.Context, auctionID, proposalID int64) (*models.Auction, error) {
	return nil, models.ErrNotFound
}

func (s *stubAuctions) EndWithoutWinner(ctx context.Context, auctionID int64) error { return nil }

func (s *stubAuctions) FindExpired(ctx context.Context) ([]*models.Auction, error) { return nil, nil }

func (s *stubAuctions) RecordSettlementRef(ctx context.Context, auctionID int64, ref string) error {
	return nil
}

func auctionListing(id int64, status models.ListingStatus, strategy models.AcceptanceStrategy) *models.Listing {
	return &models.Listing{
		ID:        id,
		Status:    status,
		Strategy:  strategy,
		ExpiresAt: time.Now().Add(48 * time.Hour),
	}
}

func TestManager_CreateAuction(t *testing.T) {
	tests := []struct {
		name     string
		listing  *models.Listing
		active   *models.Auction
		settings Settings
		wantErr  error
	}{
		{
			name:     "creates for pending auction listing",
			listing:  auctionListing(1, models.ListingStatusPending, models.StrategyAuction),
			settings: Settings{EndTime: time.Now().Add(time.Hour), MaxProposals: 5},
		},
		{
			name:     "rejects first-match listing",
			listing:  auctionListing(1, models.ListingStatusPending, models.StrategyFirstMatch),
			settings: Settings{EndTime: time.Now().Add(time.Hour)},
			wantErr:  models.ErrNotEligible,
		},
		{
			name:     "rejects non-pending listing",
			listing:  auctionListing(1, models.ListingStatusCancelled, models.StrategyAuction),
			settings: Settings{EndTime: time.Now().Add(time.Hour)},
			wantErr:  models.ErrNotEligible,
		},
		{
			name:     "rejects second concurrent auction",
			listing:  auctionListing(1, models.ListingStatusPending, models.StrategyAuction),
			active:   &models.Auction{ID: 99, ListingID: 1, Status: models.AuctionStatusActive},
			settings: Settings{EndTime: time.Now().Add(time.Hour)},
			wantErr:  models.ErrNotEligible,
		},
		{
			name:     "rejects end time in the past",
			listing:  auctionListing(1, models.ListingStatusPending, models.StrategyAuction),
			settings: Settings{EndTime: time.Now().Add(-time.Hour)},
			wantErr:  models.ErrNotEligible,
		},
		{
			name:     "rejects end time beyond the maximum",
			listing:  auctionListing(1, models.ListingStatusPending, models.StrategyAuction),
			settings: Settings{EndTime: time.Now().Add(MaxAuctionDuration + time.Hour)},
			wantErr:  models.ErrNotEligible,
		},
		{
			name:     "unknown listing",
			settings: Settings{EndTime: time.Now().Add(time.Hour)},
			wantErr:  models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listings := &stubListings{listings: map[int64]*models.Listing{}}
			if tt.listing != nil {
				listings.listings[tt.listing.ID] = tt.listing
			}
			repo := &stubAuctions{active: map[int64]*models.Auction{}}
			if tt.active != nil {
				repo.active[tt.active.ListingID] = tt.active
			}
			m := NewManager(repo, listings, nil, nil)

			got, err := m.CreateAuction(context.Background(), 1, tt.settings)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateAuction() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateAuction() error = %v", err)
			}
			if got.AuctionID == "" || len(got.AuctionID) != 6 {
				t.Errorf("AuctionID = %q, want 6-char public id", got.AuctionID)
			}
			if repo.created == nil || repo.created.ListingID != 1 {
				t.Errorf("created = %+v, want auction for listing 1", repo.created)
			}
			if got.MaxProposals != tt.settings.MaxProposals {
				t.Errorf("MaxProposals = %d, want %d", got.MaxProposals, tt.settings.MaxProposals)
			}
		})
	}
}

func TestManager_SubmitProposal_CashValidation(t *testing.T) {
	m := NewManager(&stubAuctions{}, &stubListings{}, nil, nil)

	tests := []struct {
		name string
		cash *CashOffer
	}{
		{name: "missing offer", cash: nil},
		{name: "zero amount", cash: &CashOffer{Amount: 0, Currency: "EUR"}},
		{name: "negative amount", cash: &CashOffer{Amount: -50, Currency: "EUR"}},
		{name: "missing currency", cash: &CashOffer{Amount: 100}},
		{name: "bogus currency", cash: &CashOffer{Amount: 100, Currency: "XYZ1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.SubmitProposal(context.Background(), 1, ProposalInput{
				ProposerID: "alice",
				Type:       models.ProposalCash,
				Cash:       tt.cash,
			})
			if !errors.Is(err, models.ErrNotEligible) {
				t.Errorf("SubmitProposal() error = %v, want %v", err, models.ErrNotEligible)
			}
		})
	}
}
