package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/uptrace/bun"
)

type searchListings struct {
	pending []*models.Listing
	err     error
}

func (s *searchListings) DB() *bun.DB                                               { return nil }
func (s *searchListings) Create(ctx context.Context, listing *models.Listing) error { return nil }

func (s *searchListings) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	return nil, models.ErrNotFound
}

func (s *searchListings) GetByListingID(ctx context.Context, listingID string) (*models.Listing, error) {
	return nil, models.ErrNotFound
}

func (s *searchListings) GetWithReservation(ctx context.Context, id int64) (*models.Listing, error) {
	return nil, models.ErrNotFound
}

func (s *searchListings) OwnerOf(ctx context.Context, id int64) (string, error) { return "", nil }

func (s *searchListings) UpdateStatus(ctx context.Context, id int64, status models.ListingStatus) error {
	return nil
}

func (s *searchListings) Cancel(ctx context.Context, id int64) error { return nil }

func (s *searchListings) Complete(ctx context.Context, id int64, settlementRef string) error {
	return nil
}

func (s *searchListings) RecordSettlementRef(ctx context.Context, id int64, ref string) error {
	return nil
}

func (s *searchListings) EligibleForUser(ctx context.Context, userID string, targetListingID int64) ([]*models.Listing, error) {
	return nil, nil
}

func (s *searchListings) PendingWithReservations(ctx context.Context) ([]*models.Listing, error) {
	return s.pending, s.err
}

func (s *searchListings) ExpireOld(ctx context.Context) (int, error) { return 0, nil }

func searchable(id int64, location, conditions string) *models.Listing {
	return &models.Listing{
		ID:         id,
		Status:     models.ListingStatusPending,
		Conditions: conditions,
		Reservation: &models.Reservation{
			ID:       id,
			Location: location,
		},
	}
}

func TestSearchService_Search(t *testing.T) {
	pending := []*models.Listing{
		searchable(1, "Lisbon, Portugal", ""),
		searchable(2, "Porto, Portugal", "no pets"),
		searchable(3, "Tokyo, Japan", ""),
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []int64
	}{
		{
			name:    "empty query returns everything",
			query:   "",
			wantIDs: []int64{1, 2, 3},
		},
		{
			name:    "location match",
			query:   "tokyo",
			wantIDs: []int64{3},
		},
		{
			name:    "query is case insensitive",
			query:   "LISBON",
			wantIDs: []int64{1},
		},
		{
			name:    "conditions text is searchable",
			query:   "no pets",
			wantIDs: []int64{2},
		},
		{
			name:    "no match",
			query:   "zzzzqqq",
			wantIDs: nil,
		},
	}

	s := NewSearchService(&searchListings{pending: pending})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			gotIDs := make([]int64, 0, len(got))
			for _, listing := range got {
				gotIDs = append(gotIDs, listing.ID)
			}
			if len(gotIDs) != len(tt.wantIDs) {
				t.Fatalf("Search() ids = %v, want %v", gotIDs, tt.wantIDs)
			}
			for i := range tt.wantIDs {
				if gotIDs[i] != tt.wantIDs[i] {
					t.Errorf("Search() ids = %v, want %v", gotIDs, tt.wantIDs)
					break
				}
			}
		})
	}
}

func TestSearchService_Search_SkipsListingsWithoutReservation(t *testing.T) {
	pending := []*models.Listing{
		{ID: 1, Status: models.ListingStatusPending},
		searchable(2, "Lisbon", ""),
	}

	s := NewSearchService(&searchListings{pending: pending})
	got, err := s.Search(context.Background(), "lisbon")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("Search() = %v, want only listing 2", got)
	}
}

func TestSearchService_Search_PropagatesStoreError(t *testing.T) {
	storeErr := errors.New("store down")

	s := NewSearchService(&searchListings{err: storeErr})
	if _, err := s.Search(context.Background(), "lisbon"); !errors.Is(err, storeErr) {
		t.Errorf("Search() error = %v, want %v", err, storeErr)
	}
}
