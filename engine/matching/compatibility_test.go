package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stayswap/engine/engine/database/models"
)

func reservedListing(id int64, location string, checkIn time.Time, nights int, price int64) *models.Listing {
	return &models.Listing{
		ID:            id,
		ReservationID: id,
		Status:        models.ListingStatusPending,
		Reservation: &models.Reservation{
			ID:       id,
			OwnerID:  "owner",
			Location: location,
			CheckIn:  checkIn,
			CheckOut: checkIn.AddDate(0, 0, nights),
			Price:    price,
		},
	}
}

func TestHeuristicScorer_Score(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		a, b      *models.Listing
		wantValue int
		wantLoc   bool
	}{
		{
			name:      "identical pair scores full marks",
			a:         reservedListing(1, "Lisbon", base, 7, 1000),
			b:         reservedListing(2, "Lisbon", base, 7, 1000),
			wantValue: 100,
			wantLoc:   true,
		},
		{
			name:      "location compares case insensitively",
			a:         reservedListing(1, "  lisbon ", base, 7, 1000),
			b:         reservedListing(2, "LISBON", base, 7, 1000),
			wantValue: 100,
			wantLoc:   true,
		},
		{
			name:      "nothing in common scores zero",
			a:         reservedListing(1, "Lisbon", base, 7, 1000),
			b:         reservedListing(2, "Tokyo", base.AddDate(0, 2, 0), 7, 0),
			wantValue: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeuristicScorer{}.Score(tt.a, tt.b)
			if got.Value != tt.wantValue {
				t.Errorf("Score().Value = %d, want %d", got.Value, tt.wantValue)
			}
			if got.Analysis.LocationMatch != tt.wantLoc {
				t.Errorf("LocationMatch = %v, want %v", got.Analysis.LocationMatch, tt.wantLoc)
			}
		})
	}
}

func TestHeuristicScorer_Symmetric(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	a := reservedListing(1, "Lisbon", base, 7, 900)
	b := reservedListing(2, "Lisbon", base.AddDate(0, 0, 3), 7, 1200)

	ab := HeuristicScorer{}.Score(a, b)
	ba := HeuristicScorer{}.Score(b, a)
	if ab.Value != ba.Value {
		t.Errorf("score not symmetric: a->b = %d, b->a = %d", ab.Value, ba.Value)
	}
}

func Test_pairKey_Unordered(t *testing.T) {
	if pairKey(3, 7) != pairKey(7, 3) {
		t.Errorf("pairKey(3,7) = %q, pairKey(7,3) = %q, want equal", pairKey(3, 7), pairKey(7, 3))
	}
	if pairKey(3, 7) == pairKey(3, 8) {
		t.Error("distinct pairs collide")
	}
}

// countingScorer records how many times the underlying computation ran.
type countingScorer struct {
	calls int
}

func (s *countingScorer) Score(source, target *models.Listing) Score {
	s.calls++
	return Score{Value: 42}
}

func TestCompat_Score_Caches(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	listings := &fakeListings{listings: map[int64]*models.Listing{
		1: reservedListing(1, "Lisbon", base, 7, 1000),
		2: reservedListing(2, "Porto", base, 7, 1000),
	}}
	scorer := &countingScorer{}
	compat := NewCompat(listings, scorer, nil, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		score, err := compat.Score(ctx, 1, 2)
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if score.Value != 42 {
			t.Fatalf("Score().Value = %d, want 42", score.Value)
		}
	}
	// Reversed pair hits the same unordered cache entry.
	if _, err := compat.Score(ctx, 2, 1); err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scorer.calls != 1 {
		t.Errorf("scorer ran %d times, want 1", scorer.calls)
	}

	compat.Invalidate(1, 2)
	if _, err := compat.Score(ctx, 1, 2); err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scorer.calls != 2 {
		t.Errorf("scorer ran %d times after invalidate, want 2", scorer.calls)
	}
}

// flakyBackend fails every call; scoring must degrade to recomputation.
type flakyBackend struct{}

func (flakyBackend) Get(ctx context.Context, key string) (*Score, bool) { return nil, false }
func (flakyBackend) Set(ctx context.Context, key string, score *Score, ttl time.Duration) {
}

func TestCompat_Score_SharedBackendMissIsNotAnError(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	listings := &fakeListings{listings: map[int64]*models.Listing{
		1: reservedListing(1, "Lisbon", base, 7, 1000),
		2: reservedListing(2, "Lisbon", base, 7, 1000),
	}}
	compat := NewCompat(listings, nil, flakyBackend{}, 0)

	score, err := compat.Score(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if score.Value != 100 {
		t.Errorf("Score().Value = %d, want 100", score.Value)
	}
}

func TestCompat_Score_MissingReservation(t *testing.T) {
	listings := &fakeListings{listings: map[int64]*models.Listing{
		1: {ID: 1, Status: models.ListingStatusPending},
		2: {ID: 2, Status: models.ListingStatusPending},
	}}
	compat := NewCompat(listings, nil, nil, 0)

	if _, err := compat.Score(context.Background(), 1, 2); err == nil {
		t.Error("Score() error = nil, want reservation-missing error")
	}
}
