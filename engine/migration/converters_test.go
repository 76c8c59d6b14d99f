package migration

import (
	"testing"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertReservation(t *testing.T) {
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	r := convertReservation(MongoReservation{
		LegacyID: 42,
		OwnerID:  "user-1",
		Status:   "confirmed",
		Location: "Lisbon",
		Price:    1200,
		Created:  created,
	})

	require.NotNil(t, r)
	assert.Equal(t, int64(42), r.ID)
	assert.Equal(t, "user-1", r.OwnerID)
	assert.Equal(t, models.ReservationStatusConfirmed, r.Status)
	assert.Equal(t, created, r.CreatedAt)
}

func TestConvertReservation_NormalizesUnknownStatus(t *testing.T) {
	r := convertReservation(MongoReservation{LegacyID: 1, OwnerID: "u", Status: "weird-legacy-state"})
	assert.Equal(t, models.ReservationStatusConfirmed, r.Status)
}

func TestConvertSwap(t *testing.T) {
	tests := []struct {
		name         string
		in           MongoSwap
		wantStatus   models.ListingStatus
		wantStrategy models.AcceptanceStrategy
		wantPref     models.PaymentPreference
	}{
		{
			name:         "known values pass through",
			in:           MongoSwap{LegacyID: 1, ReservationID: 2, Status: "pending", Strategy: "auction", PaymentPref: "cash"},
			wantStatus:   models.ListingStatusPending,
			wantStrategy: models.StrategyAuction,
			wantPref:     models.PaymentCash,
		},
		{
			name:         "unknown values fall back",
			in:           MongoSwap{LegacyID: 1, ReservationID: 2, Status: "???", Strategy: "???", PaymentPref: "???"},
			wantStatus:   models.ListingStatusCancelled,
			wantStrategy: models.StrategyFirstMatch,
			wantPref:     models.PaymentBooking,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertSwap(tt.in, "ABC123")
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantStrategy, got.Strategy)
			assert.Equal(t, tt.wantPref, got.PaymentPref)
			assert.Equal(t, "ABC123", got.ListingID)
			assert.Equal(t, int64(2), got.ReservationID)
		})
	}
}

func TestConvertSwapTarget_NormalizesStatus(t *testing.T) {
	got := convertSwapTarget(MongoSwapTarget{LegacyID: 5, SourceID: 1, TargetID: 2, Status: "open"})
	assert.Equal(t, models.TargetStatusCancelled, got.Status)
	assert.Equal(t, int64(1), got.SourceListingID)
	assert.Equal(t, int64(2), got.TargetListingID)

	got = convertSwapTarget(MongoSwapTarget{LegacyID: 5, SourceID: 1, TargetID: 2, Status: "active"})
	assert.Equal(t, models.TargetStatusActive, got.Status)
}

func TestConvertSwapTarget_KeepsLegacyID(t *testing.T) {
	// The stable legacy id is what makes edge insertion conflict instead of
	// duplicating on a second import run.
	got := convertSwapTarget(MongoSwapTarget{LegacyID: 77, SourceID: 1, TargetID: 2, Status: "active"})
	assert.Equal(t, int64(77), got.ID)
}

func TestOrNow(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, orNow(fixed))
	assert.False(t, orNow(time.Time{}).IsZero())
}
