package migration

import (
	"time"

	"github.com/stayswap/engine/engine/database/models"
)

func convertReservation(mr MongoReservation) *models.Reservation {
	status := models.ReservationStatus(mr.Status)
	switch status {
	case models.ReservationStatusConfirmed, models.ReservationStatusCancelled:
	default:
		status = models.ReservationStatusConfirmed
	}

	return &models.Reservation{
		ID:        mr.LegacyID,
		OwnerID:   mr.OwnerID,
		Status:    status,
		Location:  mr.Location,
		CheckIn:   mr.CheckIn,
		CheckOut:  mr.CheckOut,
		Price:     mr.Price,
		CreatedAt: orNow(mr.Created),
		UpdatedAt: time.Now(),
	}
}

func convertSwap(ms MongoSwap, publicID string) *models.Listing {
	status := models.ListingStatus(ms.Status)
	switch status {
	case models.ListingStatusPending, models.ListingStatusAccepted,
		models.ListingStatusCompleted, models.ListingStatusCancelled,
		models.ListingStatusExpired:
	default:
		status = models.ListingStatusCancelled
	}

	strategy := models.AcceptanceStrategy(ms.Strategy)
	if strategy != models.StrategyAuction {
		strategy = models.StrategyFirstMatch
	}

	pref := models.PaymentPreference(ms.PaymentPref)
	switch pref {
	case models.PaymentBooking, models.PaymentCash, models.PaymentBoth:
	default:
		pref = models.PaymentBooking
	}

	return &models.Listing{
		ID:            ms.LegacyID,
		ListingID:     publicID,
		ReservationID: ms.ReservationID,
		Status:        status,
		Strategy:      strategy,
		PaymentPref:   pref,
		ExtraPayment:  ms.ExtraPayment,
		Conditions:    ms.Conditions,
		ExpiresAt:     ms.ExpiresAt,
		CreatedAt:     orNow(ms.Created),
		UpdatedAt:     time.Now(),
	}
}

func convertSwapTarget(mt MongoSwapTarget) *models.TargetEdge {
	status := models.TargetStatus(mt.Status)
	switch status {
	case models.TargetStatusActive, models.TargetStatusAccepted,
		models.TargetStatusRejected, models.TargetStatusCancelled:
	default:
		status = models.TargetStatusCancelled
	}

	return &models.TargetEdge{
		ID:              mt.LegacyID,
		SourceListingID: mt.SourceID,
		TargetListingID: mt.TargetID,
		Status:          status,
		CreatedAt:       orNow(mt.Created),
		UpdatedAt:       time.Now(),
	}
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
