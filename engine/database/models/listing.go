package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ListingStatus string

const (
	ListingStatusPending   ListingStatus = "pending"
	ListingStatusAccepted  ListingStatus = "accepted"
	ListingStatusCompleted ListingStatus = "completed"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

type AcceptanceStrategy string

const (
	StrategyFirstMatch AcceptanceStrategy = "first_match"
	StrategyAuction    AcceptanceStrategy = "auction"
)

type PaymentPreference string

const (
	PaymentBooking PaymentPreference = "booking"
	PaymentCash    PaymentPreference = "cash"
	PaymentBoth    PaymentPreference = "both"
)

// Listing is a reservation offered for exchange. The owner is never stored
// here; it is always derived through the reservation reference.
type Listing struct {
	bun.BaseModel `bun:"table:listings,alias:l"`

	ID            int64         `bun:"id,pk,autoincrement"`
	ListingID     string        `bun:"listing_id,notnull,unique"`
	ReservationID int64         `bun:"reservation_id,notnull"`
	Status        ListingStatus `bun:"status,notnull"`

	Strategy    AcceptanceStrategy `bun:"strategy,notnull"`
	PaymentPref PaymentPreference  `bun:"payment_pref,notnull"`

	// Terms
	ExtraPayment int64     `bun:"extra_payment"`
	Conditions   string    `bun:"conditions"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`

	// Set once the exchange settles; opaque to this engine.
	SettlementRef string `bun:"settlement_ref"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`

	Reservation *Reservation `bun:"rel:belongs-to,join:reservation_id=id"`
}

// Expired reports whether the listing's offer window has passed. Only
// meaningful while the listing is pending; terminal states keep whatever
// expiry they had.
func (l *Listing) Expired(now time.Time) bool {
	return l.Status == ListingStatusPending && now.After(l.ExpiresAt)
}
