// Package events defines the observability port the engine emits structured
// events through. The engine never aggregates metrics in process; the caller
// decides storage and aggregation.
package events

import "time"

type Type string

const (
	EdgeCreated    Type = "edge_created"
	EdgeAccepted   Type = "edge_accepted"
	EdgeCancelled  Type = "edge_cancelled"
	CycleRejected  Type = "cycle_rejected"
	AuctionCreated Type = "auction_created"
	AuctionEnded   Type = "auction_ended"
	ListingExpired Type = "listing_expired"
)

type Event struct {
	Type      Type
	ListingID int64
	EdgeID    int64
	AuctionID int64
	UserID    string
	At        time.Time
}

type Emitter interface {
	Emit(event Event)
}

// Nop discards every event; the default when no emitter is injected.
type Nop struct{}

func (Nop) Emit(Event) {}
