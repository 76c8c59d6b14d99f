package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuctionStatus string

const (
	AuctionStatusActive AuctionStatus = "active"
	AuctionStatusEnded  AuctionStatus = "ended"
)

const DefaultMaxProposals = 10

// Auction collects competing proposals against a listing in auction mode.
// At most one active auction exists per listing.
type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID        int64         `bun:"id,pk,autoincrement"`
	AuctionID string        `bun:"auction_id,notnull,unique"`
	ListingID int64         `bun:"listing_id,notnull"`
	Status    AuctionStatus `bun:"status,notnull"`

	EndTime      time.Time `bun:"end_time,notnull"`
	MaxProposals int       `bun:"max_proposals,notnull"`

	WinningProposalID int64      `bun:"winning_proposal_id"`
	EndedAt           *time.Time `bun:"ended_at"`

	SettlementRef string `bun:"settlement_ref"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type ProposalType string

const (
	ProposalBooking ProposalType = "booking"
	ProposalCash    ProposalType = "cash"
)

type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusSelected ProposalStatus = "selected"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// AuctionProposal is a single bid in an auction. Booking proposals reference
// the target edge that carried them into the auction; cash proposals carry an
// offer amount and currency instead.
type AuctionProposal struct {
	bun.BaseModel `bun:"table:auction_proposals,alias:ap"`

	ID         int64          `bun:"id,pk,autoincrement"`
	AuctionID  int64          `bun:"auction_id,notnull"`
	ProposerID string         `bun:"proposer_id,notnull"`
	Type       ProposalType   `bun:"type,notnull"`
	Status     ProposalStatus `bun:"status,notnull"`

	// Booking proposals only.
	SourceListingID int64 `bun:"source_listing_id"`
	EdgeID          int64 `bun:"edge_id"`

	// Cash proposals only.
	CashAmount   int64  `bun:"cash_amount"`
	CashCurrency string `bun:"cash_currency"`

	Message    string `bun:"message"`
	Conditions string `bun:"conditions"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
