package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TargetStatus string

const (
	TargetStatusActive    TargetStatus = "active"
	TargetStatusAccepted  TargetStatus = "accepted"
	TargetStatusRejected  TargetStatus = "rejected"
	TargetStatusCancelled TargetStatus = "cancelled"
)

// TargetEdge is a directed edge in the targeting graph: the source listing
// wants to exchange for the target listing. A source listing has at most one
// active outgoing edge at a time (enforced by a partial unique index).
type TargetEdge struct {
	bun.BaseModel `bun:"table:target_edges,alias:te"`

	ID              int64        `bun:"id,pk,autoincrement"`
	SourceListingID int64        `bun:"source_listing_id,notnull"`
	TargetListingID int64        `bun:"target_listing_id,notnull"`
	Status          TargetStatus `bun:"status,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type HistoryAction string

const (
	HistoryCreated   HistoryAction = "created"
	HistoryCancelled HistoryAction = "cancelled"
	HistoryAccepted  HistoryAction = "accepted"
	HistoryRejected  HistoryAction = "rejected"
)

// TargetHistoryEntry is an append-only record of an edge transition. Entries
// are written in the same transaction as the edge mutation they document and
// are never updated or deleted.
type TargetHistoryEntry struct {
	bun.BaseModel `bun:"table:target_history,alias:th"`

	ID              int64         `bun:"id,pk,autoincrement"`
	EdgeID          int64         `bun:"edge_id,notnull"`
	SourceListingID int64         `bun:"source_listing_id,notnull"`
	TargetListingID int64         `bun:"target_listing_id,notnull"`
	Action          HistoryAction `bun:"action,notnull"`
	Reason          string        `bun:"reason"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
