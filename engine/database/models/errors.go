package models

import (
	"errors"
	"fmt"
)

// Domain errors returned by the matching engine. Callers are expected to
// branch on these with errors.Is and surface them to end users; none of them
// are retryable.
var (
	ErrSelfTarget      = errors.New("listing cannot target itself")
	ErrCycle           = errors.New("targeting would create a cycle")
	ErrAlreadyTargeted = errors.New("listing already has an active proposal")
	ErrNotEligible     = errors.New("listing is not eligible for targeting")
	ErrAuctionClosed   = errors.New("auction is closed")
	ErrStaleState      = errors.New("state changed concurrently, re-read and retry")
	ErrNotFound        = errors.New("not found")
)

// StoreError wraps a storage-layer failure with enough context to reconstruct
// the failed operation. It is retryable by the caller for idempotent reads,
// never for mutations.
type StoreError struct {
	Op       string
	EntityID int64
	Err      error
}

func (e *StoreError) Error() string {
	if e.EntityID != 0 {
		return fmt.Sprintf("store: %s (entity %d): %v", e.Op, e.EntityID, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func NewStoreError(op string, entityID int64, err error) *StoreError {
	return &StoreError{Op: op, EntityID: entityID, Err: err}
}
