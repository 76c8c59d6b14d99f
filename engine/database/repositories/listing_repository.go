package repositories

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/uptrace/bun"
)

const listingIDLength = 6

// ListingRepository owns listing records. Ownership is never read from the
// listing row; every owner-sensitive query joins through reservations.
type ListingRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, listing *models.Listing) error
	GetByID(ctx context.Context, id int64) (*models.Listing, error)
	GetByListingID(ctx context.Context, listingID string) (*models.Listing, error)
	GetWithReservation(ctx context.Context, id int64) (*models.Listing, error)
	OwnerOf(ctx context.Context, id int64) (string, error)
	UpdateStatus(ctx context.Context, id int64, status models.ListingStatus) error
	Cancel(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64, settlementRef string) error
	RecordSettlementRef(ctx context.Context, id int64, ref string) error
	EligibleForUser(ctx context.Context, userID string, targetListingID int64) ([]*models.Listing, error)
	PendingWithReservations(ctx context.Context) ([]*models.Listing, error)
	ExpireOld(ctx context.Context) (int, error)
}

type listingRepository struct {
	db *bun.DB
}

func NewListingRepository(db *bun.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) DB() *bun.DB {
	return r.db
}

func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ReservationID == 0 {
		return fmt.Errorf("listing requires a reservation: %w", models.ErrNotEligible)
	}
	if !listing.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("listing expiry must be in the future: %w", models.ErrNotEligible)
	}
	if listing.Strategy == "" {
		listing.Strategy = models.StrategyFirstMatch
	}
	if listing.PaymentPref == "" {
		listing.PaymentPref = models.PaymentBooking
	}

	publicID, err := generateShortID()
	if err != nil {
		return fmt.Errorf("failed to generate listing id: %w", err)
	}

	listing.ListingID = publicID
	listing.Status = models.ListingStatusPending
	listing.CreatedAt = time.Now()
	listing.UpdatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(listing).Exec(ctx); err != nil {
		return models.NewStoreError("create listing", listing.ReservationID, err)
	}

	slog.Debug("Listing created",
		slog.String("type", "db"),
		slog.Int64("id", listing.ID),
		slog.String("listing_id", listing.ListingID))
	return nil
}

func (r *listingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	listing := new(models.Listing)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(listing).
			Where("l.id = ?", id).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("listing %d: %w", id, models.ErrNotFound)
		}
		return nil, models.NewStoreError("get listing", id, err)
	}
	return listing, nil
}

func (r *listingRepository) GetByListingID(ctx context.Context, listingID string) (*models.Listing, error) {
	listing := new(models.Listing)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(listing).
			Where("l.listing_id = ?", listingID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("listing %s: %w", listingID, models.ErrNotFound)
		}
		return nil, models.NewStoreError("get listing by public id", 0, err)
	}
	return listing, nil
}

func (r *listingRepository) GetWithReservation(ctx context.Context, id int64) (*models.Listing, error) {
	listing := new(models.Listing)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(listing).
			Relation("Reservation").
			Where("l.id = ?", id).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("listing %d: %w", id, models.ErrNotFound)
		}
		return nil, models.NewStoreError("get listing with reservation", id, err)
	}
	return listing, nil
}

// OwnerOf derives the listing owner through its reservation. The owner is
// intentionally not cached anywhere on the listing row.
func (r *listingRepository) OwnerOf(ctx context.Context, id int64) (string, error) {
	var ownerID string
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model((*models.Listing)(nil)).
			Column("r.owner_id").
			Join("JOIN reservations AS r ON r.id = l.reservation_id").
			Where("l.id = ?", id).
			Scan(ctx, &ownerID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("listing %d: %w", id, models.ErrNotFound)
		}
		return "", models.NewStoreError("derive listing owner", id, err)
	}
	return ownerID, nil
}

func (r *listingRepository) UpdateStatus(ctx context.Context, id int64, status models.ListingStatus) error {
	result, err := r.db.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("update listing status", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("listing %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// Cancel moves a listing to cancelled and withdraws its active targets. An
// already-expired pending listing may still be cancelled; the expiry guard
// only applies while a listing is being offered.
func (r *listingRepository) Cancel(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return models.NewStoreError("cancel listing: begin", id, err)
	}
	defer tx.Rollback()

	listing := new(models.Listing)
	err = tx.NewSelect().
		Model(listing).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("listing %d: %w", id, models.ErrNotFound)
		}
		return models.NewStoreError("cancel listing: select", id, err)
	}

	switch listing.Status {
	case models.ListingStatusPending, models.ListingStatusExpired:
	default:
		return fmt.Errorf("listing %d is %s: %w", id, listing.Status, models.ErrStaleState)
	}

	if _, err := cancelOutgoingTx(ctx, tx, id, ReasonListingCancelled); err != nil {
		return err
	}

	_, err = tx.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", models.ListingStatusCancelled).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("cancel listing: update", id, err)
	}

	if err := tx.Commit(); err != nil {
		return models.NewStoreError("cancel listing: commit", id, err)
	}
	return nil
}

func (r *listingRepository) Complete(ctx context.Context, id int64, settlementRef string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", models.ListingStatusCompleted).
		Set("settlement_ref = ?", settlementRef).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status = ?", id, models.ListingStatusAccepted).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("complete listing", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("listing %d not in accepted state: %w", id, models.ErrStaleState)
	}
	return nil
}

// RecordSettlementRef upserts the opaque external reference; re-recording the
// same reference is a no-op.
func (r *listingRepository) RecordSettlementRef(ctx context.Context, id int64, ref string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("settlement_ref = ?", ref).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND (settlement_ref IS NULL OR settlement_ref = '' OR settlement_ref = ?)", id, ref).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("record settlement ref", id, err)
	}
	return nil
}

// EligibleForUser returns the user's own pending, unexpired listings that are
// free to offer against the given target: not the target itself and not
// already committed through an accepted edge anywhere.
func (r *listingRepository) EligibleForUser(ctx context.Context, userID string, targetListingID int64) ([]*models.Listing, error) {
	var listings []*models.Listing
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&listings).
			Join("JOIN reservations AS r ON r.id = l.reservation_id").
			Where("r.owner_id = ?", userID).
			Where("l.status = ?", models.ListingStatusPending).
			Where("l.expires_at > ?", time.Now()).
			Where("l.id != ?", targetListingID).
			Where("NOT EXISTS (?)", r.db.NewSelect().
				Model((*models.TargetEdge)(nil)).
				ColumnExpr("1").
				Where("(te.source_listing_id = l.id OR te.target_listing_id = l.id) AND te.status = ?",
					models.TargetStatusAccepted)).
			Order("l.created_at DESC").
			Scan(ctx)
	})
	if err != nil {
		return nil, models.NewStoreError("eligible listings for user", targetListingID, err)
	}
	return listings, nil
}

func (r *listingRepository) PendingWithReservations(ctx context.Context) ([]*models.Listing, error) {
	var listings []*models.Listing
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&listings).
			Relation("Reservation").
			Where("l.status = ?", models.ListingStatusPending).
			Where("l.expires_at > ?", time.Now()).
			Order("l.created_at DESC").
			Scan(ctx)
	})
	if err != nil {
		return nil, models.NewStoreError("pending listings", 0, err)
	}
	return listings, nil
}

// ExpireOld sweeps pending listings past their expiry, cancelling their
// active targets. Safe to run concurrently from multiple workers: a listing
// already swept is no longer pending and is not selected again.
func (r *listingRepository) ExpireOld(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, models.NewStoreError("expire listings: begin", 0, err)
	}
	defer tx.Rollback()

	var expired []models.Listing
	err = tx.NewSelect().
		Model(&expired).
		Where("status = ? AND expires_at <= ?", models.ListingStatusPending, time.Now()).
		For("UPDATE SKIP LOCKED").
		Scan(ctx)
	if err != nil {
		return 0, models.NewStoreError("expire listings: select", 0, err)
	}
	if len(expired) == 0 {
		return 0, tx.Commit()
	}

	ids := make([]int64, 0, len(expired))
	for i := range expired {
		ids = append(ids, expired[i].ID)
		if _, err := cancelOutgoingTx(ctx, tx, expired[i].ID, ReasonListingExpired); err != nil {
			return 0, err
		}
	}

	_, err = tx.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", models.ListingStatusExpired).
		Set("updated_at = ?", time.Now()).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, models.NewStoreError("expire listings: update", 0, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, models.NewStoreError("expire listings: commit", 0, err)
	}

	slog.Info("Expired listings swept",
		slog.String("type", "db"),
		slog.Int("count", len(ids)))
	return len(ids), nil
}

// generateShortID produces a short base32 public id. A collision trips the
// unique index on listing_id and surfaces as a create failure.
func generateShortID() (string, error) {
	bytes := make([]byte, 5)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	encoded := base32.StdEncoding.EncodeToString(bytes)
	return strings.ToUpper(encoded[:listingIDLength]), nil
}
