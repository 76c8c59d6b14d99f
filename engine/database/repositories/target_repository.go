package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/stayswap/engine/engine/matching/cycle"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	ReasonRetargeting      = "retargeting"
	ReasonListingCancelled = "listing cancelled"
	ReasonListingExpired   = "listing expired"
	ReasonAuctionLost      = "auction lost"
)

// TargetRepository owns the targeting graph and its history log. Every
// mutation runs in a single serializable transaction together with the
// history rows that document it.
type TargetRepository interface {
	DB() *bun.DB
	CreateEdge(ctx context.Context, sourceListingID, targetListingID int64) (*models.TargetEdge, error)
	CancelOutgoing(ctx context.Context, sourceListingID int64, reason string) (int, error)
	AcceptEdge(ctx context.Context, edgeID int64) (*models.TargetEdge, error)
	GetEdge(ctx context.Context, edgeID int64) (*models.TargetEdge, error)
	ActiveOutgoing(ctx context.Context, sourceListingID int64) (*models.TargetEdge, error)
	ActiveIncoming(ctx context.Context, targetListingID int64) ([]*models.TargetEdge, error)
	CountActiveIncoming(ctx context.Context, targetListingID int64) (int, error)
	HasActiveOutgoing(ctx context.Context, sourceListingID int64) (bool, error)
	HistoryFor(ctx context.Context, listingID int64) ([]*models.TargetHistoryEntry, error)
}

type targetRepository struct {
	db       *bun.DB
	maxDepth int
}

func NewTargetRepository(db *bun.DB, maxCycleDepth int) TargetRepository {
	if maxCycleDepth <= 0 {
		maxCycleDepth = cycle.DefaultMaxDepth
	}
	return &targetRepository{db: db, maxDepth: maxCycleDepth}
}

func (r *targetRepository) DB() *bun.DB {
	return r.db
}

// txGraphReader reads active edges through the transaction that is about to
// mutate the graph, so the cycle check sees its own writes.
type txGraphReader struct {
	tx bun.Tx
}

func (g txGraphReader) ActiveTargetsOf(ctx context.Context, listingID int64) ([]int64, error) {
	var targets []int64
	err := g.tx.NewSelect().
		Model((*models.TargetEdge)(nil)).
		Column("target_listing_id").
		Where("source_listing_id = ? AND status = ?", listingID, models.TargetStatusActive).
		Scan(ctx, &targets)
	if err != nil {
		return nil, err
	}
	return targets, nil
}

func (r *targetRepository) CreateEdge(ctx context.Context, sourceListingID, targetListingID int64) (*models.TargetEdge, error) {
	if sourceListingID == targetListingID {
		return nil, models.ErrSelfTarget
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, models.NewStoreError("create edge: begin", sourceListingID, err)
	}
	defer tx.Rollback()

	// Lock both listings in id order so concurrent proposals between the
	// same pair cannot deadlock.
	firstID, secondID := sourceListingID, targetListingID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	var locked []models.Listing
	err = tx.NewSelect().
		Model(&locked).
		Where("id IN (?)", bun.In([]int64{firstID, secondID})).
		Order("id ASC").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, models.NewStoreError("create edge: lock listings", sourceListingID, err)
	}
	if len(locked) != 2 {
		return nil, fmt.Errorf("listing lookup: %w", models.ErrNotFound)
	}

	var source, target *models.Listing
	for i := range locked {
		switch locked[i].ID {
		case sourceListingID:
			source = &locked[i]
		case targetListingID:
			target = &locked[i]
		}
	}

	if source.Status != models.ListingStatusPending {
		return nil, fmt.Errorf("source listing is %s: %w", source.Status, models.ErrNotEligible)
	}
	if target.Status != models.ListingStatusPending {
		return nil, fmt.Errorf("target listing is %s: %w", target.Status, models.ErrNotEligible)
	}

	// First-match targets admit a single active incoming edge, held at owner
	// level: a proposer switching which of their listings they offer is a
	// retarget, not a second proposal. A fresh read inside this transaction
	// is what makes the concurrent-loser observe the error instead of
	// double-targeting.
	if target.Strategy == models.StrategyFirstMatch {
		sourceOwner, err := listingOwnerTx(ctx, tx, sourceListingID)
		if err != nil {
			return nil, models.NewStoreError("create edge: derive source owner", sourceListingID, err)
		}
		held, err := countForeignActiveIncomingTx(ctx, tx, targetListingID, sourceOwner)
		if err != nil {
			return nil, models.NewStoreError("create edge: count incoming", targetListingID, err)
		}
		if held > 0 {
			return nil, models.ErrAlreadyTargeted
		}
		if err := cancelOwnIncomingTx(ctx, tx, targetListingID, sourceOwner, sourceListingID); err != nil {
			return nil, err
		}
	}

	// Reject if the target can already reach the source through active
	// edges; completing this edge would close the loop.
	reachable, err := cycle.HasPath(ctx, txGraphReader{tx: tx}, targetListingID, sourceListingID, r.maxDepth)
	if err != nil {
		return nil, models.NewStoreError("create edge: cycle check", sourceListingID, err)
	}
	if reachable {
		return nil, models.ErrCycle
	}

	// Retargeting: any other active outgoing edge from the source is
	// cancelled in the same transaction.
	if _, err := cancelOutgoingTx(ctx, tx, sourceListingID, ReasonRetargeting); err != nil {
		return nil, err
	}

	now := time.Now()
	edge := &models.TargetEdge{
		SourceListingID: sourceListingID,
		TargetListingID: targetListingID,
		Status:          models.TargetStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := tx.NewInsert().Model(edge).Exec(ctx); err != nil {
		return nil, mapConstraintError("create edge: insert", sourceListingID, err)
	}

	if err := appendHistoryTx(ctx, tx, edge, models.HistoryCreated, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, mapConstraintError("create edge: commit", sourceListingID, err)
	}

	slog.Debug("Target edge created",
		slog.String("type", "db"),
		slog.Int64("edge_id", edge.ID),
		slog.Int64("source_listing_id", sourceListingID),
		slog.Int64("target_listing_id", targetListingID))

	return edge, nil
}

func (r *targetRepository) CancelOutgoing(ctx context.Context, sourceListingID int64, reason string) (int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, models.NewStoreError("cancel outgoing: begin", sourceListingID, err)
	}
	defer tx.Rollback()

	cancelled, err := cancelOutgoingTx(ctx, tx, sourceListingID, reason)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, models.NewStoreError("cancel outgoing: commit", sourceListingID, err)
	}
	return cancelled, nil
}

// cancelOutgoingTx cancels every active edge out of the source, pairing each
// with a history entry. Shared by retargeting, listing cancellation and the
// expiry sweep.
func cancelOutgoingTx(ctx context.Context, tx bun.Tx, sourceListingID int64, reason string) (int, error) {
	var active []models.TargetEdge
	err := tx.NewSelect().
		Model(&active).
		Where("source_listing_id = ? AND status = ?", sourceListingID, models.TargetStatusActive).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return 0, models.NewStoreError("cancel outgoing: select", sourceListingID, err)
	}
	if len(active) == 0 {
		return 0, nil
	}

	for i := range active {
		edge := &active[i]
		_, err := tx.NewUpdate().
			Model((*models.TargetEdge)(nil)).
			Set("status = ?", models.TargetStatusCancelled).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", edge.ID).
			Exec(ctx)
		if err != nil {
			return 0, models.NewStoreError("cancel outgoing: update", edge.ID, err)
		}
		if err := appendHistoryTx(ctx, tx, edge, models.HistoryCancelled, reason); err != nil {
			return 0, err
		}
	}

	return len(active), nil
}

func (r *targetRepository) AcceptEdge(ctx context.Context, edgeID int64) (*models.TargetEdge, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, models.NewStoreError("accept edge: begin", edgeID, err)
	}
	defer tx.Rollback()

	edge := new(models.TargetEdge)
	err = tx.NewSelect().
		Model(edge).
		Where("id = ?", edgeID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("edge %d: %w", edgeID, models.ErrNotFound)
		}
		return nil, models.NewStoreError("accept edge: select", edgeID, err)
	}

	if edge.Status != models.TargetStatusActive {
		return nil, fmt.Errorf("edge %d is %s: %w", edgeID, edge.Status, models.ErrStaleState)
	}

	_, err = tx.NewUpdate().
		Model((*models.TargetEdge)(nil)).
		Set("status = ?", models.TargetStatusAccepted).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", edgeID).
		Exec(ctx)
	if err != nil {
		return nil, models.NewStoreError("accept edge: update", edgeID, err)
	}

	// Both listings move toward settlement together with the edge.
	_, err = tx.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", models.ListingStatusAccepted).
		Set("updated_at = ?", time.Now()).
		Where("id IN (?) AND status = ?",
			bun.In([]int64{edge.SourceListingID, edge.TargetListingID}),
			models.ListingStatusPending).
		Exec(ctx)
	if err != nil {
		return nil, models.NewStoreError("accept edge: update listings", edgeID, err)
	}

	if err := appendHistoryTx(ctx, tx, edge, models.HistoryAccepted, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, models.NewStoreError("accept edge: commit", edgeID, err)
	}

	edge.Status = models.TargetStatusAccepted
	return edge, nil
}

func (r *targetRepository) GetEdge(ctx context.Context, edgeID int64) (*models.TargetEdge, error) {
	edge := new(models.TargetEdge)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(edge).
			Where("id = ?", edgeID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("edge %d: %w", edgeID, models.ErrNotFound)
		}
		return nil, models.NewStoreError("get edge", edgeID, err)
	}
	return edge, nil
}

func (r *targetRepository) ActiveOutgoing(ctx context.Context, sourceListingID int64) (*models.TargetEdge, error) {
	edge := new(models.TargetEdge)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(edge).
			Where("source_listing_id = ? AND status = ?", sourceListingID, models.TargetStatusActive).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, models.NewStoreError("active outgoing", sourceListingID, err)
	}
	return edge, nil
}

func (r *targetRepository) ActiveIncoming(ctx context.Context, targetListingID int64) ([]*models.TargetEdge, error) {
	var edges []*models.TargetEdge
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&edges).
			Where("target_listing_id = ? AND status = ?", targetListingID, models.TargetStatusActive).
			Order("created_at ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, models.NewStoreError("active incoming", targetListingID, err)
	}
	return edges, nil
}

func (r *targetRepository) CountActiveIncoming(ctx context.Context, targetListingID int64) (int, error) {
	var count int
	err := readWithRetry(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.db.NewSelect().
			Model((*models.TargetEdge)(nil)).
			Where("target_listing_id = ? AND status = ?", targetListingID, models.TargetStatusActive).
			Count(ctx)
		return err
	})
	if err != nil {
		return 0, models.NewStoreError("count active incoming", targetListingID, err)
	}
	return count, nil
}

func (r *targetRepository) HasActiveOutgoing(ctx context.Context, sourceListingID int64) (bool, error) {
	var exists bool
	err := readWithRetry(ctx, func(ctx context.Context) error {
		var err error
		exists, err = r.db.NewSelect().
			Model((*models.TargetEdge)(nil)).
			Where("source_listing_id = ? AND status = ?", sourceListingID, models.TargetStatusActive).
			Exists(ctx)
		return err
	})
	if err != nil {
		return false, models.NewStoreError("has active outgoing", sourceListingID, err)
	}
	return exists, nil
}

func (r *targetRepository) HistoryFor(ctx context.Context, listingID int64) ([]*models.TargetHistoryEntry, error) {
	var entries []*models.TargetHistoryEntry
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&entries).
			Where("source_listing_id = ? OR target_listing_id = ?", listingID, listingID).
			Order("created_at DESC").
			Scan(ctx)
	})
	if err != nil {
		return nil, models.NewStoreError("history for listing", listingID, err)
	}
	return entries, nil
}

func listingOwnerTx(ctx context.Context, tx bun.Tx, listingID int64) (string, error) {
	var ownerID string
	err := tx.NewSelect().
		Model((*models.Listing)(nil)).
		Column("r.owner_id").
		Join("JOIN reservations AS r ON r.id = l.reservation_id").
		Where("l.id = ?", listingID).
		Scan(ctx, &ownerID)
	return ownerID, err
}

// countForeignActiveIncomingTx counts active incoming edges whose source
// listing belongs to someone other than the proposer. Matches the resolver's
// owner-level idempotent re-check.
func countForeignActiveIncomingTx(ctx context.Context, tx bun.Tx, targetListingID int64, ownerID string) (int, error) {
	return tx.NewSelect().
		Model((*models.TargetEdge)(nil)).
		Join("JOIN listings AS sl ON sl.id = te.source_listing_id").
		Join("JOIN reservations AS sr ON sr.id = sl.reservation_id").
		Where("te.target_listing_id = ? AND te.status = ? AND sr.owner_id != ?",
			targetListingID, models.TargetStatusActive, ownerID).
		Count(ctx)
}

// cancelOwnIncomingTx retires the proposer's previous active edge onto the
// same target when they re-propose with a different listing, so a first-match
// target never holds two edges from one owner.
func cancelOwnIncomingTx(ctx context.Context, tx bun.Tx, targetListingID int64, ownerID string, excludeSourceID int64) error {
	var previous []models.TargetEdge
	err := tx.NewSelect().
		Model(&previous).
		Join("JOIN listings AS sl ON sl.id = te.source_listing_id").
		Join("JOIN reservations AS sr ON sr.id = sl.reservation_id").
		Where("te.target_listing_id = ? AND te.status = ? AND sr.owner_id = ? AND te.source_listing_id != ?",
			targetListingID, models.TargetStatusActive, ownerID, excludeSourceID).
		Scan(ctx)
	if err != nil {
		return models.NewStoreError("cancel own incoming: select", targetListingID, err)
	}

	for i := range previous {
		edge := &previous[i]
		_, err := tx.NewUpdate().
			Model((*models.TargetEdge)(nil)).
			Set("status = ?", models.TargetStatusCancelled).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", edge.ID).
			Exec(ctx)
		if err != nil {
			return models.NewStoreError("cancel own incoming: update", edge.ID, err)
		}
		if err := appendHistoryTx(ctx, tx, edge, models.HistoryCancelled, ReasonRetargeting); err != nil {
			return err
		}
	}
	return nil
}

func appendHistoryTx(ctx context.Context, tx bun.Tx, edge *models.TargetEdge, action models.HistoryAction, reason string) error {
	entry := &models.TargetHistoryEntry{
		EdgeID:          edge.ID,
		SourceListingID: edge.SourceListingID,
		TargetListingID: edge.TargetListingID,
		Action:          action,
		Reason:          reason,
		CreatedAt:       time.Now(),
	}
	if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
		return models.NewStoreError("append history", edge.ID, err)
	}
	return nil
}

// mapConstraintError converts a unique-violation from the partial index on
// active outgoing edges into the stale-state error callers retry on.
func mapConstraintError(op string, entityID int64, err error) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
		return fmt.Errorf("%s: %w", op, models.ErrStaleState)
	}
	return models.NewStoreError(op, entityID, err)
}
