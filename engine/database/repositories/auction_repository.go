package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/uptrace/bun"
)

// AuctionRepository owns auctions and their proposal ledger. Winner selection
// is a single serializable transaction: the auction ends, the winner is
// selected, every other pending proposal is rejected and the backing edges
// follow, or none of it happens.
type AuctionRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, auction *models.Auction) error
	GetByID(ctx context.Context, id int64) (*models.Auction, error)
	GetByAuctionID(ctx context.Context, auctionID string) (*models.Auction, error)
	GetActiveByListing(ctx context.Context, listingID int64) (*models.Auction, error)
	GetProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error)
	GetPendingProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error)
	GetProposal(ctx context.Context, proposalID int64) (*models.AuctionProposal, error)
	InsertProposalTx(ctx context.Context, tx bun.Tx, proposal *models.AuctionProposal) error
	SelectWinner(ctx context.Context, auctionID, proposalID int64) (*models.Auction, error)
	EndWithoutWinner(ctx context.Context, auctionID int64) error
	FindExpired(ctx context.Context) ([]*models.Auction, error)
	RecordSettlementRef(ctx context.Context, auctionID int64, ref string) error
}

type auctionRepository struct {
	db *bun.DB
}

func NewAuctionRepository(db *bun.DB) AuctionRepository {
	return &auctionRepository{db: db}
}

func (r *auctionRepository) DB() *bun.DB {
	return r.db
}

func (r *auctionRepository) Create(ctx context.Context, auction *models.Auction) error {
	auction.Status = models.AuctionStatusActive
	if auction.MaxProposals <= 0 {
		auction.MaxProposals = models.DefaultMaxProposals
	}
	auction.CreatedAt = time.Now()
	auction.UpdatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(auction).Exec(ctx); err != nil {
		return mapConstraintError("create auction", auction.ListingID, err)
	}
	return nil
}

func (r *auctionRepository) GetByID(ctx context.Context, id int64) (*models.Auction, error) {
	auction := new(models.Auction)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(auction).
			Where("a.id = ?", id).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auction %d: %w", id, models.ErrNotFound)
		}
		return nil, models.NewStoreError("get auction", id, err)
	}
	return auction, nil
}

func (r *auctionRepository) GetByAuctionID(ctx context.Context, auctionID string) (*models.Auction, error) {
	auction := new(models.Auction)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(auction).
			Where("a.auction_id = ?", auctionID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auction %s: %w", auctionID, models.ErrNotFound)
		}
		return nil, models.NewStoreError("get auction by public id", 0, err)
	}
	return auction, nil
}

func (r *auctionRepository) GetActiveByListing(ctx context.Context, listingID int64) (*models.Auction, error) {
	auction := new(models.Auction)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(auction).
			Where("a.listing_id = ? AND a.status = ?", listingID, models.AuctionStatusActive).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, models.NewStoreError("get active auction by listing", listingID, err)
	}
	return auction, nil
}

func (r *auctionRepository) GetProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error) {
	var proposals []*models.AuctionProposal
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&proposals).
			Where("auction_id = ?", auctionID).
			Order("created_at ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, models.NewStoreError("get proposals", auctionID, err)
	}
	return proposals, nil
}

func (r *auctionRepository) GetPendingProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error) {
	var proposals []*models.AuctionProposal
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&proposals).
			Where("auction_id = ? AND status = ?", auctionID, models.ProposalStatusPending).
			Order("created_at ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, models.NewStoreError("get pending proposals", auctionID, err)
	}
	return proposals, nil
}

func (r *auctionRepository) GetProposal(ctx context.Context, proposalID int64) (*models.AuctionProposal, error) {
	proposal := new(models.AuctionProposal)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(proposal).
			Where("id = ?", proposalID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("proposal %d: %w", proposalID, models.ErrNotFound)
		}
		return nil, models.NewStoreError("get proposal", proposalID, err)
	}
	return proposal, nil
}

func (r *auctionRepository) InsertProposalTx(ctx context.Context, tx bun.Tx, proposal *models.AuctionProposal) error {
	proposal.Status = models.ProposalStatusPending
	proposal.CreatedAt = time.Now()
	proposal.UpdatedAt = time.Now()

	if _, err := tx.NewInsert().Model(proposal).Exec(ctx); err != nil {
		return models.NewStoreError("insert proposal", proposal.AuctionID, err)
	}
	return nil
}

func (r *auctionRepository) SelectWinner(ctx context.Context, auctionID, proposalID int64) (*models.Auction, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, models.NewStoreError("select winner: begin", auctionID, err)
	}
	defer tx.Rollback()

	auction := new(models.Auction)
	err = tx.NewSelect().
		Model(auction).
		Where("a.id = ?", auctionID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
		}
		return nil, models.NewStoreError("select winner: lock auction", auctionID, err)
	}

	if auction.Status != models.AuctionStatusActive {
		return nil, fmt.Errorf("auction %d already %s: %w", auctionID, auction.Status, models.ErrStaleState)
	}

	winner := new(models.AuctionProposal)
	err = tx.NewSelect().
		Model(winner).
		Where("id = ?", proposalID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("proposal %d: %w", proposalID, models.ErrNotFound)
		}
		return nil, models.NewStoreError("select winner: lock proposal", proposalID, err)
	}
	if winner.AuctionID != auctionID {
		return nil, fmt.Errorf("proposal %d does not belong to auction %d: %w", proposalID, auctionID, models.ErrNotFound)
	}
	if winner.Status != models.ProposalStatusPending {
		return nil, fmt.Errorf("proposal %d already %s: %w", proposalID, winner.Status, models.ErrStaleState)
	}

	now := time.Now()

	_, err = tx.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", models.AuctionStatusEnded).
		Set("winning_proposal_id = ?", proposalID).
		Set("ended_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", auctionID).
		Exec(ctx)
	if err != nil {
		return nil, models.NewStoreError("select winner: end auction", auctionID, err)
	}

	_, err = tx.NewUpdate().
		Model((*models.AuctionProposal)(nil)).
		Set("status = ?", models.ProposalStatusSelected).
		Set("updated_at = ?", now).
		Where("id = ?", proposalID).
		Exec(ctx)
	if err != nil {
		return nil, models.NewStoreError("select winner: mark selected", proposalID, err)
	}

	// Everything still pending loses.
	var losers []models.AuctionProposal
	err = tx.NewSelect().
		Model(&losers).
		Where("auction_id = ? AND status = ? AND id != ?", auctionID, models.ProposalStatusPending, proposalID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, models.NewStoreError("select winner: load losers", auctionID, err)
	}

	if len(losers) > 0 {
		loserIDs := make([]int64, 0, len(losers))
		for i := range losers {
			loserIDs = append(loserIDs, losers[i].ID)
		}
		_, err = tx.NewUpdate().
			Model((*models.AuctionProposal)(nil)).
			Set("status = ?", models.ProposalStatusRejected).
			Set("updated_at = ?", now).
			Where("id IN (?)", bun.In(loserIDs)).
			Exec(ctx)
		if err != nil {
			return nil, models.NewStoreError("select winner: reject losers", auctionID, err)
		}
	}

	// Booking proposals ride on target edges; the winning edge is accepted
	// and losing edges are rejected, each with a history entry.
	if winner.EdgeID != 0 {
		if err := acceptEdgeTx(ctx, tx, winner.EdgeID); err != nil {
			return nil, err
		}
	} else {
		// Cash winner: the listing still leaves the pending pool.
		_, err = tx.NewUpdate().
			Model((*models.Listing)(nil)).
			Set("status = ?", models.ListingStatusAccepted).
			Set("updated_at = ?", now).
			Where("id = ? AND status = ?", auction.ListingID, models.ListingStatusPending).
			Exec(ctx)
		if err != nil {
			return nil, models.NewStoreError("select winner: accept listing", auction.ListingID, err)
		}
	}

	for i := range losers {
		if losers[i].EdgeID == 0 {
			continue
		}
		if err := rejectEdgeTx(ctx, tx, losers[i].EdgeID, ReasonAuctionLost); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, models.NewStoreError("select winner: commit", auctionID, err)
	}

	auction.Status = models.AuctionStatusEnded
	auction.WinningProposalID = proposalID
	auction.EndedAt = &now

	slog.Info("Auction winner selected",
		slog.String("type", "db"),
		slog.Int64("auction_id", auctionID),
		slog.Int64("proposal_id", proposalID),
		slog.Int("rejected", len(losers)))

	return auction, nil
}

// EndWithoutWinner closes an auction that expired with no acceptable
// proposals. Re-running on an already-ended auction reports ErrStaleState so
// sweeps can treat it as a no-op.
func (r *auctionRepository) EndWithoutWinner(ctx context.Context, auctionID int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return models.NewStoreError("end auction: begin", auctionID, err)
	}
	defer tx.Rollback()

	auction := new(models.Auction)
	err = tx.NewSelect().
		Model(auction).
		Where("a.id = ?", auctionID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
		}
		return models.NewStoreError("end auction: lock", auctionID, err)
	}

	if auction.Status != models.AuctionStatusActive {
		return fmt.Errorf("auction %d already %s: %w", auctionID, auction.Status, models.ErrStaleState)
	}

	now := time.Now()
	_, err = tx.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", models.AuctionStatusEnded).
		Set("ended_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", auctionID).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("end auction: update", auctionID, err)
	}

	if err := tx.Commit(); err != nil {
		return models.NewStoreError("end auction: commit", auctionID, err)
	}
	return nil
}

func (r *auctionRepository) FindExpired(ctx context.Context) ([]*models.Auction, error) {
	var auctions []*models.Auction
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&auctions).
			Where("a.status = ? AND a.end_time <= ?", models.AuctionStatusActive, time.Now()).
			Order("a.end_time ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, models.NewStoreError("find expired auctions", 0, err)
	}
	return auctions, nil
}

func (r *auctionRepository) RecordSettlementRef(ctx context.Context, auctionID int64, ref string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("settlement_ref = ?", ref).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND (settlement_ref IS NULL OR settlement_ref = '' OR settlement_ref = ?)", auctionID, ref).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("record auction settlement ref", auctionID, err)
	}
	return nil
}

// acceptEdgeTx mirrors TargetRepository.AcceptEdge inside an existing
// transaction so winner selection stays all-or-nothing.
func acceptEdgeTx(ctx context.Context, tx bun.Tx, edgeID int64) error {
	edge := new(models.TargetEdge)
	err := tx.NewSelect().
		Model(edge).
		Where("id = ?", edgeID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("edge %d: %w", edgeID, models.ErrNotFound)
		}
		return models.NewStoreError("accept edge: select", edgeID, err)
	}
	if edge.Status != models.TargetStatusActive {
		return fmt.Errorf("edge %d is %s: %w", edgeID, edge.Status, models.ErrStaleState)
	}

	now := time.Now()
	_, err = tx.NewUpdate().
		Model((*models.TargetEdge)(nil)).
		Set("status = ?", models.TargetStatusAccepted).
		Set("updated_at = ?", now).
		Where("id = ?", edgeID).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("accept edge: update", edgeID, err)
	}

	_, err = tx.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", models.ListingStatusAccepted).
		Set("updated_at = ?", now).
		Where("id IN (?) AND status = ?",
			bun.In([]int64{edge.SourceListingID, edge.TargetListingID}),
			models.ListingStatusPending).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("accept edge: update listings", edgeID, err)
	}

	return appendHistoryTx(ctx, tx, edge, models.HistoryAccepted, "")
}

func rejectEdgeTx(ctx context.Context, tx bun.Tx, edgeID int64, reason string) error {
	edge := new(models.TargetEdge)
	err := tx.NewSelect().
		Model(edge).
		Where("id = ?", edgeID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return models.NewStoreError("reject edge: select", edgeID, err)
	}
	if edge.Status != models.TargetStatusActive {
		return nil
	}

	_, err = tx.NewUpdate().
		Model((*models.TargetEdge)(nil)).
		Set("status = ?", models.TargetStatusRejected).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", edgeID).
		Exec(ctx)
	if err != nil {
		return models.NewStoreError("reject edge: update", edgeID, err)
	}

	return appendHistoryTx(ctx, tx, edge, models.HistoryRejected, reason)
}
