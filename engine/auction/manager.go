package auction

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

	"github.com/go-playground/validator/v10"
	"github.com/stayswap/engine/engine/database/models"
	"github.com/stayswap/engine/engine/database/repositories"
	"github.com/stayswap/engine/engine/events"
	"github.com/stayswap/engine/engine/interfaces"
)

const (
	auctionIDLength    = 6
	MaxAuctionDuration = 30 * 24 * time.Hour
	MinAuctionDuration = time.Minute
)

// Settings configure a new auction.
type Settings struct {
	EndTime      time.Time
	MaxProposals int
}

// CashOffer is the payload of a cash proposal.
type CashOffer struct {
	Amount   int64  `validate:"required,gt=0"`
	Currency string `validate:"required,iso4217"`
}

// ProposalInput carries everything needed to submit a proposal. Booking
// proposals reference the target edge that carried them in; cash proposals
// carry an offer instead.
type ProposalInput struct {
	ProposerID      string
	Type            models.ProposalType
	SourceListingID int64
	EdgeID          int64
	Cash            *CashOffer
	Message         string
	Conditions      string
}

// Manager runs auctions: creation, proposal intake and winner selection.
type Manager struct {
	repo     repositories.AuctionRepository
	listings repositories.ListingRepository
	validate *validator.Validate
	emitter  events.Emitter
	notifier interfaces.Notifier
}

func NewManager(repo repositories.AuctionRepository, listings repositories.ListingRepository, emitter events.Emitter, notifier interfaces.Notifier) *Manager {
	if repo == nil {
		panic("auction repository cannot be nil")
	}
	if listings == nil {
		panic("listing repository cannot be nil")
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if notifier == nil {
		notifier = interfaces.NopNotifier{}
	}
	return &Manager{
		repo:     repo,
		listings: listings,
		validate: validator.New(),
		emitter:  emitter,
		notifier: notifier,
	}
}

func (m *Manager) CreateAuction(ctx context.Context, listingID int64, settings Settings) (*models.Auction, error) {
	listing, err := m.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Status != models.ListingStatusPending {
		return nil, fmt.Errorf("listing %d is %s: %w", listingID, listing.Status, models.ErrNotEligible)
	}
	if listing.Strategy != models.StrategyAuction {
		return nil, fmt.Errorf("listing %d is in %s mode: %w", listingID, listing.Strategy, models.ErrNotEligible)
	}

	existing, err := m.repo.GetActiveByListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("listing %d already has an active auction: %w", listingID, models.ErrNotEligible)
	}

	duration := time.Until(settings.EndTime)
	if duration < MinAuctionDuration || duration > MaxAuctionDuration {
		return nil, fmt.Errorf("auction end time out of range: %w", models.ErrNotEligible)
	}

	publicID, err := generateAuctionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate auction id: %w", err)
	}

	auction := &models.Auction{
		AuctionID:    publicID,
		ListingID:    listingID,
		EndTime:      settings.EndTime,
		MaxProposals: settings.MaxProposals,
	}
	if err := m.repo.Create(ctx, auction); err != nil {
		return nil, err
	}

	m.emitter.Emit(events.Event{
		Type:      events.AuctionCreated,
		ListingID: listingID,
		AuctionID: auction.ID,
		At:        time.Now(),
	})

	slog.Info("Auction created",
		slog.String("auction_id", auction.AuctionID),
		slog.Int64("listing_id", listingID),
		slog.Time("end_time", auction.EndTime))

	return auction, nil
}

func (m *Manager) SubmitProposal(ctx context.Context, auctionID int64, input ProposalInput) (*models.AuctionProposal, error) {
	if input.Type == models.ProposalCash {
		if input.Cash == nil {
			return nil, fmt.Errorf("cash proposal requires an offer: %w", models.ErrNotEligible)
		}
		if err := m.validate.Struct(input.Cash); err != nil {
			return nil, fmt.Errorf("invalid cash offer: %w", errors.Join(models.ErrNotEligible, err))
		}
	}

	tx, err := m.repo.DB().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, models.NewStoreError("submit proposal: begin", auctionID, err)
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
		return nil, models.NewStoreError("submit proposal: lock auction", auctionID, err)
	}

	if auction.Status != models.AuctionStatusActive {
		return nil, fmt.Errorf("auction %d is %s: %w", auctionID, auction.Status, models.ErrAuctionClosed)
	}
	if !auction.EndTime.After(time.Now()) {
		return nil, fmt.Errorf("auction %d past end time: %w", auctionID, models.ErrAuctionClosed)
	}

	pending, err := tx.NewSelect().
		Model((*models.AuctionProposal)(nil)).
		Where("auction_id = ? AND status = ?", auctionID, models.ProposalStatusPending).
		Count(ctx)
	if err != nil {
		return nil, models.NewStoreError("submit proposal: count pending", auctionID, err)
	}
	if pending >= auction.MaxProposals {
		return nil, fmt.Errorf("auction %d is full (%d proposals): %w", auctionID, pending, models.ErrNotEligible)
	}

	proposal := &models.AuctionProposal{
		AuctionID:       auctionID,
		ProposerID:      input.ProposerID,
		Type:            input.Type,
		SourceListingID: input.SourceListingID,
		EdgeID:          input.EdgeID,
		Message:         input.Message,
		Conditions:      input.Conditions,
	}
	if input.Cash != nil {
		proposal.CashAmount = input.Cash.Amount
		proposal.CashCurrency = input.Cash.Currency
	}

	if err := m.repo.InsertProposalTx(ctx, tx, proposal); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, models.NewStoreError("submit proposal: commit", auctionID, err)
	}

	m.notifyOwner(ctx, auction.ListingID, "auction_proposal_received", map[string]any{
		"auction_id":  auction.AuctionID,
		"proposal_id": proposal.ID,
		"type":        string(proposal.Type),
	})

	slog.Info("Proposal submitted",
		slog.Int64("auction_id", auctionID),
		slog.Int64("proposal_id", proposal.ID),
		slog.String("proposer_id", input.ProposerID),
		slog.String("proposal_type", string(input.Type)))

	return proposal, nil
}

func (m *Manager) SelectWinner(ctx context.Context, auctionID, proposalID int64) (*models.Auction, error) {
	auction, err := m.repo.SelectWinner(ctx, auctionID, proposalID)
	if err != nil {
		return nil, err
	}

	m.emitter.Emit(events.Event{
		Type:      events.AuctionEnded,
		ListingID: auction.ListingID,
		AuctionID: auction.ID,
		At:        time.Now(),
	})

	if winner, err := m.repo.GetProposal(ctx, proposalID); err == nil {
		m.notify(ctx, winner.ProposerID, "auction_won", map[string]any{
			"auction_id":  auction.AuctionID,
			"proposal_id": winner.ID,
		})
	}

	return auction, nil
}

func (m *Manager) GetByAuctionID(ctx context.Context, auctionID string) (*models.Auction, error) {
	return m.repo.GetByAuctionID(ctx, auctionID)
}

func (m *Manager) GetProposals(ctx context.Context, auctionID int64) ([]*models.AuctionProposal, error) {
	return m.repo.GetProposals(ctx, auctionID)
}

func (m *Manager) FindExpired(ctx context.Context) ([]*models.Auction, error) {
	return m.repo.FindExpired(ctx)
}

// notifyOwner resolves the listing owner through the reservation join before
// dispatching; delivery failures are logged, never propagated.
func (m *Manager) notifyOwner(ctx context.Context, listingID int64, eventType string, payload map[string]any) {
	ownerID, err := m.listings.OwnerOf(ctx, listingID)
	if err != nil {
		slog.Warn("Failed to resolve listing owner for notification",
			slog.Int64("listing_id", listingID),
			slog.Any("error", err))
		return
	}
	m.notify(ctx, ownerID, eventType, payload)
}

func (m *Manager) notify(ctx context.Context, userID string, eventType string, payload map[string]any) {
	if err := m.notifier.Notify(ctx, userID, eventType, payload); err != nil {
		slog.Warn("Notification dispatch failed",
			slog.String("user_id", userID),
			slog.String("event", eventType),
			slog.Any("error", err))
	}
}

func generateAuctionID() (string, error) {
	bytes := make([]byte, 5)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	encoded := base32.StdEncoding.EncodeToString(bytes)
	return strings.ToUpper(encoded[:auctionIDLength]), nil
}
