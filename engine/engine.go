// Package engine wires the matching engine together: storage, repositories,
// the eligibility resolver, the auction engine and the coordinator callers
// interact with.
package engine

import (
	"context"
	"fmt"

	"github.com/stayswap/engine/engine/auction"
	"github.com/stayswap/engine/engine/database"
	"github.com/stayswap/engine/engine/database/repositories"
	"github.com/stayswap/engine/engine/events"
	"github.com/stayswap/engine/engine/interfaces"
	"github.com/stayswap/engine/engine/matching"
	"github.com/stayswap/engine/engine/services"
)

type Engine struct {
	Cfg Config

	DB           *database.DB
	Listings     repositories.ListingRepository
	Reservations repositories.ReservationRepository
	Targets      repositories.TargetRepository
	Auctions     repositories.AuctionRepository

	Resolver       *matching.Resolver
	Compat         *matching.Compat
	Coordinator    *matching.Coordinator
	AuctionManager *auction.Manager
	Lifecycle      *auction.Lifecycle
	Scheduler      *auction.Scheduler
	Search         *services.SearchService

	scoreCache *services.RedisScoreCache
}

// Options inject the external collaborators. Zero values fall back to no-op
// implementations.
type Options struct {
	Emitter    events.Emitter
	Notifier   interfaces.Notifier
	Directory  interfaces.UserDirectory
	Scorer     matching.Scorer
	Comparator auction.Comparator
}

func New(cfg Config) *Engine {
	return &Engine{Cfg: cfg}
}

// Setup connects to the store, initializes and validates the schema, and
// wires every component. Must be called before anything else.
func (e *Engine) Setup(ctx context.Context, opts Options) error {
	db, err := database.New(ctx, e.Cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	e.DB = db

	if err := db.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := db.ValidateSchema(ctx); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if opts.Emitter == nil {
		opts.Emitter = events.Nop{}
	}
	if opts.Notifier == nil {
		opts.Notifier = interfaces.NopNotifier{}
	}

	bunDB := db.BunDB()
	e.Listings = repositories.NewListingRepository(bunDB)
	e.Reservations = repositories.NewReservationRepository(bunDB)
	e.Targets = repositories.NewTargetRepository(bunDB, e.Cfg.Matching.MaxCycleDepth)
	e.Auctions = repositories.NewAuctionRepository(bunDB)

	var shared matching.CacheBackend
	if e.Cfg.Redis != nil && e.Cfg.Redis.Addr != "" {
		e.scoreCache = services.NewRedisScoreCache(*e.Cfg.Redis)
		shared = e.scoreCache
	}

	e.Resolver = matching.NewResolver(e.Listings, e.Targets, e.Auctions)
	e.Compat = matching.NewCompat(e.Listings, opts.Scorer, shared, e.Cfg.Cache.TTL())
	e.AuctionManager = auction.NewManager(e.Auctions, e.Listings, opts.Emitter, opts.Notifier)
	e.Lifecycle = auction.NewLifecycle(e.AuctionManager, e.Auctions, opts.Comparator)
	e.Scheduler = auction.NewScheduler(e.Lifecycle, e.Listings, opts.Emitter, e.Cfg.Auction.SweepInterval())
	e.Search = services.NewSearchService(e.Listings)

	e.Coordinator = matching.NewCoordinator(
		e.Listings,
		e.Targets,
		e.Auctions,
		e.Resolver,
		e.Compat,
		e.AuctionManager,
		opts.Emitter,
		opts.Notifier,
	)
	if opts.Directory != nil {
		e.Coordinator.WithUserDirectory(opts.Directory)
	}

	return nil
}

func (e *Engine) Close() {
	if e.scoreCache != nil {
		e.scoreCache.Close()
	}
	if e.DB != nil {
		e.DB.Close()
	}
}
