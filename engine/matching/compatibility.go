package matching

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/stayswap/engine/engine/database/models"
	"github.com/stayswap/engine/engine/database/repositories"
)

const (
	compatCacheSize  = 10000
	DefaultCompatTTL = 30 * time.Minute
	locationWeight   = 40
	dateWeight       = 30
	priceWeight      = 30
)

// Analysis breaks a compatibility score down for display.
type Analysis struct {
	LocationMatch   bool
	DateOverlapDays int
	PriceDeltaPct   float64
}

// Score is a compatibility verdict for a pair of listings.
type Score struct {
	Value    int
	Analysis Analysis
}

// Scorer computes the score for two listings with their reservations loaded.
// Implementations must be deterministic and symmetric in their arguments;
// results are cached under the unordered pair.
type Scorer interface {
	Score(source, target *models.Listing) Score
}

// CacheBackend is an optional shared cache behind the in-process LRU. A miss
// or failure is never an error; the score is recomputed.
type CacheBackend interface {
	Get(ctx context.Context, key string) (*Score, bool)
	Set(ctx context.Context, key string, score *Score, ttl time.Duration)
}

type cachedScore struct {
	score     Score
	timestamp time.Time
}

// Compat wraps a Scorer with a two-level cache: in-process LRU with TTL,
// optionally backed by a shared store. The cache is pure optimization; it is
// never a source of truth.
type Compat struct {
	listings repositories.ListingRepository
	scorer   Scorer
	cache    *lru.Cache
	shared   CacheBackend
	ttl      time.Duration
}

func NewCompat(listings repositories.ListingRepository, scorer Scorer, shared CacheBackend, ttl time.Duration) *Compat {
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	if ttl <= 0 {
		ttl = DefaultCompatTTL
	}
	cache, _ := lru.New(compatCacheSize)
	return &Compat{
		listings: listings,
		scorer:   scorer,
		cache:    cache,
		shared:   shared,
		ttl:      ttl,
	}
}

// Score returns the compatibility of two listings, computing and caching on
// demand.
func (c *Compat) Score(ctx context.Context, sourceListingID, targetListingID int64) (*Score, error) {
	key := pairKey(sourceListingID, targetListingID)

	if entry, ok := c.cache.Get(key); ok {
		cached := entry.(cachedScore)
		if time.Since(cached.timestamp) < c.ttl {
			return &cached.score, nil
		}
		c.cache.Remove(key)
	}

	if c.shared != nil {
		if score, ok := c.shared.Get(ctx, key); ok {
			c.cache.Add(key, cachedScore{score: *score, timestamp: time.Now()})
			return score, nil
		}
	}

	source, err := c.listings.GetWithReservation(ctx, sourceListingID)
	if err != nil {
		return nil, err
	}
	target, err := c.listings.GetWithReservation(ctx, targetListingID)
	if err != nil {
		return nil, err
	}
	if source.Reservation == nil || target.Reservation == nil {
		return nil, fmt.Errorf("listing reservation missing: %w", models.ErrNotFound)
	}

	score := c.scorer.Score(source, target)

	c.cache.Add(key, cachedScore{score: score, timestamp: time.Now()})
	if c.shared != nil {
		c.shared.Set(ctx, key, &score, c.ttl)
	}

	slog.Debug("Compatibility computed",
		slog.Int64("source_listing_id", sourceListingID),
		slog.Int64("target_listing_id", targetListingID),
		slog.Int("score", score.Value))

	return &score, nil
}

// Invalidate drops a cached pair; harmless if absent.
func (c *Compat) Invalidate(sourceListingID, targetListingID int64) {
	c.cache.Remove(pairKey(sourceListingID, targetListingID))
}

func pairKey(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("compat:%d:%d", a, b)
}

// HeuristicScorer is the default business rule: same location carries the
// most weight, then date overlap, then price proximity. Scores range 0-100.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(source, target *models.Listing) Score {
	a, b := source.Reservation, target.Reservation
	var analysis Analysis
	value := 0

	if strings.EqualFold(strings.TrimSpace(a.Location), strings.TrimSpace(b.Location)) {
		analysis.LocationMatch = true
		value += locationWeight
	}

	overlap := overlapDays(a.CheckIn, a.CheckOut, b.CheckIn, b.CheckOut)
	analysis.DateOverlapDays = overlap
	span := int(math.Max(a.CheckOut.Sub(a.CheckIn).Hours(), b.CheckOut.Sub(b.CheckIn).Hours()) / 24)
	if span > 0 {
		value += dateWeight * min(overlap, span) / span
	}

	if a.Price > 0 && b.Price > 0 {
		delta := math.Abs(float64(a.Price)-float64(b.Price)) / math.Max(float64(a.Price), float64(b.Price))
		analysis.PriceDeltaPct = delta * 100
		value += int(float64(priceWeight) * (1 - delta))
	}

	return Score{Value: value, Analysis: analysis}
}

func overlapDays(aStart, aEnd, bStart, bEnd time.Time) int {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}
