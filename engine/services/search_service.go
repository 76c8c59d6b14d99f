package services

import (
	"context"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/stayswap/engine/engine/database/models"
	"github.com/stayswap/engine/engine/database/repositories"
)

// ListingSearchItems implements fuzzy.Source over searchable listings.
type ListingSearchItems []ListingSearchItem

type ListingSearchItem struct {
	Listing *models.Listing
	Text    string
}

func (items ListingSearchItems) Len() int {
	return len(items)
}

func (items ListingSearchItems) String(i int) string {
	return items[i].Text
}

// SearchService finds pending listings by free-text location queries, used to
// populate "find something to target" flows.
type SearchService struct {
	listings repositories.ListingRepository
}

func NewSearchService(listings repositories.ListingRepository) *SearchService {
	return &SearchService{listings: listings}
}

// Search returns pending, unexpired listings ranked by fuzzy relevance to the
// query. An empty query returns everything in recency order.
func (s *SearchService) Search(ctx context.Context, query string) ([]*models.Listing, error) {
	listings, err := s.listings.PendingWithReservations(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return listings, nil
	}

	items := buildSearchItems(listings)
	matches := fuzzy.FindFrom(strings.ToLower(query), items)

	results := make([]*models.Listing, 0, len(matches))
	for _, match := range matches {
		results = append(results, items[match.Index].Listing)
	}
	return results, nil
}

func buildSearchItems(listings []*models.Listing) ListingSearchItems {
	items := make(ListingSearchItems, 0, len(listings))
	for _, listing := range listings {
		if listing.Reservation == nil {
			continue
		}
		text := strings.ToLower(listing.Reservation.Location)
		if listing.Conditions != "" {
			text += " " + strings.ToLower(listing.Conditions)
		}
		items = append(items, ListingSearchItem{Listing: listing, Text: text})
	}
	return items
}
