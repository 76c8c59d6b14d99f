package auction

import "github.com/stayswap/engine/engine/database/models"

// Comparator ranks proposals for automatic winner selection when an auction
// expires. Pluggable so deployments can change the policy without touching
// the sweep.
type Comparator interface {
	// Better reports whether a outranks b.
	Better(a, b *models.AuctionProposal) bool
}

// CashFirst is the default policy: cash proposals outrank booking proposals,
// higher offers outrank lower ones, and the earlier proposal wins ties.
type CashFirst struct{}

func (CashFirst) Better(a, b *models.AuctionProposal) bool {
	if a.Type != b.Type {
		return a.Type == models.ProposalCash
	}
	if a.Type == models.ProposalCash && a.CashAmount != b.CashAmount {
		return a.CashAmount > b.CashAmount
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// BestProposal returns the highest-ranked pending proposal, or nil when none
// are pending.
func BestProposal(proposals []*models.AuctionProposal, cmp Comparator) *models.AuctionProposal {
	var best *models.AuctionProposal
	for _, p := range proposals {
		if p.Status != models.ProposalStatusPending {
			continue
		}
		if best == nil || cmp.Better(p, best) {
			best = p
		}
	}
	return best
}
