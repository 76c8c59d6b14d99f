package auction

import (
	"testing"
	"time"

	"github.com/stayswap/engine/engine/database/models"
)

func cashProposal(id, amount int64, createdAt time.Time) *models.AuctionProposal {
	return &models.AuctionProposal{
		ID:         id,
		Type:       models.ProposalCash,
		Status:     models.ProposalStatusPending,
		CashAmount: amount,
		CreatedAt:  createdAt,
	}
}

func bookingProposal(id int64, createdAt time.Time) *models.AuctionProposal {
	return &models.AuctionProposal{
		ID:        id,
		Type:      models.ProposalBooking,
		Status:    models.ProposalStatusPending,
		CreatedAt: createdAt,
	}
}

func TestCashFirst_Better(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		a, b *models.AuctionProposal
		want bool
	}{
		{
			name: "cash outranks booking",
			a:    cashProposal(1, 100, now),
			b:    bookingProposal(2, now.Add(-time.Hour)),
			want: true,
		},
		{
			name: "booking never outranks cash",
			a:    bookingProposal(1, now.Add(-time.Hour)),
			b:    cashProposal(2, 1, now),
			want: false,
		},
		{
			name: "higher cash wins",
			a:    cashProposal(1, 500, now),
			b:    cashProposal(2, 200, now.Add(-time.Hour)),
			want: true,
		},
		{
			name: "equal cash breaks tie on age",
			a:    cashProposal(1, 500, now.Add(-time.Hour)),
			b:    cashProposal(2, 500, now),
			want: true,
		},
		{
			name: "earlier booking wins",
			a:    bookingProposal(1, now.Add(-time.Hour)),
			b:    bookingProposal(2, now),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (CashFirst{}).Better(tt.a, tt.b); got != tt.want {
				t.Errorf("Better() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBestProposal(t *testing.T) {
	now := time.Now()
	rejected := cashProposal(9, 9999, now)
	rejected.Status = models.ProposalStatusRejected

	tests := []struct {
		name      string
		proposals []*models.AuctionProposal
		wantID    int64
	}{
		{
			name:   "empty slice",
			wantID: 0,
		},
		{
			name:      "only non-pending proposals",
			proposals: []*models.AuctionProposal{rejected},
			wantID:    0,
		},
		{
			name: "best cash beats everything",
			proposals: []*models.AuctionProposal{
				bookingProposal(1, now.Add(-2*time.Hour)),
				cashProposal(2, 100, now),
				cashProposal(3, 300, now),
				rejected,
			},
			wantID: 3,
		},
		{
			name: "oldest booking wins without cash",
			proposals: []*models.AuctionProposal{
				bookingProposal(1, now),
				bookingProposal(2, now.Add(-time.Hour)),
			},
			wantID: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BestProposal(tt.proposals, CashFirst{})
			var gotID int64
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.wantID {
				t.Errorf("BestProposal() = %d, want %d", gotID, tt.wantID)
			}
		})
	}
}
