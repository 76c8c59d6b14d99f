package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/stayswap/engine/engine/database/models"
)

func TestTargetRepository_CreateEdge_SelfTarget(t *testing.T) {
	// The self-target guard fires before any store access.
	repo := NewTargetRepository(nil, 0)

	_, err := repo.CreateEdge(context.Background(), 7, 7)
	if !errors.Is(err, models.ErrSelfTarget) {
		t.Errorf("CreateEdge(7, 7) error = %v, want %v", err, models.ErrSelfTarget)
	}
}
