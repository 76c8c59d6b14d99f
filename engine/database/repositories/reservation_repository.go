package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/uptrace/bun"
)

// ReservationRepository is read-mostly from the engine's perspective: the
// engine derives ownership and compatibility attributes through it but never
// mutates reservation state beyond creation.
type ReservationRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, reservation *models.Reservation) error
	GetByID(ctx context.Context, id int64) (*models.Reservation, error)
}

type reservationRepository struct {
	db *bun.DB
}

func NewReservationRepository(db *bun.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) DB() *bun.DB {
	return r.db
}

func (r *reservationRepository) Create(ctx context.Context, reservation *models.Reservation) error {
	if reservation.Status == "" {
		reservation.Status = models.ReservationStatusConfirmed
	}
	reservation.CreatedAt = time.Now()
	reservation.UpdatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(reservation).Exec(ctx); err != nil {
		return models.NewStoreError("create reservation", 0, err)
	}
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*models.Reservation, error) {
	reservation := new(models.Reservation)
	err := readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(reservation).
			Where("id = ?", id).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reservation %d: %w", id, models.ErrNotFound)
		}
		return nil, models.NewStoreError("get reservation", id, err)
	}
	return reservation, nil
}
