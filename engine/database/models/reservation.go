package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation is the bookable entity a listing is built on. It carries the
// true owner id; everything downstream derives ownership through it.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations,alias:r"`

	ID       int64             `bun:"id,pk,autoincrement"`
	OwnerID  string            `bun:"owner_id,notnull"`
	Status   ReservationStatus `bun:"status,notnull"`
	Location string            `bun:"location,notnull"`
	CheckIn  time.Time         `bun:"check_in,notnull"`
	CheckOut time.Time         `bun:"check_out,notnull"`
	Price    int64             `bun:"price,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
