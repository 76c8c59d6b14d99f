package migration

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoReservation is a reservation document from the legacy platform.
type MongoReservation struct {
	OID      primitive.ObjectID `bson:"_id"`
	LegacyID int64              `bson:"legacy_id"`
	OwnerID  string             `bson:"owner_id"`
	Status   string             `bson:"status"`
	Location string             `bson:"location"`
	CheckIn  time.Time          `bson:"check_in"`
	CheckOut time.Time          `bson:"check_out"`
	Price    int64              `bson:"price"`
	Created  time.Time          `bson:"created"`
}

// MongoSwap is a listing ("swap") document from the legacy platform. The
// legacy schema still carried a redundant owner_id on the swap itself; the
// importer drops it and relies on the reservation reference.
type MongoSwap struct {
	OID           primitive.ObjectID `bson:"_id"`
	LegacyID      int64              `bson:"legacy_id"`
	ReservationID int64              `bson:"reservation_id"`
	OwnerID       string             `bson:"owner_id"`
	Status        string             `bson:"status"`
	Strategy      string             `bson:"accept_mode"`
	PaymentPref   string             `bson:"payment_pref"`
	ExtraPayment  int64              `bson:"extra_payment"`
	Conditions    string             `bson:"conditions"`
	ExpiresAt     time.Time          `bson:"expires_at"`
	Created       time.Time          `bson:"created"`
}

// MongoSwapTarget is a targeting edge document from the legacy platform.
type MongoSwapTarget struct {
	OID      primitive.ObjectID `bson:"_id"`
	LegacyID int64              `bson:"legacy_id"`
	SourceID int64              `bson:"source_swap_id"`
	TargetID int64              `bson:"target_swap_id"`
	Status   string             `bson:"status"`
	Created  time.Time          `bson:"created"`
}

// TableStats tracks per-table import progress.
type TableStats struct {
	Read     int
	Inserted int
	Skipped  int
	Failed   int
}

type MigrationStats struct {
	Tables    map[string]*TableStats
	StartTime time.Time
}

func (s *MigrationStats) table(name string) *TableStats {
	if s.Tables[name] == nil {
		s.Tables[name] = &TableStats{}
	}
	return s.Tables[name]
}
