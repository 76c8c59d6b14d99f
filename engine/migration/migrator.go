package migration

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrator imports the legacy MongoDB swap platform into the engine's
// Postgres schema: reservations first, then listings, then targeting edges.
// Edges referencing listings that did not survive the import are skipped,
// never half-written.
type Migrator struct {
	pgDB      *bun.DB
	mongoDB   *mongo.Database
	batchSize int
	stats     MigrationStats

	// Use pgx CopyFrom for the reservation bulk load.
	useCopy bool
	pool    *pgxpool.Pool

	collNames map[string]string
}

func NewMigrator(pgDB *bun.DB, mongoDB *mongo.Database) *Migrator {
	return &Migrator{
		pgDB:      pgDB,
		mongoDB:   mongoDB,
		batchSize: 1000,
		stats: MigrationStats{
			Tables:    make(map[string]*TableStats),
			StartTime: time.Now(),
		},
		collNames: map[string]string{
			"reservations": "reservations",
			"swaps":        "swaps",
			"swaptargets":  "swaptargets",
		},
	}
}

// WithCopyFrom enables the pgx bulk-load fast path for reservations.
func (m *Migrator) WithCopyFrom(pool *pgxpool.Pool) *Migrator {
	m.useCopy = true
	m.pool = pool
	return m
}

func (m *Migrator) Run(ctx context.Context) (MigrationStats, error) {
	slog.Info("Legacy import started")

	if err := m.importReservations(ctx); err != nil {
		return m.stats, fmt.Errorf("failed to import reservations: %w", err)
	}
	if err := m.importSwaps(ctx); err != nil {
		return m.stats, fmt.Errorf("failed to import swaps: %w", err)
	}
	if err := m.importSwapTargets(ctx); err != nil {
		return m.stats, fmt.Errorf("failed to import swap targets: %w", err)
	}

	for name, stats := range m.stats.Tables {
		slog.Info("Import table complete",
			slog.String("table", name),
			slog.Int("read", stats.Read),
			slog.Int("inserted", stats.Inserted),
			slog.Int("skipped", stats.Skipped),
			slog.Int("failed", stats.Failed))
	}
	slog.Info("Legacy import finished",
		slog.Duration("took", time.Since(m.stats.StartTime)))

	return m.stats, nil
}

func (m *Migrator) importReservations(ctx context.Context) error {
	stats := m.stats.table("reservations")

	cursor, err := m.mongoDB.Collection(m.collNames["reservations"]).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var batch []*models.Reservation
	for cursor.Next(ctx) {
		var mr MongoReservation
		if err := cursor.Decode(&mr); err != nil {
			stats.Failed++
			continue
		}
		stats.Read++

		if mr.LegacyID == 0 || mr.OwnerID == "" {
			stats.Skipped++
			continue
		}

		batch = append(batch, convertReservation(mr))
		if len(batch) >= m.batchSize {
			if err := m.flushReservations(ctx, batch, stats); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := m.flushReservations(ctx, batch, stats); err != nil {
			return err
		}
	}
	return cursor.Err()
}

func (m *Migrator) flushReservations(ctx context.Context, batch []*models.Reservation, stats *TableStats) error {
	if m.useCopy && m.pool != nil {
		if err := m.copyReservations(ctx, batch); err == nil {
			stats.Inserted += len(batch)
			return nil
		}
		// Fall through to the slower insert path on copy failure.
		slog.Warn("CopyFrom failed, falling back to batch insert")
	}

	_, err := m.pgDB.NewInsert().
		Model(&batch).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert reservation batch: %w", err)
	}
	stats.Inserted += len(batch)
	return nil
}

func (m *Migrator) copyReservations(ctx context.Context, batch []*models.Reservation) error {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	columns := []string{"id", "owner_id", "status", "location", "check_in", "check_out", "price", "created_at", "updated_at"}
	rows := make([][]any, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, []any{
			r.ID, r.OwnerID, string(r.Status), r.Location,
			r.CheckIn, r.CheckOut, r.Price, r.CreatedAt, r.UpdatedAt,
		})
	}

	_, err = conn.Conn().CopyFrom(ctx, pgx.Identifier{"reservations"}, columns, pgx.CopyFromRows(rows))
	return err
}

func (m *Migrator) importSwaps(ctx context.Context) error {
	stats := m.stats.table("listings")

	reservations, err := m.existingIDs(ctx, (*models.Reservation)(nil))
	if err != nil {
		return err
	}

	cursor, err := m.mongoDB.Collection(m.collNames["swaps"]).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query swaps: %w", err)
	}
	defer cursor.Close(ctx)

	var batch []*models.Listing
	for cursor.Next(ctx) {
		var ms MongoSwap
		if err := cursor.Decode(&ms); err != nil {
			stats.Failed++
			continue
		}
		stats.Read++

		// The redundant owner column on legacy swaps is dropped here;
		// ownership is derived through the reservation after import.
		if ms.LegacyID == 0 || !reservations[ms.ReservationID] {
			stats.Skipped++
			continue
		}

		publicID, err := importID()
		if err != nil {
			return err
		}
		batch = append(batch, convertSwap(ms, publicID))

		if len(batch) >= m.batchSize {
			if err := m.flushListings(ctx, batch, stats); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := m.flushListings(ctx, batch, stats); err != nil {
			return err
		}
	}
	return cursor.Err()
}

func (m *Migrator) flushListings(ctx context.Context, batch []*models.Listing, stats *TableStats) error {
	_, err := m.pgDB.NewInsert().
		Model(&batch).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert listing batch: %w", err)
	}
	stats.Inserted += len(batch)
	return nil
}

func (m *Migrator) importSwapTargets(ctx context.Context) error {
	stats := m.stats.table("target_edges")

	listings, err := m.existingIDs(ctx, (*models.Listing)(nil))
	if err != nil {
		return err
	}

	cursor, err := m.mongoDB.Collection(m.collNames["swaptargets"]).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query swap targets: %w", err)
	}
	defer cursor.Close(ctx)

	var batch []*models.TargetEdge
	for cursor.Next(ctx) {
		var mt MongoSwapTarget
		if err := cursor.Decode(&mt); err != nil {
			stats.Failed++
			continue
		}
		stats.Read++

		if mt.LegacyID == 0 || mt.SourceID == mt.TargetID || !listings[mt.SourceID] || !listings[mt.TargetID] {
			stats.Skipped++
			continue
		}

		batch = append(batch, convertSwapTarget(mt))
		if len(batch) >= m.batchSize {
			if err := m.flushEdges(ctx, batch, stats); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := m.flushEdges(ctx, batch, stats); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// flushEdges inserts with legacy ids so reruns are idempotent. The bare
// DO NOTHING also covers the partial unique index on active outgoing edges:
// when legacy data holds two active edges from one source, the first import
// wins and the rest are dropped rather than aborting the batch.
func (m *Migrator) flushEdges(ctx context.Context, batch []*models.TargetEdge, stats *TableStats) error {
	_, err := m.pgDB.NewInsert().
		Model(&batch).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert edge batch: %w", err)
	}
	stats.Inserted += len(batch)
	return nil
}

func (m *Migrator) existingIDs(ctx context.Context, model any) (map[int64]bool, error) {
	var ids []int64
	err := m.pgDB.NewSelect().
		Model(model).
		Column("id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing ids: %w", err)
	}

	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func importID() (string, error) {
	bytes := make([]byte, 5)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return strings.ToUpper(base32.StdEncoding.EncodeToString(bytes)[:6]), nil
}
