package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"time"

	"log/slog"

	"github.com/stayswap/engine/engine/database/models"
	"github.com/stayswap/engine/engine/logger"
	"github.com/uptrace/bun"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
)

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	var conn net.Conn
	var err error

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	for i := 0; i < defaultMaxRetries; i++ {
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			break
		}
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}
	defer conn.Close()

	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{pool: pool, bunDB: newBunDB(pool)}, nil
}

func buildConnString(cfg DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}

func newBunDB(pool *pgxpool.Pool) *bun.DB {
	sslMode := os.Getenv("PG_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pool.Config().ConnConfig.User,
		pool.Config().ConnConfig.Password,
		pool.Config().ConnConfig.Host,
		pool.Config().ConnConfig.Port,
		pool.Config().ConnConfig.Database,
		sslMode,
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (db *DB) GetPool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) Close() {
	if db.bunDB != nil {
		db.bunDB.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
}

// InitializeSchema creates all engine tables and the indexes the engine's
// consistency model depends on. Safe to call on every startup.
func (db *DB) InitializeSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.Reservation)(nil),
		(*models.Listing)(nil),
		(*models.TargetEdge)(nil),
		(*models.TargetHistoryEntry)(nil),
		(*models.Auction)(nil),
		(*models.AuctionProposal)(nil),
	}

	for _, model := range tables {
		_, err := db.bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	// A source listing targets at most one thing at a time. The partial
	// unique index makes the duplicate-active-edge race impossible at the
	// storage layer regardless of application logic.
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_target_edges_one_active_outgoing
			ON target_edges (source_listing_id) WHERE status = 'active'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_auctions_one_active_per_listing
			ON auctions (listing_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_target_edges_target_status
			ON target_edges (target_listing_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_target_history_source
			ON target_history (source_listing_id)`,
		`CREATE INDEX IF NOT EXISTS idx_target_history_target
			ON target_history (target_listing_id)`,
		`CREATE INDEX IF NOT EXISTS idx_auction_proposals_auction_status
			ON auction_proposals (auction_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_status_expires
			ON listings (status, expires_at)`,
	}

	for _, stmt := range indexes {
		if _, err := db.ExecWithLog(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// ValidateSchema probes information_schema once at startup for every column
// the engine's queries assume. A mismatch fails fast instead of surfacing as
// runtime query errors with per-call fallbacks.
func (db *DB) ValidateSchema(ctx context.Context) error {
	required := map[string][]string{
		"reservations":      {"id", "owner_id", "status", "location", "check_in", "check_out", "price"},
		"listings":          {"id", "listing_id", "reservation_id", "status", "strategy", "payment_pref", "expires_at"},
		"target_edges":      {"id", "source_listing_id", "target_listing_id", "status"},
		"target_history":    {"id", "edge_id", "source_listing_id", "target_listing_id", "action"},
		"auctions":          {"id", "auction_id", "listing_id", "status", "end_time", "max_proposals"},
		"auction_proposals": {"id", "auction_id", "proposer_id", "type", "status"},
	}

	rows, err := db.pool.Query(ctx,
		`SELECT table_name, column_name FROM information_schema.columns WHERE table_schema = 'public'`)
	if err != nil {
		return fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	present, err := collectColumns(rows)
	if err != nil {
		return err
	}

	for table, columns := range required {
		for _, column := range columns {
			if !present[table][column] {
				return fmt.Errorf("schema contract violation: missing column %s.%s", table, column)
			}
		}
	}

	slog.Info("Schema contract validated",
		slog.String("type", "db"),
		slog.Int("tables", len(required)))
	return nil
}

// collectColumns drains an information_schema column listing. An iteration
// error must surface as its own failure, never as a missing column.
func collectColumns(rows pgx.Rows) (map[string]map[string]bool, error) {
	present := map[string]map[string]bool{}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		if present[table] == nil {
			present[table] = map[string]bool{}
		}
		present[table][column] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	return present, nil
}

func (db *DB) ExecWithLog(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	start := time.Now()
	result, err := db.pool.Exec(ctx, sql, args...)
	logger.LogQuery(sql, time.Since(start), err)
	return result, err
}
