package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/i474232898/weather-consensus/internal/crosscloud"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// DBTX is the subset of *pgxpool.Pool and pgx.Tx the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS provider_aggregates (
    id            TEXT PRIMARY KEY,
    provider      TEXT NOT NULL,
    location_id   TEXT NOT NULL,
    confidence    INTEGER NOT NULL,
    payload       JSONB NOT NULL,
    aggregated_at TIMESTAMPTZ NOT NULL,
    expires_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS provider_aggregates_location_idx
    ON provider_aggregates (provider, location_id, aggregated_at DESC);

CREATE TABLE IF NOT EXISTS crosscloud_aggregates (
    id          TEXT PRIMARY KEY,
    providers   TEXT[] NOT NULL,
    reliability INTEGER NOT NULL,
    payload     JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    expires_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS crosscloud_aggregates_created_idx
    ON crosscloud_aggregates (created_at DESC);`

// PostgresStore persists aggregates as JSONB rows. Rows carry an expires_at
// derived from the retention settings; reads ignore expired rows and Prune
// deletes them.
type PostgresStore struct {
	db        DBTX
	retention Retention
	now       func() time.Time
}

// NewPostgresStore wraps db, usually a *pgxpool.Pool.
func NewPostgresStore(db DBTX, retention Retention) *PostgresStore {
	return &PostgresStore{db: db, retention: retention, now: time.Now}
}

// OpenPostgres connects a pool and checks the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func expiresAt(from time.Time, maxAge time.Duration) *time.Time {
	if maxAge <= 0 {
		return nil
	}
	t := from.Add(maxAge)
	return &t
}

func (s *PostgresStore) StoreLocation(ctx context.Context, provider string, agg weather.LocationAggregate) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode location aggregate: %w", err)
	}
	at := agg.AggregatedAt
	if at.IsZero() {
		at = s.now()
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO provider_aggregates (id, provider, location_id, confidence, payload, aggregated_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ulid.Make().String(), provider, agg.LocationID, agg.Confidence, payload, at, expiresAt(at, s.retention.MaxAge))
	if err != nil {
		return fmt.Errorf("insert provider aggregate: %w", err)
	}
	return nil
}

func (s *PostgresStore) StoreAggregate(ctx context.Context, agg crosscloud.CrossCloudAggregate) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode cross-cloud aggregate: %w", err)
	}
	id := agg.ID
	if id == "" {
		id = ulid.Make().String()
	}
	at := agg.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO crosscloud_aggregates (id, providers, reliability, payload, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING`,
		id, agg.Providers, agg.Reliability.Overall, payload, at, expiresAt(at, s.retention.AggregateAge))
	if err != nil {
		return fmt.Errorf("insert cross-cloud aggregate: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestLocation(ctx context.Context, provider, locationID string) (weather.LocationAggregate, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
SELECT payload FROM provider_aggregates
WHERE provider = $1 AND location_id = $2 AND (expires_at IS NULL OR expires_at > $3)
ORDER BY aggregated_at DESC
LIMIT 1`, provider, locationID, s.now()).Scan(&payload)
	if err != nil {
		return weather.LocationAggregate{}, notFound(err)
	}

	var agg weather.LocationAggregate
	if err := json.Unmarshal(payload, &agg); err != nil {
		return weather.LocationAggregate{}, fmt.Errorf("decode location aggregate: %w", err)
	}
	return agg, nil
}

func (s *PostgresStore) LatestAggregate(ctx context.Context) (crosscloud.CrossCloudAggregate, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
SELECT payload FROM crosscloud_aggregates
WHERE expires_at IS NULL OR expires_at > $1
ORDER BY created_at DESC
LIMIT 1`, s.now()).Scan(&payload)
	if err != nil {
		return crosscloud.CrossCloudAggregate{}, notFound(err)
	}

	var agg crosscloud.CrossCloudAggregate
	if err := json.Unmarshal(payload, &agg); err != nil {
		return crosscloud.CrossCloudAggregate{}, fmt.Errorf("decode cross-cloud aggregate: %w", err)
	}
	return agg, nil
}

// Prune deletes expired rows from both tables.
func (s *PostgresStore) Prune(ctx context.Context) error {
	now := s.now()
	for _, table := range []string{"provider_aggregates", "crosscloud_aggregates"} {
		if _, err := s.db.Exec(ctx, "DELETE FROM "+table+" WHERE expires_at <= $1", now); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
