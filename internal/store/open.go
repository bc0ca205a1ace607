package store

import (
	"context"
	"log/slog"

	"github.com/i474232898/weather-consensus/internal/crosscloud"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// Store is implemented by MemoryStore and PostgresStore.
type Store interface {
	weather.Sink
	crosscloud.Sink
	LatestLocation(ctx context.Context, provider, locationID string) (weather.LocationAggregate, error)
	LatestAggregate(ctx context.Context) (crosscloud.CrossCloudAggregate, error)
	Prune(ctx context.Context) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open returns a PostgresStore when databaseURL is set and a MemoryStore
// otherwise. The returned func releases the store's resources.
func Open(ctx context.Context, databaseURL string, retention Retention, logger *slog.Logger) (Store, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if databaseURL == "" {
		logger.Info("using in-memory store", "max_history", retention.MaxHistory, "max_age", retention.MaxAge)
		return NewMemoryStore(retention), func() {}, nil
	}

	pool, err := OpenPostgres(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	pg := NewPostgresStore(pool, retention)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("using postgres store")
	return pg, pool.Close, nil
}
