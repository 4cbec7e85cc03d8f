package positionstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB with the config it was opened with, mirroring the
// teacher's libs/database.DB.
type DB struct {
	*sql.DB
	config Config
}

// Connect opens the database with exponential-backoff retry, the same
// shape as libs/database.Connect: validate config, then try Open+Ping
// once plus up to RetryAttempts retries with doubling delay before
// giving up.
func Connect(ctx context.Context, config Config) (*DB, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("positionstore: invalid config: %w", err)
	}

	var sqlDB *sql.DB
	var err error

	delay := config.RetryDelay
	for attempt := 0; attempt <= config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}

		sqlDB, err = sql.Open(config.Driver, config.DSN)
		if err != nil {
			continue
		}

		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

		if err = sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			continue
		}

		return &DB{DB: sqlDB, config: config}, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}

// ConnectWithMigrations connects and then applies pending schema
// migrations before returning, so callers never run against a
// half-initialized schema.
func ConnectWithMigrations(ctx context.Context, config Config) (*DB, error) {
	db, err := Connect(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db.DB, config.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return db, nil
}

// HealthCheck pings the database with a bounded timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("positionstore: health check: %w", err)
	}
	return nil
}
