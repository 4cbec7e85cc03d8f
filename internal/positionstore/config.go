package positionstore

import "time"

// Config holds the pool/retry knobs a single-writer position store needs.
type Config struct {
	Driver          string // "postgres" or "sqlite3"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
}

// DefaultConfig returns conservative defaults for a single-writer store;
// MaxOpenConns stays low because the concurrency model never
// has more than one writer thread.
func DefaultConfig(driver, dsn string) Config {
	return Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
	}
}

func (c Config) validate() error {
	if c.DSN == "" {
		return ErrInvalidDSN
	}
	if c.Driver != "postgres" && c.Driver != "sqlite3" {
		return ErrUnsupportedDriver
	}
	return nil
}
