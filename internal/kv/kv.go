// Package kv defines the key-value contract the availability store is built
// on, together with its Redis, MySQL and in-memory drivers.  Every driver
// expires keys natively (or filters expired rows on read) so no caller ever
// runs a garbage-collection pass.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/datepoll/internal/config"
	"github.com/iliyamo/datepoll/internal/database"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is a TTL-aware key-value store.
type Store interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value at key.  A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// Keys lists every live key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// MGet fetches many keys in one round-trip.  The result is aligned with
	// keys; missing entries are nil.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	Close() error
}

// Open builds the driver selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverRedis:
		rdb := config.NewRedisClient()
		if rdb == nil {
			return nil, errors.New("kv: redis is unreachable")
		}
		return NewRedis(rdb), nil
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("kv: open mysql: %w", err)
		}
		s := NewMySQL(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("kv: unknown driver %q", cfg.StoreDriver)
}
