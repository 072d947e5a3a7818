package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
type Store interface {
	Pinger
	HashStore
	SortedSetStore
	KVStore
	CounterStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides read access to hashes.
type HashStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// SortedSetStore provides read access to sorted sets.
type SortedSetStore interface {
	// ZRevRange returns members from highest to lowest score, positions start..stop inclusive.
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CounterStore provides expiring integer counters.
type CounterStore interface {
	// IncrBy adds delta to key and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	// ExpireNX sets a TTL only when the key has none yet.
	ExpireNX(ctx context.Context, key string, ttl time.Duration) error
}
