// Package quota persists embedding token counters in the key-value store.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/db"
)

// store is the consumer interface for counter operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	ExpireNX(ctx context.Context, key string, ttl time.Duration) error
}

// Store implements embedding.CounterStore with INCRBY + EXPIRE NX.
type Store struct {
	store store
}

// New creates a counter store.
func New(s store) *Store {
	return &Store{store: s}
}

// Add increments key and sets its TTL on first write. The TTL is never
// pushed forward by later writes.
func (s *Store) Add(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	total, err := s.store.IncrBy(ctx, key, delta)
	if err != nil {
		return 0, fmt.Errorf("quota INCRBY %s: %w", key, err)
	}
	if ttl > 0 {
		if err := s.store.ExpireNX(ctx, key, ttl); err != nil {
			return total, fmt.Errorf("quota EXPIRE %s: %w", key, err)
		}
	}
	return total, nil
}

// Get returns the counter value, or 0 when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("quota GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quota GET %s parse: %w", key, err)
	}
	return val, nil
}
