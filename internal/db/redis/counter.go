package redis

import (
	"context"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/db"
)

// IncrBy atomically adds delta to key and returns the new value.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	cmd := s.b().Incrby().Key(key).Increment(delta).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpIncrBy, Err: err}
	}
	return n, nil
}

// ExpireNX sets a TTL on key only if it has no expiry yet (EXPIRE NX).
// Sub-second TTLs round up to one second.
func (s *Store) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	secs := max(int64((ttl+time.Second-1)/time.Second), 1)
	cmd := s.b().Expire().Key(key).Seconds(secs).Nx().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpExpire, Err: err}
	}
	return nil
}
