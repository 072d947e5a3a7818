// Package embedding meters query embedding calls against a token quota.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

// Window is the calendar period a token limit applies to. Periods are UTC.
type Window string

const (
	// Daily resets at 00:00 UTC.
	Daily Window = "daily"
	// Monthly resets on the first day of the month, 00:00 UTC.
	Monthly Window = "monthly"
)

// periodStart truncates t to the start of its period.
func (w Window) periodStart(t time.Time) time.Time {
	t = t.UTC()
	if w == Monthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (w Window) periodLabel(t time.Time) string {
	if w == Monthly {
		return t.UTC().Format("2006-01")
	}
	return t.UTC().Format("2006-01-02")
}

// retention is how long a persisted counter outlives its period.
func (w Window) retention() time.Duration {
	if w == Monthly {
		return 62 * 24 * time.Hour
	}
	return 48 * time.Hour
}

// Action is what happens once a limit is reached.
type Action string

const (
	// ActionWarn logs and lets the request through.
	ActionWarn Action = "warn"
	// ActionReject refuses the request with domain.ErrEmbeddingQuotaExceeded.
	ActionReject Action = "reject"
)

// CounterStore persists per-period token counters.
type CounterStore interface {
	Get(ctx context.Context, key string) (int64, error)
	// Add increments key by delta, keeping it for at least ttl, and returns the new total.
	Add(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

type counter struct {
	window Window
	limit  int64 // 0 = unlimited
	used   int64
	period time.Time
}

// Quota tracks embedding tokens per day and per month. Check reads memory
// only; Record updates memory and then the store, if one is attached.
type Quota struct {
	mu        sync.Mutex
	provider  string
	action    Action
	counters  []*counter
	store     CounterStore
	keyPrefix string
	now       func() time.Time
	logger    *zap.Logger
}

// NewQuota creates a quota. A zero limit leaves that window unlimited.
func NewQuota(provider string, dailyLimit, monthlyLimit int64, action Action, logger *zap.Logger) *Quota {
	if logger == nil {
		logger = zap.NewNop()
	}
	if action == "" {
		action = ActionWarn
	}
	q := &Quota{
		provider: provider,
		action:   action,
		now:      time.Now,
		logger:   logger,
	}
	now := q.now()
	q.counters = []*counter{
		{window: Daily, limit: max(dailyLimit, 0), period: Daily.periodStart(now)},
		{window: Monthly, limit: max(monthlyLimit, 0), period: Monthly.periodStart(now)},
	}
	return q
}

// WithClock overrides the clock. Counters restart in the clock's current period.
func (q *Quota) WithClock(now func() time.Time) *Quota {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
	for _, c := range q.counters {
		c.period = c.window.periodStart(now())
		c.used = 0
	}
	return q
}

// WithStore attaches persistence and loads the current period's counters.
// Load failures are logged and the quota starts from zero.
func (q *Quota) WithStore(ctx context.Context, store CounterStore, keyPrefix string) *Quota {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.store = store
	q.keyPrefix = keyPrefix

	now := q.now()
	for _, c := range q.counters {
		key := q.key(c.window, now)
		used, err := store.Get(ctx, key)
		if err != nil {
			q.logger.Warn("Failed to load embedding quota",
				zap.String("provider", q.provider),
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		c.used = used
	}
	q.publishLocked()
	return q
}

func (q *Quota) key(w Window, t time.Time) string {
	return fmt.Sprintf("%squota:%s:%s:%s", q.keyPrefix, q.provider, w, w.periodLabel(t))
}

// Check reports whether a new request may spend tokens.
func (q *Quota) Check(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()

	var spent *counter
	for _, c := range q.counters {
		if c.limit > 0 && c.used >= c.limit {
			spent = c
			break
		}
	}
	if spent == nil {
		return nil
	}

	if q.action == ActionReject {
		metrics.EmbeddingQuotaRejectionsTotal.WithLabelValues(q.provider).Inc()
		return fmt.Errorf("%s limit %d reached: %w", spent.window, spent.limit, domain.ErrEmbeddingQuotaExceeded)
	}

	q.logger.Warn("Embedding quota exceeded",
		zap.String("provider", q.provider),
		zap.String("window", string(spent.window)),
		zap.Int64("used", spent.used),
		zap.Int64("limit", spent.limit),
	)
	return nil
}

// Record adds consumed tokens. When a store is attached its totals win, so
// several replicas converge on the shared count.
func (q *Quota) Record(ctx context.Context, tokens int64) {
	if tokens <= 0 {
		return
	}

	q.mu.Lock()
	q.rollLocked()
	for _, c := range q.counters {
		c.used += tokens
	}
	store := q.store
	now := q.now()
	q.publishLocked()
	q.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	for _, w := range []Window{Daily, Monthly} {
		key := q.key(w, now)
		total, err := store.Add(ctx, key, tokens, w.retention())
		if err != nil {
			q.logger.Warn("Failed to persist embedding quota", zap.String("key", key), zap.Error(err))
			continue
		}
		q.sync(w, now, total)
	}
}

// sync raises the in-memory counter to the store's total for the same period.
func (q *Quota) sync(w Window, at time.Time, total int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.counters {
		if c.window == w && c.period.Equal(w.periodStart(at)) && total > c.used {
			c.used = total
		}
	}
	q.publishLocked()
}

// Remaining returns the tokens left in the window, or -1 when it is unlimited.
func (q *Quota) Remaining(w Window) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()
	for _, c := range q.counters {
		if c.window == w {
			return c.remaining()
		}
	}
	return -1
}

// Limit returns the window's token limit; 0 means unlimited.
func (q *Quota) Limit(w Window) int64 {
	for _, c := range q.counters {
		if c.window == w {
			return c.limit
		}
	}
	return 0
}

// Used returns the tokens spent in the window's current period.
func (q *Quota) Used(w Window) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()
	for _, c := range q.counters {
		if c.window == w {
			return c.used
		}
	}
	return 0
}

func (c *counter) remaining() int64 {
	if c.limit == 0 {
		return -1
	}
	return max(c.limit-c.used, 0)
}

// rollLocked zeroes counters whose period has ended.
func (q *Quota) rollLocked() {
	now := q.now()
	for _, c := range q.counters {
		if start := c.window.periodStart(now); start.After(c.period) {
			c.period = start
			c.used = 0
		}
	}
}

func (q *Quota) publishLocked() {
	for _, c := range q.counters {
		metrics.EmbeddingQuotaRemaining.WithLabelValues(q.provider, string(c.window)).Set(float64(c.remaining()))
	}
}
