package embedding

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type mockCounterStore struct {
	mu     sync.Mutex
	data   map[string]int64
	ttls   map[string]time.Duration
	getErr error
	addErr error
}

func newMockCounterStore() *mockCounterStore {
	return &mockCounterStore{data: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *mockCounterStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

func (m *mockCounterStore) Add(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return 0, m.addErr
	}
	m.data[key] += delta
	m.ttls[key] = ttl
	return m.data[key], nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)}
}

func TestQuota_RejectWhenDailySpent(t *testing.T) {
	q := NewQuota("p-daily", 100, 0, ActionReject, zap.NewNop())
	q.Record(context.Background(), 100)

	err := q.Check(context.Background())
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.EmbeddingQuotaRejectionsTotal.WithLabelValues("p-daily")); got != 1 {
		t.Errorf("rejections = %v, want 1", got)
	}
}

func TestQuota_RejectWhenMonthlySpent(t *testing.T) {
	q := NewQuota("p-monthly", 0, 50, ActionReject, zap.NewNop())
	q.Record(context.Background(), 60)

	if err := q.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if q.Remaining(Monthly) != 0 {
		t.Errorf("remaining monthly = %d, want 0", q.Remaining(Monthly))
	}
}

func TestQuota_WarnLetsRequestsThrough(t *testing.T) {
	q := NewQuota("p-warn", 10, 0, ActionWarn, zap.NewNop())
	q.Record(context.Background(), 25)

	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("warn action must not fail, got %v", err)
	}
}

func TestQuota_UnlimitedByDefault(t *testing.T) {
	q := NewQuota("p-free", 0, 0, "", zap.NewNop())
	q.Record(context.Background(), 1_000_000)

	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Remaining(Daily) != -1 || q.Remaining(Monthly) != -1 {
		t.Errorf("remaining = %d/%d, want -1/-1", q.Remaining(Daily), q.Remaining(Monthly))
	}
}

func TestQuota_RemainingGauge(t *testing.T) {
	q := NewQuota("p-gauge", 1000, 5000, ActionReject, zap.NewNop())
	q.Record(context.Background(), 300)

	if got := testutil.ToFloat64(metrics.EmbeddingQuotaRemaining.WithLabelValues("p-gauge", "daily")); got != 700 {
		t.Errorf("daily gauge = %v, want 700", got)
	}
	if got := testutil.ToFloat64(metrics.EmbeddingQuotaRemaining.WithLabelValues("p-gauge", "monthly")); got != 4700 {
		t.Errorf("monthly gauge = %v, want 4700", got)
	}
}

func TestQuota_DayRollover(t *testing.T) {
	clock := newClock()
	q := NewQuota("p-roll", 100, 1000, ActionReject, zap.NewNop()).WithClock(clock.now)
	q.Record(context.Background(), 100)

	if err := q.Check(context.Background()); err == nil {
		t.Fatal("expected daily limit to be hit")
	}

	// 2026-03-31 23:00 -> 2026-04-01 01:00 rolls both windows.
	clock.t = clock.t.Add(2 * time.Hour)
	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("expected reset after rollover, got %v", err)
	}
	if q.Used(Daily) != 0 || q.Used(Monthly) != 0 {
		t.Errorf("used = %d/%d, want 0/0", q.Used(Daily), q.Used(Monthly))
	}
}

func TestQuota_DayRolloverKeepsMonth(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)}
	q := NewQuota("p-month", 0, 0, ActionReject, zap.NewNop()).WithClock(clock.now)
	q.Record(context.Background(), 40)

	clock.t = clock.t.Add(2 * time.Hour)
	if q.Used(Daily) != 0 || q.Used(Monthly) != 40 {
		t.Errorf("used = %d/%d, want 0/40", q.Used(Daily), q.Used(Monthly))
	}
}

func TestQuota_StoreLoadAndPersist(t *testing.T) {
	clock := newClock()
	store := newMockCounterStore()
	store.data["kb:quota:nebius:daily:2026-03-31"] = 70
	store.data["kb:quota:nebius:monthly:2026-03"] = 900

	q := NewQuota("nebius", 100, 1000, ActionReject, zap.NewNop()).
		WithClock(clock.now).
		WithStore(context.Background(), store, "kb:")

	if q.Used(Daily) != 70 || q.Used(Monthly) != 900 {
		t.Fatalf("loaded used = %d/%d, want 70/900", q.Used(Daily), q.Used(Monthly))
	}

	q.Record(context.Background(), 30)

	if got := store.data["kb:quota:nebius:daily:2026-03-31"]; got != 100 {
		t.Errorf("store daily = %d, want 100", got)
	}
	if store.ttls["kb:quota:nebius:daily:2026-03-31"] != 48*time.Hour {
		t.Errorf("daily ttl = %v", store.ttls["kb:quota:nebius:daily:2026-03-31"])
	}
	if store.ttls["kb:quota:nebius:monthly:2026-03"] != 62*24*time.Hour {
		t.Errorf("monthly ttl = %v", store.ttls["kb:quota:nebius:monthly:2026-03"])
	}
	if err := q.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected daily limit hit, got %v", err)
	}
}

func TestQuota_StoreTotalsWin(t *testing.T) {
	clock := newClock()
	store := newMockCounterStore()
	q := NewQuota("shared", 0, 0, ActionWarn, zap.NewNop()).
		WithClock(clock.now).
		WithStore(context.Background(), store, "")

	// Another replica spent 500 tokens after we loaded.
	store.data["quota:shared:daily:2026-03-31"] = 500

	q.Record(context.Background(), 10)
	if q.Used(Daily) != 510 {
		t.Errorf("used daily = %d, want 510", q.Used(Daily))
	}
}

func TestQuota_StoreLoadError(t *testing.T) {
	store := newMockCounterStore()
	store.getErr = errors.New("connection refused")

	q := NewQuota("p-load", 1000, 10000, ActionReject, zap.NewNop()).
		WithStore(context.Background(), store, "")

	if q.Used(Daily) != 0 || q.Used(Monthly) != 0 {
		t.Errorf("expected zero usage on load error, got %d/%d", q.Used(Daily), q.Used(Monthly))
	}
}

func TestQuota_StoreWriteErrorKeepsMemory(t *testing.T) {
	store := newMockCounterStore()
	q := NewQuota("p-write", 1000, 10000, ActionWarn, zap.NewNop()).
		WithStore(context.Background(), store, "")
	store.addErr = errors.New("write timeout")

	q.Record(context.Background(), 50)

	if q.Used(Daily) != 50 {
		t.Errorf("used daily = %d, want 50", q.Used(Daily))
	}
}

func TestQuota_RecordIgnoresNonPositive(t *testing.T) {
	store := newMockCounterStore()
	q := NewQuota("p-zero", 10, 0, ActionReject, zap.NewNop()).
		WithStore(context.Background(), store, "")

	q.Record(context.Background(), 0)
	q.Record(context.Background(), -5)

	if q.Used(Daily) != 0 || len(store.data) != 0 {
		t.Errorf("used = %d, store = %v", q.Used(Daily), store.data)
	}
}

func TestQuota_RecordSurvivesCanceledContext(t *testing.T) {
	store := newMockCounterStore()
	q := NewQuota("p-cancel", 0, 0, ActionWarn, zap.NewNop()).
		WithStore(context.Background(), store, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Record(ctx, 7)

	var total int64
	store.mu.Lock()
	for _, v := range store.data {
		total += v
	}
	store.mu.Unlock()
	if total != 14 {
		t.Errorf("persisted total = %d, want 14 (daily + monthly)", total)
	}
}
