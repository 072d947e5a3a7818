// Package throttle bounds concurrent searches per resource key and paces
// dispatches that share a key.
//
// A Registry maps keys to monitors. Each monitor owns a FIFO semaphore sized
// to the key's parallelism and the timestamp of the key's last completion.
// The timestamp is only reachable through Lease methods.
//
// Acquisition is fail-open: when a slot cannot be obtained before the
// acquire timeout, the caller proceeds without one and a warning is logged.
package throttle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/event"
	settingspkg "github.com/kailas-cloud/kbsearch/internal/domain/retrieval/throttle"
	"github.com/kailas-cloud/kbsearch/internal/logger"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

// Registry is the process-wide set of per-key monitors. The zero value is
// not usable; create one with NewRegistry and share it between callers.
type Registry struct {
	mu       sync.Mutex
	monitors map[string]*monitor
	events   logger.Events
}

// NewRegistry creates an empty registry.
func NewRegistry(l *zap.Logger) *Registry {
	return &Registry{
		monitors: make(map[string]*monitor),
		events:   logger.NewEvents(l),
	}
}

// Reset drops every monitor. Leases issued before the reset stay valid and
// release into the monitor they were issued from. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitors = make(map[string]*monitor)
}

// Parallelism reports the configured parallelism of key, if it has a monitor.
func (r *Registry) Parallelism(key string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[key]
	if !ok {
		return 0, false
	}
	return m.parallelism, true
}

// monitorFor returns the monitor for key, creating it on first use. A monitor
// configured with a different parallelism is replaced, not resized.
func (r *Registry) monitorFor(key string, parallelism int) *monitor {
	parallelism = settingspkg.ClampParallelism(parallelism)

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.monitors[key]; ok && m.parallelism == parallelism {
		return m
	}
	m := newMonitor(parallelism)
	r.monitors[key] = m
	return m
}

// Acquire takes one slot of key. timeout <= 0 waits until a slot frees up or
// ctx is done. On timeout the returned lease holds no slot and the caller is
// expected to proceed anyway. Acquire never fails.
func (r *Registry) Acquire(ctx context.Context, key string, parallelism int, timeout time.Duration) *Lease {
	m := r.monitorFor(key, parallelism)

	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := m.sem.Acquire(acquireCtx, 1)
	waited := time.Since(start)
	metrics.ThrottleWaitDuration.WithLabelValues("acquire").Observe(waited.Seconds())

	lease := &Lease{m: m, key: key, held: err == nil, acquireWait: waited}
	if err != nil {
		metrics.ThrottleAcquireTimeoutsTotal.Inc()
		r.events.Warn(event.ThrottleAcquireTimeout,
			zap.String("key", key),
			zap.Int("parallelism", m.parallelism),
			zap.Duration("timeout", timeout),
			zap.Duration("waited", waited),
			zap.Error(err),
		)
		return lease
	}
	metrics.ThrottleInFlight.Inc()
	return lease
}

// Guard acquires a slot and paces the dispatch according to s. Inactive
// settings yield a no-op lease without touching the registry.
func (r *Registry) Guard(ctx context.Context, key string, s *settingspkg.Settings, deadline time.Time) *Lease {
	if !s.Active() {
		return &Lease{}
	}
	lease := r.Acquire(ctx, key, s.EffectiveParallelism(), s.AcquireTimeout())
	lease.WaitInterval(s.SleepBetweenCalls(), deadline)
	return lease
}
