package throttle

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

// monitor guards one key: a semaphore for admission plus the last-completion
// timestamp used for pacing. changed is closed and replaced on every
// completion, which gives waiters a broadcast they can select on together
// with a timer.
type monitor struct {
	parallelism int
	sem         *semaphore.Weighted

	mu            sync.Mutex
	lastCompleted time.Time
	changed       chan struct{}
}

func newMonitor(parallelism int) *monitor {
	return &monitor{
		parallelism: parallelism,
		sem:         semaphore.NewWeighted(int64(parallelism)),
		changed:     make(chan struct{}),
	}
}

// markComplete records a completion and wakes pacing waiters.
func (m *monitor) markComplete(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCompleted = at
	close(m.changed)
	m.changed = make(chan struct{})
}

// waitInterval blocks until sleep has elapsed since the last completion or
// until deadline, whichever comes first. It reports whether the deadline
// cut the wait short.
func (m *monitor) waitInterval(sleep time.Duration, deadline time.Time) bool {
	if sleep <= 0 {
		return false
	}
	for {
		m.mu.Lock()
		last := m.lastCompleted
		changed := m.changed
		m.mu.Unlock()

		now := time.Now()
		if last.IsZero() || now.Sub(last) >= sleep {
			return false
		}
		if !deadline.IsZero() && !now.Before(deadline) {
			return true
		}

		wake := last.Add(sleep)
		if !deadline.IsZero() && deadline.Before(wake) {
			wake = deadline
		}
		timer := time.NewTimer(wake.Sub(now))
		select {
		case <-timer.C:
		case <-changed:
			timer.Stop()
		}
	}
}

// Lease is the caller's handle on a throttle slot. Release must be called on
// every exit path, typically via defer.
type Lease struct {
	m    *monitor
	key  string
	held bool

	acquireWait time.Duration
	paceWait    time.Duration
	paceCut     bool

	once sync.Once
}

// WaitInterval paces the dispatch. It reports whether deadline cut the wait short.
func (l *Lease) WaitInterval(sleep time.Duration, deadline time.Time) bool {
	if l.m == nil {
		return false
	}
	start := time.Now()
	cut := l.m.waitInterval(sleep, deadline)
	l.paceWait += time.Since(start)
	l.paceCut = l.paceCut || cut
	metrics.ThrottleWaitDuration.WithLabelValues("pace").Observe(time.Since(start).Seconds())
	return cut
}

// Release marks the key's work complete and frees the slot if one is held.
// It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.m == nil {
			return
		}
		l.m.markComplete(time.Now())
		if l.held {
			l.m.sem.Release(1)
			metrics.ThrottleInFlight.Dec()
		}
	})
}

// Active reports whether the lease belongs to a throttled key.
func (l *Lease) Active() bool { return l.m != nil }

// Acquired reports whether a slot is held. False on an active lease means
// the acquire timed out and the caller proceeded without one.
func (l *Lease) Acquired() bool { return l.held }

// TimedOut reports whether acquisition failed open.
func (l *Lease) TimedOut() bool { return l.m != nil && !l.held }

// DeadlineHit reports whether pacing was cut short by the deadline.
func (l *Lease) DeadlineHit() bool { return l.paceCut }

// AcquireWait returns the time spent waiting for a slot.
func (l *Lease) AcquireWait() time.Duration { return l.acquireWait }

// PaceWait returns the time spent in pacing waits.
func (l *Lease) PaceWait() time.Duration { return l.paceWait }

// Key returns the throttle key, empty for a no-op lease.
func (l *Lease) Key() string { return l.key }
