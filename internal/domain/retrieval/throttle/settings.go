// Package throttle holds the shared-resource policy applied to a (slug, scope) key.
package throttle

import "time"

// Parallelism bounds.
const (
	MinParallelism = 1
	MaxParallelism = 32
)

// Settings is the throttle policy for one key. A nil *Settings, or one whose
// fields are all zero, means no throttling.
type Settings struct {
	LatencyBudgetMs     int
	Parallelism         int
	SleepMsBetweenCalls int
	// AcquireTimeoutMs bounds the wait for a slot. Zero waits until a slot frees up.
	AcquireTimeoutMs int
}

// New builds settings with parallelism clamped to [MinParallelism, MaxParallelism].
// It returns nil when every value is zero.
func New(latencyBudgetMs, parallelism, sleepMs, acquireTimeoutMs int) *Settings {
	if latencyBudgetMs == 0 && parallelism == 0 && sleepMs == 0 && acquireTimeoutMs == 0 {
		return nil
	}
	return &Settings{
		LatencyBudgetMs:     max(latencyBudgetMs, 0),
		Parallelism:         ClampParallelism(parallelism),
		SleepMsBetweenCalls: max(sleepMs, 0),
		AcquireTimeoutMs:    max(acquireTimeoutMs, 0),
	}
}

// ClampParallelism forces n into [MinParallelism, MaxParallelism].
func ClampParallelism(n int) int {
	return min(max(n, MinParallelism), MaxParallelism)
}

// Active reports whether s imposes any throttling.
func (s *Settings) Active() bool {
	if s == nil {
		return false
	}
	return s.LatencyBudgetMs != 0 || s.Parallelism != 0 || s.SleepMsBetweenCalls != 0 || s.AcquireTimeoutMs != 0
}

// EffectiveParallelism returns the clamped parallelism.
func (s *Settings) EffectiveParallelism() int { return ClampParallelism(s.Parallelism) }

// LatencyBudget returns the budget as a duration (zero when unset).
func (s *Settings) LatencyBudget() time.Duration {
	if s == nil || s.LatencyBudgetMs <= 0 {
		return 0
	}
	return time.Duration(s.LatencyBudgetMs) * time.Millisecond
}

// SleepBetweenCalls returns the minimum pacing interval.
func (s *Settings) SleepBetweenCalls() time.Duration {
	if s == nil || s.SleepMsBetweenCalls <= 0 {
		return 0
	}
	return time.Duration(s.SleepMsBetweenCalls) * time.Millisecond
}

// AcquireTimeout returns the slot wait bound (zero means unbounded).
func (s *Settings) AcquireTimeout() time.Duration {
	if s == nil || s.AcquireTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(s.AcquireTimeoutMs) * time.Millisecond
}
