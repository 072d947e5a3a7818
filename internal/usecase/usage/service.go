// Package usage reports query-embedding token consumption per period.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/usecase/embedding"
)

// Period selects the reporting window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// QuotaReader provides read-only access to the token quota.
type QuotaReader interface {
	Limit(w embedding.Window) int64
	Used(w embedding.Window) int64
	Remaining(w embedding.Window) int64
}

// Report is the token usage of one period.
type Report struct {
	Period          Period
	Provider        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TokensUsed      int64
	TokensLimit     int64 // 0 = unlimited
	TokensRemaining int64 // -1 = unlimited
	Exhausted       bool
}

// Service handles usage reporting.
type Service struct {
	provider string
	quota    QuotaReader
	now      func() time.Time
}

// New creates a Service. quota can be nil (nothing tracked).
func New(provider string, quota QuotaReader) *Service {
	return &Service{provider: provider, quota: quota, now: time.Now}
}

// WithClock overrides the clock used for period boundaries.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetReport builds a usage report for the given period.
func (s *Service) GetReport(_ context.Context, period Period) (Report, error) {
	now := s.now().UTC()
	r := Report{Period: period, Provider: s.provider, TokensRemaining: -1}

	var w embedding.Window
	switch period {
	case PeriodDay:
		w = embedding.Daily
		r.PeriodStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.PeriodEnd = r.PeriodStart.AddDate(0, 0, 1)
	case PeriodMonth:
		w = embedding.Monthly
		r.PeriodStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.PeriodEnd = r.PeriodStart.AddDate(0, 1, 0)
	default:
		return Report{}, fmt.Errorf("period %q must be day or month: %w", period, domain.ErrInvalidRequest)
	}

	if s.quota == nil {
		return r, nil
	}

	r.TokensLimit = s.quota.Limit(w)
	r.TokensUsed = s.quota.Used(w)
	r.TokensRemaining = s.quota.Remaining(w)
	r.Exhausted = r.TokensLimit > 0 && r.TokensRemaining <= 0
	return r, nil
}
