package retrieval

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/event"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/result"
	manifestpkg "github.com/kailas-cloud/kbsearch/internal/manifest"
	"github.com/kailas-cloud/kbsearch/internal/retrieval/vector"
)

// Outcome is the result of one search. It is exactly one of OK, SoftFail or
// HardError.
type Outcome interface {
	outcome()
}

// OK carries the ranked results. Results may be empty when nothing matched.
type OK struct {
	Results      []result.Result
	Telemetry    Telemetry
	ManifestPath string
}

// SoftFail is an expected empty response explained by exactly one causal event.
type SoftFail struct {
	Reason event.Name
	Attrs  []zap.Field
}

// HardError is a failure the caller must surface.
type HardError struct {
	Err error
}

func (OK) outcome()        {}
func (SoftFail) outcome()  {}
func (HardError) outcome() {}

// Telemetry describes how a successful search spent its budget.
type Telemetry struct {
	Timings         manifestpkg.Timings
	Candidates      int
	Evaluated       int
	Stats           vector.Stats
	BudgetHit       bool
	ThrottleTimeout bool
	AcquireWait     time.Duration
	PaceWait        time.Duration
}

// Results flattens an outcome for callers that only need the hits: soft
// failures yield an empty list and hard errors yield the error.
func Results(o Outcome) ([]result.Result, error) {
	switch o := o.(type) {
	case OK:
		return o.Results, nil
	case HardError:
		return nil, o.Err
	default:
		return []result.Result{}, nil
	}
}
