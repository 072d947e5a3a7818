// Package retrieval orchestrates a budget-aware semantic search: validate,
// throttle, embed, fetch, rank, and record the manifest.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/event"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/query"
	settingspkg "github.com/kailas-cloud/kbsearch/internal/domain/retrieval/throttle"
	"github.com/kailas-cloud/kbsearch/internal/logger"
	manifestpkg "github.com/kailas-cloud/kbsearch/internal/manifest"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
	"github.com/kailas-cloud/kbsearch/internal/retrieval/rank"
	"github.com/kailas-cloud/kbsearch/internal/retrieval/vector"
)

// Service runs searches against one candidate source.
type Service struct {
	source    CandidateSource
	embed     Embedder
	gate      Gate
	manifests ManifestWriter
	ranker    *rank.Ranker
	events    logger.Events

	now             func() time.Time
	embeddingModel  string
	abortIfDeadline bool
}

// Option configures a Service.
type Option func(*Service)

// WithManifestWriter enables manifests for requests that carry a response id.
func WithManifestWriter(w ManifestWriter) Option {
	return func(s *Service) { s.manifests = w }
}

// WithEmbeddingModel records the embedding model name in manifests.
func WithEmbeddingModel(name string) Option {
	return func(s *Service) { s.embeddingModel = name }
}

// WithClock overrides the clock used for deadlines and timings.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAbortIfDeadline makes the ranker return as soon as the deadline passes.
func WithAbortIfDeadline(abort bool) Option {
	return func(s *Service) { s.abortIfDeadline = abort }
}

// New creates a retrieval service.
func New(source CandidateSource, embed Embedder, gate Gate, l *zap.Logger, opts ...Option) *Service {
	s := &Service{
		source: source,
		embed:  embed,
		gate:   gate,
		events: logger.NewEvents(l),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.ranker = rank.New(rank.WithClock(s.now))
	return s
}

// Search runs one search. A soft failure is logged as exactly one causal
// event; every other path logs none.
func (s *Service) Search(ctx context.Context, p *query.Params, settings *settingspkg.Settings) Outcome {
	events := s.events.With(
		zap.String("slug", p.Slug),
		zap.String("scope", p.Scope),
		zap.String("response_id", p.ResponseID),
	)

	out := s.run(ctx, p, settings, events)

	switch o := out.(type) {
	case OK:
		metrics.SearchOutcomesTotal.WithLabelValues("ok", "").Inc()
	case SoftFail:
		metrics.SearchOutcomesTotal.WithLabelValues("soft_fail", o.Reason.String()).Inc()
		events.Warn(o.Reason, o.Attrs...)
	case HardError:
		metrics.SearchOutcomesTotal.WithLabelValues("hard_error", hardReason(o.Err)).Inc()
	}
	return out
}

// run executes the pipeline. It must not emit causal events; soft failures
// are returned for Search to report.
func (s *Service) run(ctx context.Context, p *query.Params, settings *settingspkg.Settings, events logger.Events) Outcome {
	started := p.StartedAt
	if started.IsZero() {
		started = s.now()
	}

	if reason, ok := p.Check(); !ok {
		return SoftFail{Reason: reason, Attrs: []zap.Field{
			zap.Int("k", p.K),
			zap.Int("query_len", len(p.Text())),
		}}
	}

	budget := p.LatencyBudget
	if budget <= 0 {
		budget = settings.LatencyBudget()
	}
	var deadline time.Time
	if budget > 0 {
		deadline = started.Add(budget)
		if !s.now().Before(deadline) {
			return SoftFail{Reason: event.ThrottleDeadline, Attrs: []zap.Field{
				zap.String("stage", "preflight"),
				zap.Duration("budget", budget),
			}}
		}
	}

	key := p.ThrottleKey()
	lease := s.gate.Guard(ctx, key, settings, deadline)
	defer lease.Release()

	if lease.DeadlineHit() {
		return SoftFail{Reason: event.ThrottleDeadline, Attrs: []zap.Field{
			zap.String("stage", "pacing"),
			zap.String("key", key),
			zap.Duration("budget", budget),
			zap.Duration("pace_wait", lease.PaceWait()),
		}}
	}

	events.Info(event.QueryStarted,
		zap.Int("k", p.K),
		zap.Int("candidate_limit", p.Limit()),
		zap.Duration("budget", budget),
	)

	var tel Telemetry
	tel.ThrottleTimeout = lease.TimedOut()
	tel.AcquireWait = lease.AcquireWait()
	tel.PaceWait = lease.PaceWait()

	qvec, embedDur, err := vector.MaterializeQuery(ctx, s.embed, p.Text())
	tel.Timings.Embed = embedDur
	metrics.SearchDuration.WithLabelValues("embed").Observe(embedDur.Seconds())
	if err != nil {
		reason := event.QueryEmbedFailed
		if errors.Is(err, vector.ErrEmptyVector) {
			reason = event.QueryInvalid
		}
		return SoftFail{Reason: reason, Attrs: []zap.Field{
			zap.Duration("embed", embedDur),
			zap.Error(err),
		}}
	}
	events.Info(event.QueryEmbedded,
		zap.Int("dim", len(qvec)),
		zap.Duration("embed", embedDur),
	)

	fetchStart := s.now()
	cands, err := s.source.Fetch(ctx, candidate.FetchRequest{DB: p.DB, Slug: p.Slug, Scope: p.Scope, Limit: p.Limit()})
	tel.Timings.Fetch = s.now().Sub(fetchStart)
	metrics.SearchDuration.WithLabelValues("fetch").Observe(tel.Timings.Fetch.Seconds())
	if err != nil {
		events.Error(event.CandidatesFetchFailed,
			zap.Duration("fetch", tel.Timings.Fetch),
			zap.Error(err),
		)
		return HardError{Err: fmt.Errorf("%w: %w", domain.ErrCandidateFetch, err)}
	}
	events.Info(event.CandidatesFetched,
		zap.Int("count", len(cands)),
		zap.Int("limit", p.Limit()),
		zap.Duration("fetch", tel.Timings.Fetch),
	)

	ranked := s.ranker.Rank(qvec, cands, p.K, deadline, rank.Options{AbortIfDeadline: s.abortIfDeadline})
	tel.Timings.ScoreSort = ranked.Elapsed
	tel.Candidates = ranked.Total
	tel.Evaluated = ranked.Evaluated
	tel.Stats = ranked.Stats
	tel.BudgetHit = ranked.BudgetHit
	metrics.SearchDuration.WithLabelValues("score_sort").Observe(ranked.Elapsed.Seconds())
	metrics.CandidatesEvaluated.Observe(float64(ranked.Evaluated))
	ranked.Stats.Record()

	events.Info(event.ThrottleMetrics,
		zap.String("key", key),
		zap.Bool("throttled", lease.Active()),
		zap.Bool("acquire_timeout", lease.TimedOut()),
		zap.Duration("acquire_wait", lease.AcquireWait()),
		zap.Duration("pace_wait", lease.PaceWait()),
		zap.Int("evaluated", ranked.Evaluated),
		zap.Int("normalized", ranked.Stats.Normalized),
		zap.Int("short", ranked.Stats.Short),
		zap.Int("skipped", ranked.Stats.Skipped),
		zap.Ints("skipped_sample", ranked.Stats.SkippedSample),
		zap.Bool("budget_hit", ranked.BudgetHit),
	)

	if len(ranked.Results) == 0 && ranked.BudgetHit {
		return SoftFail{Reason: event.LatencyBudgetHit, Attrs: []zap.Field{
			zap.Duration("budget", budget),
			zap.Int("candidates", ranked.Total),
			zap.Int("evaluated", ranked.Evaluated),
		}}
	}

	tel.Timings.Total = s.now().Sub(started)
	metrics.SearchDuration.WithLabelValues("total").Observe(tel.Timings.Total.Seconds())

	ok := OK{Results: ranked.Results, Telemetry: tel}

	if s.manifests != nil && p.ResponseID != "" {
		m := manifestpkg.Build(manifestpkg.Input{
			Params:          p,
			Settings:        settings,
			LatencyBudget:   budget,
			EmbeddingModel:  s.embeddingModel,
			Results:         ranked.Results,
			Timings:         tel.Timings,
			Candidates:      ranked.Total,
			Evaluated:       ranked.Evaluated,
			Stats:           ranked.Stats,
			BudgetHit:       ranked.BudgetHit,
			ThrottleTimeout: tel.ThrottleTimeout,
			GeneratedAt:     s.now(),
		})
		path, err := s.manifests.Write(ctx, p.Slug, &m)
		if err != nil {
			return HardError{Err: err}
		}
		ok.ManifestPath = path
	}

	top := 0.0
	if len(ranked.Results) > 0 {
		top = ranked.Results[0].Score()
	}
	events.Info(event.EvidenceSelected,
		zap.Int("returned", len(ranked.Results)),
		zap.Float64("top_score", top),
		zap.Bool("budget_hit", ranked.BudgetHit),
		zap.String("manifest", ok.ManifestPath),
		zap.Duration("total", tel.Timings.Total),
	)

	return ok
}

func hardReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrManifestWrite):
		return "manifest_write"
	case errors.Is(err, domain.ErrCandidateFetch):
		return "candidate_fetch"
	default:
		return "unknown"
	}
}
