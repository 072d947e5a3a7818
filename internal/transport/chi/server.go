package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/manifest"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/query"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/result"
	settingspkg "github.com/kailas-cloud/kbsearch/internal/domain/retrieval/throttle"
	logpkg "github.com/kailas-cloud/kbsearch/internal/logger"
	healthuc "github.com/kailas-cloud/kbsearch/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/kbsearch/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/kbsearch/internal/usecase/usage"
)

// Searcher runs one search.
type Searcher interface {
	Search(ctx context.Context, p *query.Params, settings *settingspkg.Settings) retrievaluc.Outcome
}

// ManifestReader loads a persisted manifest by response id.
type ManifestReader interface {
	Read(ctx context.Context, responseID string) (*manifest.Manifest, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReporter reports embedding token usage.
type UsageReporter interface {
	GetReport(ctx context.Context, period usageuc.Period) (usageuc.Report, error)
}

// Defaults fill search parameters the client leaves out.
type Defaults struct {
	DB             string
	K              int
	CandidateLimit int
	Throttle       *settingspkg.Settings
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the search HTTP API.
type Server struct {
	search        Searcher
	manifests     ManifestReader
	health        HealthChecker
	usage         UsageReporter
	defaults      Defaults
	now           func() time.Time
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. manifests can be nil.
func NewServer(
	search Searcher,
	manifests ManifestReader,
	health HealthChecker,
	defaults Defaults,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:    search,
		manifests: manifests,
		health:    health,
		defaults:  defaults,
		now:       time.Now,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, ErrorResponseCodeBadRequest),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorResponseCodeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorResponseCodeRateLimited),
		sentinelHandler(domain.ErrCandidateFetch, http.StatusBadGateway, ErrorResponseCodeCandidateFetchFailed),
		sentinelHandler(domain.ErrManifestWrite,
			http.StatusInternalServerError, ErrorResponseCodeManifestWriteFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, ErrorResponseCodeEmbeddingProviderError),
	}
	return s
}

// WithUsage enables GET /v1/usage.
func (s *Server) WithUsage(u UsageReporter) *Server {
	s.usage = u
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r gochi.Router) {
	r.Get("/v1/kb/{slug}/{scope}/search", s.Search)
	r.Get("/v1/manifests/{response_id}", s.GetManifest)
	r.Get("/v1/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles GET /v1/kb/{slug}/{scope}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	startedAt := s.now()

	var slug, scope string
	if err := bindPathParam(r, "slug", &slug); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
		return
	}
	if err := bindPathParam(r, "scope", &scope); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
		return
	}
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
		return
	}

	p := s.queryParams(slug, scope, params, startedAt)
	w.Header().Set("X-Response-ID", p.ResponseID)

	ctx := logpkg.ContextWithLogger(r.Context(),
		logpkg.FromContextOr(r.Context(), s.logger).With(zap.String("response_id", p.ResponseID)))

	switch o := s.search.Search(ctx, p, s.defaults.Throttle).(type) {
	case retrievaluc.OK:
		writeJSON(w, http.StatusOK, okResponse(p.ResponseID, o))
	case retrievaluc.SoftFail:
		writeJSON(w, http.StatusOK, SearchResponse{
			ResponseID: p.ResponseID,
			Status:     SearchStatusDegraded,
			Reason:     o.Reason.String(),
			Items:      []SearchResultItem{},
		})
	case retrievaluc.HardError:
		s.handleDomainError(w, o.Err)
	default:
		s.handleDomainError(w, errors.New("unknown search outcome"))
	}
}

func (s *Server) queryParams(slug, scope string, params SearchParams, startedAt time.Time) *query.Params {
	p := &query.Params{
		DB:             s.defaults.DB,
		Slug:           slug,
		Scope:          scope,
		K:              s.defaults.K,
		CandidateLimit: s.defaults.CandidateLimit,
		StartedAt:      startedAt,
	}
	if params.Q != nil {
		p.Query = *params.Q
	}
	if params.K != nil {
		p.K = *params.K
	}
	if params.CandidateLimit != nil && *params.CandidateLimit > 0 {
		p.CandidateLimit = *params.CandidateLimit
	}
	if params.LatencyBudgetMs != nil && *params.LatencyBudgetMs > 0 {
		p.LatencyBudget = time.Duration(*params.LatencyBudgetMs) * time.Millisecond
	}
	if params.DB != nil && *params.DB != "" {
		p.DB = *params.DB
	}
	if params.ResponseID != nil && *params.ResponseID != "" {
		p.ResponseID = *params.ResponseID
	} else {
		p.ResponseID = uuid.NewString()
	}
	return p
}

// GetManifest handles GET /v1/manifests/{response_id}.
func (s *Server) GetManifest(w http.ResponseWriter, r *http.Request) {
	var responseID string
	if err := bindPathParam(r, "response_id", &responseID); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
		return
	}
	if !validResponseID(responseID) {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "invalid response_id")
		return
	}
	if s.manifests == nil {
		writeError(w, http.StatusNotFound, ErrorResponseCodeNotFound, "manifests are disabled")
		return
	}

	m, err := s.manifests.Read(r.Context(), responseID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, http.StatusNotFound, ErrorResponseCodeNotFound, "usage reporting is disabled")
		return
	}
	params, err := bindUsageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
		return
	}

	period := usageuc.PeriodDay
	if params.Period != nil && *params.Period != "" {
		period = usageuc.Period(*params.Period)
	}

	report, err := s.usage.GetReport(r.Context(), period)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := UsageResponse{
		Period:      string(report.Period),
		Provider:    report.Provider,
		PeriodStart: report.PeriodStart.UnixMilli(),
		PeriodEnd:   report.PeriodEnd.UnixMilli(),
		TokensUsed:  report.TokensUsed,
		TokensLimit: report.TokensLimit,
		Exhausted:   report.Exhausted,
	}
	if report.TokensRemaining >= 0 {
		remaining := report.TokensRemaining
		resp.TokensRemaining = &remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func okResponse(responseID string, o retrievaluc.OK) SearchResponse {
	items := make([]SearchResultItem, len(o.Results))
	for i := range o.Results {
		items[i] = resultToItem(&o.Results[i])
	}

	t := o.Telemetry.Timings
	resp := SearchResponse{
		ResponseID: responseID,
		Status:     SearchStatusOK,
		Items:      items,
		Total:      len(items),
		Candidates: o.Telemetry.Candidates,
		Evaluated:  o.Telemetry.Evaluated,
		BudgetHit:  o.Telemetry.BudgetHit,
		Timings: &SearchTimings{
			EmbedMs:     millis(t.Embed),
			FetchMs:     millis(t.Fetch),
			ScoreSortMs: millis(t.ScoreSort),
			TotalMs:     millis(t.Total),
		},
	}
	if o.ManifestPath != "" {
		resp.ManifestURL = "/v1/manifests/" + responseID
	}
	return resp
}

func resultToItem(r *result.Result) SearchResultItem {
	ref := r.Lineage().Resolve()
	return SearchResultItem{
		ID:       r.ID(),
		Score:    r.Score(),
		Content:  r.Content(),
		Metadata: r.Metadata(),
		SourceID: ref.SourceID,
		ChunkID:  ref.ChunkID,
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrCandidateFetch,
		domain.ErrManifestWrite,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}
