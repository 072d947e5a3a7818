package chi

import (
	"errors"
	"fmt"
)

// ErrorResponseCode is the machine-readable error code returned to clients.
type ErrorResponseCode string

// Error codes.
const (
	ErrorResponseCodeBadRequest             ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized           ErrorResponseCode = "unauthorized"
	ErrorResponseCodeNotFound               ErrorResponseCode = "not_found"
	ErrorResponseCodeRateLimited            ErrorResponseCode = "rate_limited"
	ErrorResponseCodeCandidateFetchFailed   ErrorResponseCode = "candidate_fetch_failed"
	ErrorResponseCodeManifestWriteFailed    ErrorResponseCode = "manifest_write_failed"
	ErrorResponseCodeEmbeddingProviderError ErrorResponseCode = "embedding_provider_error"
	ErrorResponseCodeInternalError          ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// SearchStatus tells a client whether an empty result list is expected.
type SearchStatus string

// Search statuses.
const (
	SearchStatusOK       SearchStatus = "ok"
	SearchStatusDegraded SearchStatus = "degraded"
)

// SearchParams are the query parameters of GET /v1/kb/{slug}/{scope}/search.
type SearchParams struct {
	Q               *string `form:"q,omitempty" json:"q,omitempty"`
	K               *int    `form:"k,omitempty" json:"k,omitempty"`
	CandidateLimit  *int    `form:"candidate_limit,omitempty" json:"candidate_limit,omitempty"`
	LatencyBudgetMs *int    `form:"latency_budget_ms,omitempty" json:"latency_budget_ms,omitempty"`
	ResponseID      *string `form:"response_id,omitempty" json:"response_id,omitempty"`
	DB              *string `form:"db,omitempty" json:"db,omitempty"`
}

// SearchResultItem is one ranked chunk.
type SearchResultItem struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	SourceID string         `json:"source_id,omitempty"`
	ChunkID  string         `json:"chunk_id,omitempty"`
}

// SearchTimings reports stage durations in milliseconds.
type SearchTimings struct {
	EmbedMs     float64 `json:"embed_ms"`
	FetchMs     float64 `json:"fetch_ms"`
	ScoreSortMs float64 `json:"score_sort_ms"`
	TotalMs     float64 `json:"total_ms"`
}

// SearchResponse is the body of a successful or degraded search.
type SearchResponse struct {
	ResponseID  string             `json:"response_id"`
	Status      SearchStatus       `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	Items       []SearchResultItem `json:"items"`
	Total       int                `json:"total"`
	Candidates  int                `json:"candidates,omitempty"`
	Evaluated   int                `json:"evaluated,omitempty"`
	BudgetHit   bool               `json:"budget_hit,omitempty"`
	Timings     *SearchTimings     `json:"timings,omitempty"`
	ManifestURL string             `json:"manifest_url,omitempty"`
}

// UsageParams are the query parameters of GET /v1/usage.
type UsageParams struct {
	Period *string `form:"period,omitempty" json:"period,omitempty"`
}

// UsageResponse reports query-embedding tokens for one period.
// TokensLimit is 0 and TokensRemaining is absent when the window is unlimited.
type UsageResponse struct {
	Period          string `json:"period"`
	Provider        string `json:"provider"`
	PeriodStart     int64  `json:"period_start"`
	PeriodEnd       int64  `json:"period_end"`
	TokensUsed      int64  `json:"tokens_used"`
	TokensLimit     int64  `json:"tokens_limit"`
	TokensRemaining *int64 `json:"tokens_remaining,omitempty"`
	Exhausted       bool   `json:"exhausted"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// InvalidParamFormatError reports a parameter that failed to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

var (
	errEmptyParam    = errors.New("must not be empty")
	errNegativeParam = errors.New("must not be negative")
	errParamTooLarge = errors.New("exceeds the allowed maximum")
	errBadResponseID = errors.New("must match [A-Za-z0-9][A-Za-z0-9._-]{0,127}")
)
