package chi

import (
	"fmt"
	"net/http"
	"regexp"

	gochi "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/query"
)

var responseIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// bindPathParam binds a simple-style path parameter.
func bindPathParam(r *http.Request, name string, dest *string) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, gochi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false})
	if err != nil {
		return &InvalidParamFormatError{ParamName: name, Err: err}
	}
	if *dest == "" {
		return &InvalidParamFormatError{ParamName: name, Err: errEmptyParam}
	}
	return nil
}

// bindSearchParams binds the query string of a search request. q is
// optional here: a blank query reaches the retriever, which reports it.
func bindSearchParams(r *http.Request) (SearchParams, error) {
	var params SearchParams
	values := r.URL.Query()

	bindings := []struct {
		name string
		dest any
	}{
		{"q", &params.Q},
		{"k", &params.K},
		{"candidate_limit", &params.CandidateLimit},
		{"latency_budget_ms", &params.LatencyBudgetMs},
		{"response_id", &params.ResponseID},
		{"db", &params.DB},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, values, b.dest); err != nil {
			return SearchParams{}, &InvalidParamFormatError{ParamName: b.name, Err: err}
		}
	}

	switch {
	case params.K != nil && *params.K < 0:
		return SearchParams{}, &InvalidParamFormatError{ParamName: "k", Err: errNegativeParam}
	case params.CandidateLimit != nil && *params.CandidateLimit < 0:
		return SearchParams{}, &InvalidParamFormatError{ParamName: "candidate_limit", Err: errNegativeParam}
	case params.LatencyBudgetMs != nil && *params.LatencyBudgetMs < 0:
		return SearchParams{}, &InvalidParamFormatError{ParamName: "latency_budget_ms", Err: errNegativeParam}
	case params.K != nil && *params.K > query.MaxK:
		return SearchParams{}, &InvalidParamFormatError{ParamName: "k", Err: tooLarge(query.MaxK)}
	case params.CandidateLimit != nil && *params.CandidateLimit > query.MaxCandidateLimit:
		return SearchParams{}, &InvalidParamFormatError{
			ParamName: "candidate_limit", Err: tooLarge(query.MaxCandidateLimit),
		}
	case params.Q != nil && len(*params.Q) > query.MaxQueryLength:
		return SearchParams{}, &InvalidParamFormatError{ParamName: "q", Err: tooLarge(query.MaxQueryLength)}
	case params.ResponseID != nil && !validResponseID(*params.ResponseID):
		return SearchParams{}, &InvalidParamFormatError{ParamName: "response_id", Err: errBadResponseID}
	}
	return params, nil
}

// bindUsageParams binds the query string of a usage request.
func bindUsageParams(r *http.Request) (UsageParams, error) {
	var params UsageParams
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &params.Period); err != nil {
		return UsageParams{}, &InvalidParamFormatError{ParamName: "period", Err: err}
	}
	return params, nil
}

func tooLarge(limit int) error {
	return fmt.Errorf("%w (%d)", errParamTooLarge, limit)
}

func validResponseID(id string) bool {
	return responseIDPattern.MatchString(id)
}
