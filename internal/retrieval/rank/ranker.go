package rank

import (
	"container/heap"
	"slices"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/result"
	"github.com/kailas-cloud/kbsearch/internal/retrieval/vector"
)

// Options tune a single ranking pass.
type Options struct {
	// AbortIfDeadline returns as soon as the deadline is hit, without
	// coercing the remaining candidates for stats.
	AbortIfDeadline bool
}

// Outcome is the result of one ranking pass.
type Outcome struct {
	Results []result.Result
	// Total is the number of candidates handed to the ranker.
	Total     int
	Stats     vector.Stats
	Elapsed   time.Duration
	Evaluated int
	BudgetHit bool
}

// Ranker selects the top-k candidates by cosine similarity.
type Ranker struct {
	now func() time.Time
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithClock overrides the clock used for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

// New creates a ranker.
func New(opts ...Option) *Ranker {
	r := &Ranker{now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rank scores candidates against query and returns up to k results ordered
// by score descending, then by original position. A zero deadline disables
// the budget check. The deadline is checked before each candidate is scored;
// candidates scored before it passed stay eligible.
func (r *Ranker) Rank(query []float64, candidates []candidate.Candidate, k int, deadline time.Time, opts Options) Outcome {
	start := r.now()
	out := Outcome{Total: len(candidates)}
	if k <= 0 || len(candidates) == 0 {
		out.Elapsed = r.now().Sub(start)
		return out
	}

	dim := len(query)
	var sel selector
	if k >= len(candidates) {
		sel = &sortSelector{k: k, items: make([]result.Result, 0, len(candidates))}
	} else {
		sel = &heapSelector{k: k, h: make(minHeap, 0, k)}
	}

	for i := range candidates {
		c := &candidates[i]
		if !out.BudgetHit && !deadline.IsZero() && !r.now().Before(deadline) {
			out.BudgetHit = true
			if opts.AbortIfDeadline {
				break
			}
		}

		vec := vector.Coerce(c.Embedding, i, dim, &out.Stats)
		if out.BudgetHit || vec == nil {
			continue
		}
		out.Evaluated++
		sel.offer(result.New(c, Cosine(query, vec), i))
	}

	out.Results = sel.drain()
	out.Elapsed = r.now().Sub(start)
	return out
}

type selector interface {
	offer(res result.Result)
	drain() []result.Result
}

// sortSelector keeps every scored candidate and sorts once at the end.
type sortSelector struct {
	k     int
	items []result.Result
}

func (s *sortSelector) offer(res result.Result) { s.items = append(s.items, res) }

func (s *sortSelector) drain() []result.Result {
	sortResults(s.items)
	if len(s.items) > s.k {
		s.items = s.items[:s.k]
	}
	return s.items
}

// heapSelector keeps the best k in a min-heap whose root is the worst kept result.
type heapSelector struct {
	k int
	h minHeap
}

func (s *heapSelector) offer(res result.Result) {
	if len(s.h) < s.k {
		heap.Push(&s.h, res)
		return
	}
	if res.Before(&s.h[0]) {
		s.h[0] = res
		heap.Fix(&s.h, 0)
	}
}

func (s *heapSelector) drain() []result.Result {
	out := []result.Result(s.h)
	sortResults(out)
	return out
}

type minHeap []result.Result

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[j].Before(&h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(result.Result)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func sortResults(rs []result.Result) {
	slices.SortFunc(rs, func(a, b result.Result) int {
		switch {
		case a.Before(&b):
			return -1
		case b.Before(&a):
			return 1
		default:
			return 0
		}
	})
}
