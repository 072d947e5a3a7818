package result

import (
	"testing"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"
)

func TestNew(t *testing.T) {
	c := &candidate.Candidate{
		ID:       "c-1",
		Content:  "text",
		Metadata: map[string]any{"lang": "en"},
		Lineage:  candidate.Lineage{SourceID: "s"},
	}
	r := New(c, 0.75, 3)
	if r.ID() != "c-1" || r.Content() != "text" || r.Score() != 0.75 || r.Index() != 3 {
		t.Errorf("unexpected result: %+v", r)
	}
	if r.Lineage().SourceID != "s" {
		t.Errorf("Lineage().SourceID = %q", r.Lineage().SourceID)
	}
}

func TestBefore(t *testing.T) {
	c := &candidate.Candidate{}
	high := New(c, 0.9, 5)
	low := New(c, 0.1, 0)
	tieEarly := New(c, 0.9, 1)

	if !high.Before(&low) {
		t.Error("higher score should rank first")
	}
	if !tieEarly.Before(&high) {
		t.Error("equal score: lower index should rank first")
	}
	if high.Before(&high) {
		t.Error("a result must not rank before itself")
	}
}
