package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePipelineRun(t *testing.T) {
	okBefore := testutil.ToFloat64(pipelineRuns.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(pipelineRuns.WithLabelValues("error"))

	ObservePipelineRun(20*time.Millisecond, 12, nil)
	ObservePipelineRun(5*time.Millisecond, 99, errors.New("malformed input"))

	if got := testutil.ToFloat64(pipelineRuns.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Errorf("ok runs increased by %v, want 1", got)
	}
	if got := testutil.ToFloat64(pipelineRuns.WithLabelValues("error")) - errBefore; got != 1 {
		t.Errorf("error runs increased by %v, want 1", got)
	}
	// A failed run leaves the triple gauge at the last good corpus.
	if got := testutil.ToFloat64(corpusTriples); got != 12 {
		t.Errorf("corpus triples = %v, want 12", got)
	}
}

func TestObserveCacheAndSkippedGroups(t *testing.T) {
	hits := testutil.ToFloat64(cacheRequests.WithLabelValues("hit"))
	skipped := testutil.ToFloat64(skippedGroups)

	ObserveCache("hit")
	ObserveCache("hit")
	ObserveSkippedGroup()

	if got := testutil.ToFloat64(cacheRequests.WithLabelValues("hit")) - hits; got != 2 {
		t.Errorf("cache hits increased by %v, want 2", got)
	}
	if got := testutil.ToFloat64(skippedGroups) - skipped; got != 1 {
		t.Errorf("skipped groups increased by %v, want 1", got)
	}
}
