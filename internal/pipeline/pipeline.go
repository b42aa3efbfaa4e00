// Package pipeline runs ingestion and aggregation as one all-or-nothing step
// and caches the latest successful result.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/annotations"
	"github.com/banshee-data/agreement.report/internal/monitoring"
)

// Runner produces a complete Result or an error, never a partial one.
type Runner interface {
	Run(ctx context.Context) (*agreement.Result, error)
}

// Pipeline loads a corpus and aggregates it.
type Pipeline struct {
	Loader     *annotations.Loader
	Aggregator *agreement.Aggregator
}

// New returns a pipeline reading rating files from fsys.
func New(fsys fs.FS, s annotations.Scheme, w agreement.Weighting) *Pipeline {
	return &Pipeline{
		Loader:     annotations.NewLoader(fsys, s),
		Aggregator: agreement.NewAggregator(w),
	}
}

// Run ingests every rating file and derives all tables. Any ingestion or
// aggregation failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*agreement.Result, error) {
	start := time.Now()
	res, triples, err := p.run(ctx)
	monitoring.ObservePipelineRun(time.Since(start), triples, err)
	if err != nil {
		monitoring.Logf("pipeline run failed after %v: %v", time.Since(start), err)
		return nil, err
	}
	monitoring.Debugf("pipeline run: %d triples in %v", triples, time.Since(start))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context) (*agreement.Result, int, error) {
	corpus, err := p.Loader.Load(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: %w", err)
	}
	res, err := p.Aggregator.Run(corpus)
	if err != nil {
		return nil, corpus.Len(), fmt.Errorf("aggregate: %w", err)
	}
	return res, corpus.Len(), nil
}
