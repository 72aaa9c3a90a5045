// Package jobs wires the pipeline stages to the job queue: company
// resolution fans out into per-fragment extractions, each extraction
// diffs its result against the stored snapshot, and only non-empty diffs
// produce a save job. State travels on payloads, never through shared
// storage between sibling jobs.
package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/klimatdata/disclosure-pipeline/internal/extract"
	"github.com/klimatdata/disclosure-pipeline/internal/model"
	"github.com/klimatdata/disclosure-pipeline/internal/queue"
	"github.com/klimatdata/disclosure-pipeline/internal/registry"
	"github.com/klimatdata/disclosure-pipeline/internal/resolve"
	"github.com/klimatdata/disclosure-pipeline/internal/store"
	"github.com/klimatdata/disclosure-pipeline/pkg/portal"
)

// Pipeline holds the dependencies shared by all job handlers.
type Pipeline struct {
	client    *queue.Client
	resolver  *resolve.Resolver
	extractor *extract.Extractor
	portal    portal.Client
	registry  *registry.Registry
	runs      store.Store
}

// New creates the pipeline. runs may be nil when no bookkeeping store is
// configured.
func New(client *queue.Client, resolver *resolve.Resolver, extractor *extract.Extractor, portalClient portal.Client, reg *registry.Registry, runs store.Store) *Pipeline {
	return &Pipeline{
		client:    client,
		resolver:  resolver,
		extractor: extractor,
		portal:    portalClient,
		registry:  reg,
		runs:      runs,
	}
}

// completeRun updates run bookkeeping; failures are logged, never fail
// the job that triggered them.
func (p *Pipeline) completeRun(ctx context.Context, runID string, status model.RunStatus, message string) {
	if p.runs == nil || runID == "" {
		return
	}
	if err := p.runs.CompleteRun(ctx, runID, status, message); err != nil {
		zap.L().Warn("jobs: update run status",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

// Register attaches every job kind to the worker.
func (p *Pipeline) Register(w *queue.Worker) {
	w.Handle(JobResolveCompany, p.handleResolve)
	w.Handle(JobSaveFragment, p.handleSave)
	for _, def := range fragmentDefs {
		w.Handle(def.jobName, p.extractHandler(def))
	}
}
