package jobs

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/klimatdata/disclosure-pipeline/internal/model"
	"github.com/klimatdata/disclosure-pipeline/internal/queue"
	"github.com/klimatdata/disclosure-pipeline/internal/resolve"
	"github.com/klimatdata/disclosure-pipeline/pkg/portal"
)

// handleResolve pins the submission to a Wikidata identity, fetches the
// diff baseline, and fans out one extraction job per fragment.
func (p *Pipeline) handleResolve(ctx context.Context, job *queue.Job) error {
	var sub SubmissionPayload
	if err := job.Unmarshal(&sub); err != nil {
		return err
	}
	if sub.Company.Name == "" {
		return queue.Fatal(eris.New("jobs: submission has no company name"))
	}

	// A re-run of an already resolved submission skips the search.
	if sub.Company.WikidataID == "" {
		id, err := p.resolver.Resolve(ctx, sub.Company.Name, job.RetryContext)
		if err != nil {
			if eris.Is(err, resolve.ErrNoEntityFound) {
				// No amount of retrying finds an entity that is not there.
				p.completeRun(ctx, sub.RunID, model.RunStatusFailed, err.Error())
				return queue.Fatal(err)
			}
			return err
		}
		sub.Company.WikidataID = id
		job.Log("resolved %q to %s", sub.Company.Name, id)
	}

	snapshot, err := p.portal.GetCompany(ctx, sub.Company.WikidataID)
	if err != nil && !portal.IsNotFound(err) {
		return eris.Wrap(err, "jobs: fetch company snapshot")
	}
	sub.Snapshot = snapshot

	for _, def := range fragmentDefs {
		if _, err := p.client.Enqueue(ctx, def.jobName, sub); err != nil {
			return eris.Wrapf(err, "jobs: enqueue %s", def.jobName)
		}
	}

	p.completeRun(ctx, sub.RunID, model.RunStatusCompleted,
		fmt.Sprintf("dispatched %d extraction jobs", len(fragmentDefs)))
	job.SendMessage(ctx, fmt.Sprintf("Processing %s (%s): %s",
		sub.Company.Name, sub.Company.WikidataID, sub.ReportURL))
	return nil
}
