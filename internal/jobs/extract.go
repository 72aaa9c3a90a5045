package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/klimatdata/disclosure-pipeline/internal/diff"
	"github.com/klimatdata/disclosure-pipeline/internal/extract"
	"github.com/klimatdata/disclosure-pipeline/internal/model"
	"github.com/klimatdata/disclosure-pipeline/internal/queue"
	"github.com/klimatdata/disclosure-pipeline/internal/registry"
	"github.com/klimatdata/disclosure-pipeline/pkg/anthropic"
)

// fragmentDef describes one extractable fragment: how to get a proposed
// value out of the report and where its baseline lives in the snapshot.
type fragmentDef struct {
	name      string
	jobName   string
	perPeriod bool
	extract   func(p *Pipeline, ctx context.Context, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod, retryCtx []string) (any, error)
	existing  func(snap *model.CompanySnapshot, year string) any
}

// List fragments arrive wrapped in an object so the model always replies
// with a JSON document, never a bare array.
type goalsDoc struct {
	Goals []model.Goal `json:"goals"`
}

type initiativesDoc struct {
	Initiatives []model.Initiative `json:"initiatives"`
}

type equalityDoc struct {
	Equalities []model.Equality `json:"equalities"`
}

var fragmentDefs = []fragmentDef{
	{
		name: "emissions", jobName: JobExtractEmissions, perPeriod: true,
		extract: func(p *Pipeline, ctx context.Context, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod, retryCtx []string) (any, error) {
			return extractValue[model.Emissions](p, ctx, pr, sub, period, retryCtx)
		},
		existing: func(snap *model.CompanySnapshot, year string) any {
			return snap.Period(year).Emissions
		},
	},
	{
		name: "economy", jobName: JobExtractEconomy, perPeriod: true,
		extract: func(p *Pipeline, ctx context.Context, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod, retryCtx []string) (any, error) {
			return extractValue[model.Economy](p, ctx, pr, sub, period, retryCtx)
		},
		existing: func(snap *model.CompanySnapshot, year string) any {
			return snap.Period(year).Economy
		},
	},
	{
		name: "goals", jobName: JobExtractGoals,
		extract: func(p *Pipeline, ctx context.Context, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod, retryCtx []string) (any, error) {
			doc, err := extractValue[goalsDoc](p, ctx, pr, sub, period, retryCtx)
			return doc.Goals, err
		},
		existing: func(snap *model.CompanySnapshot, _ string) any {
			if snap == nil {
				return nil
			}
			return snap.Goals
		},
	},
	{
		name: "initiatives", jobName: JobExtractInitiatives,
		extract: func(p *Pipeline, ctx context.Context, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod, retryCtx []string) (any, error) {
			doc, err := extractValue[initiativesDoc](p, ctx, pr, sub, period, retryCtx)
			return doc.Initiatives, err
		},
		existing: func(snap *model.CompanySnapshot, _ string) any {
			if snap == nil {
				return nil
			}
			return snap.Initiatives
		},
	},
	{
		name: "equality", jobName: JobExtractEquality,
		extract: func(p *Pipeline, ctx context.Context, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod, retryCtx []string) (any, error) {
			doc, err := extractValue[equalityDoc](p, ctx, pr, sub, period, retryCtx)
			return doc.Equalities, err
		},
		existing: func(snap *model.CompanySnapshot, _ string) any {
			if snap == nil {
				return nil
			}
			return snap.Equalities
		},
	},
	{
		name: "industry", jobName: JobExtractIndustry,
		extract: func(p *Pipeline, ctx context.Context, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod, retryCtx []string) (any, error) {
			return extractValue[model.Industry](p, ctx, pr, sub, period, retryCtx)
		},
		existing: func(snap *model.CompanySnapshot, _ string) any {
			if snap == nil {
				return nil
			}
			return snap.Industry
		},
	},
}

// extractHandler returns the queue handler for one fragment kind.
func (p *Pipeline) extractHandler(def fragmentDef) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var sub SubmissionPayload
		if err := job.Unmarshal(&sub); err != nil {
			return err
		}
		if sub.Company.WikidataID == "" {
			return queue.Fatal(eris.New("jobs: extraction job before resolution"))
		}
		if strings.TrimSpace(sub.ReportText) == "" {
			return queue.Fatal(eris.New("jobs: submission has no report text"))
		}

		pr, err := p.registry.Get(def.name)
		if err != nil {
			return queue.Fatal(err)
		}

		if !def.perPeriod {
			return p.extractOne(ctx, job, def, pr, sub, nil)
		}
		if len(sub.Periods) == 0 {
			job.Log("%s: no reporting periods in submission", def.name)
			return nil
		}
		// Every period is attempted; failures aggregate into one
		// retryable error after the loop so a bad period never starves
		// the others.
		var failed []string
		for i := range sub.Periods {
			period := &sub.Periods[i]
			if err := p.extractOne(ctx, job, def, pr, sub, period); err != nil {
				job.Log("%s: period %s failed: %v", def.name, period.Year, err)
				failed = append(failed, fmt.Sprintf("%s: %v", period.Year, err))
			}
		}
		if len(failed) > 0 {
			return eris.Errorf("jobs: %s: %d of %d periods failed: %s",
				def.name, len(failed), len(sub.Periods), strings.Join(failed, "; "))
		}
		return nil
	}
}

// extractOne runs one extraction, diffs it against the snapshot, and
// enqueues a save job iff the diff is non-empty.
func (p *Pipeline) extractOne(ctx context.Context, job *queue.Job, def fragmentDef, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod) error {
	proposed, err := def.extract(p, ctx, pr, sub, period, job.RetryContext)
	if err != nil {
		// Parse failures come back here and are retried by the queue with
		// the failure message appended to the retry context.
		return err
	}

	var year string
	if period != nil {
		year = period.Year
	}

	res, err := diff.Compare(def.name, def.existing(sub.Snapshot, year), proposed)
	if err != nil {
		return err
	}
	if res.Empty() {
		job.Log("%s: no changes for %s %s", def.name, sub.Company.WikidataID, year)
		return nil
	}

	value, err := diff.Canonical(proposed)
	if err != nil {
		return err
	}
	_, err = p.client.Enqueue(ctx, JobSaveFragment, SavePayload{
		Company:  sub.Company,
		Fragment: def.name,
		Year:     year,
		Value:    value,
		Diff:     res,
		Metadata: model.NewMetadata(sub.ReportURL),
	})
	if err != nil {
		return err
	}
	job.Log("%s: %d change(s) queued for save", def.name, len(res.Changes))
	return nil
}

func extractValue[T any](p *Pipeline, ctx context.Context, pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod, retryCtx []string) (T, error) {
	var out T
	_, err := p.extractor.Extract(ctx, extract.Request{
		Schema:       pr.Schema,
		System:       pr.System,
		Turns:        buildTurns(pr, sub, period),
		RetryContext: retryCtx,
	}, &out)
	return out, err
}

func buildTurns(pr registry.Prompt, sub SubmissionPayload, period *model.ReportingPeriod) []anthropic.Message {
	var b strings.Builder
	b.WriteString(pr.Instructions)
	fmt.Fprintf(&b, "\n\nCompany: %s", sub.Company.Name)
	if period != nil {
		fmt.Fprintf(&b, "\nReporting period: %s", period.Year)
		if period.StartDate != "" || period.EndDate != "" {
			fmt.Fprintf(&b, " (%s to %s)", period.StartDate, period.EndDate)
		}
	}
	fmt.Fprintf(&b, "\n\nReport:\n%s", sub.ReportText)
	return []anthropic.Message{{Role: "user", Content: b.String()}}
}
