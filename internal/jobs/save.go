package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/klimatdata/disclosure-pipeline/internal/diff"
	"github.com/klimatdata/disclosure-pipeline/internal/model"
	"github.com/klimatdata/disclosure-pipeline/internal/queue"
	"github.com/klimatdata/disclosure-pipeline/pkg/portal"
)

// upsertTask is one independent field-group write. A nil value is an
// explicit delete.
type upsertTask struct {
	endpoint portal.Endpoint
	value    any
}

// handleSave writes an approved diff to the portal, one upsert per
// changed field group. The upserts run concurrently and settle
// independently: a failing group never blocks or rolls back its
// siblings, it only makes the job as a whole retryable.
func (p *Pipeline) handleSave(ctx context.Context, job *queue.Job) error {
	var sp SavePayload
	if err := job.Unmarshal(&sp); err != nil {
		return err
	}
	if sp.Company.WikidataID == "" {
		return queue.Fatal(eris.New("jobs: save without a resolved company"))
	}
	if !sp.Diff.RequiresApproval || sp.Diff.Empty() {
		job.Log("save: empty diff for %s %s, nothing to write", sp.Fragment, sp.Company.WikidataID)
		return nil
	}

	tasks, err := buildTasks(sp)
	if err != nil {
		return queue.Fatal(err)
	}
	if len(tasks) == 0 {
		job.Log("save: diff for %s carries no writable field groups", sp.Fragment)
		return nil
	}

	key := portal.EntityKey{WikidataID: sp.Company.WikidataID, Year: sp.Year}

	outcomes := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.portal.Upsert(ctx, tasks[i].endpoint, key, tasks[i].value, sp.Metadata)
			outcomes[i] = err
		}(i)
	}
	wg.Wait()

	var failed []string
	for i, err := range outcomes {
		if err != nil {
			job.Log("save: %s failed: %v", tasks[i].endpoint, err)
			failed = append(failed, string(tasks[i].endpoint))
			continue
		}
		job.Log("save: %s written", tasks[i].endpoint)
	}

	scope := sp.Company.WikidataID
	if sp.Year != "" {
		scope += " " + sp.Year
	}
	msg := fmt.Sprintf("%s (%s)\n%s", sp.Company.Name, scope, sp.Diff.Render())
	if len(failed) > 0 {
		msg += "\nFailed field groups: " + strings.Join(failed, ", ")
	}
	job.SendMessage(ctx, msg)

	if len(failed) > 0 {
		return eris.Errorf("jobs: save %s: %d of %d field groups failed", sp.Fragment, len(failed), len(tasks))
	}
	return nil
}

// buildTasks maps the changed fields of a diff onto portal endpoints.
func buildTasks(sp SavePayload) ([]upsertTask, error) {
	changed := changedLeafs(sp.Diff)

	switch sp.Fragment {
	case "emissions":
		var em model.Emissions
		if err := json.Unmarshal(sp.Value, &em); err != nil {
			return nil, eris.Wrap(err, "jobs: decode emissions fragment")
		}
		var tasks []upsertTask
		tasks = nullableTask(tasks, changed, "scope1", portal.EndpointScope1, em.Scope1)
		tasks = nullableTask(tasks, changed, "scope2", portal.EndpointScope2, em.Scope2)
		tasks = nullableTask(tasks, changed, "scope3", portal.EndpointScope3, em.Scope3)
		tasks = nullableTask(tasks, changed, "biogenic", portal.EndpointBiogenic, em.Biogenic)
		tasks = nullableTask(tasks, changed, "statedTotal", portal.EndpointStatedTotal, em.StatedTotal)
		tasks = nullableTask(tasks, changed, "scope1And2", portal.EndpointScope1And2, em.Scope1And2)
		return tasks, nil

	case "economy":
		var ec model.Economy
		if err := json.Unmarshal(sp.Value, &ec); err != nil {
			return nil, eris.Wrap(err, "jobs: decode economy fragment")
		}
		var tasks []upsertTask
		tasks = nullableTask(tasks, changed, "turnover", portal.EndpointTurnover, ec.Turnover)
		tasks = nullableTask(tasks, changed, "employees", portal.EndpointEmployees, ec.Employees)
		return tasks, nil

	case "goals":
		var goals []model.Goal
		if err := json.Unmarshal(sp.Value, &goals); err != nil {
			return nil, eris.Wrap(err, "jobs: decode goals fragment")
		}
		return []upsertTask{{portal.EndpointGoals, goals}}, nil

	case "initiatives":
		var initiatives []model.Initiative
		if err := json.Unmarshal(sp.Value, &initiatives); err != nil {
			return nil, eris.Wrap(err, "jobs: decode initiatives fragment")
		}
		return []upsertTask{{portal.EndpointInitiatives, initiatives}}, nil

	case "equality":
		var equalities []model.Equality
		if err := json.Unmarshal(sp.Value, &equalities); err != nil {
			return nil, eris.Wrap(err, "jobs: decode equality fragment")
		}
		return []upsertTask{{portal.EndpointEqualities, equalities}}, nil

	case "industry":
		var industry model.Industry
		if err := json.Unmarshal(sp.Value, &industry); err != nil {
			return nil, eris.Wrap(err, "jobs: decode industry fragment")
		}
		return []upsertTask{{portal.EndpointIndustry, industry}}, nil
	}

	return nil, eris.Errorf("jobs: unknown fragment %q", sp.Fragment)
}

// changedLeafs returns the leaf field names touched by a diff, with the
// fragment path prefix stripped.
func changedLeafs(res diff.Result) map[string]bool {
	leafs := make(map[string]bool, len(res.Changes))
	for _, ch := range res.Changes {
		field := ch.Field
		if i := strings.LastIndex(field, "."); i >= 0 {
			field = field[i+1:]
		}
		leafs[field] = true
	}
	return leafs
}

// nullableTask appends an upsert for one tri-state field group: skipped
// when unchanged or absent, a delete when explicitly null.
func nullableTask[T any](tasks []upsertTask, changed map[string]bool, field string, ep portal.Endpoint, n model.Nullable[T]) []upsertTask {
	if !changed[field] || !n.Present() {
		return tasks
	}
	if n.IsNull() {
		return append(tasks, upsertTask{ep, nil})
	}
	v, _ := n.Get()
	return append(tasks, upsertTask{ep, v})
}
