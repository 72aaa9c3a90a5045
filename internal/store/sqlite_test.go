package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klimatdata/disclosure-pipeline/internal/model"
	"github.com/klimatdata/disclosure-pipeline/internal/queue"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_RunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.Company{Name: "Telia Company", WikidataID: "Q719344"}, "https://example.com/r.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.CompleteRun(ctx, run.ID, model.RunStatusCompleted, "4 fragments saved"))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, "4 fragments saved", got.Message)
	assert.Equal(t, "Telia Company", got.Company.Name)
	assert.Equal(t, "https://example.com/r.pdf", got.ReportURL)
}

func TestSQLite_CompleteUnknownRun(t *testing.T) {
	s := newTestSQLite(t)
	err := s.CompleteRun(context.Background(), "missing", model.RunStatusFailed, "")
	assert.Error(t, err)
}

func TestSQLite_ListRunsFiltersByStatus(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, model.Company{Name: "A"}, "")
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, model.Company{Name: "B"}, "")
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, a.ID, model.RunStatusFailed, "no entity found"))

	failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "A", failed[0].Company.Name)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_DeadLetters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.InsertDeadLetter(ctx, model.DeadLetter{
		JobID:   "job-1",
		JobName: "resolve_company",
		Payload: json.RawMessage(`{"company":{"name":"Acme"}}`),
		Attempt: 3,
		Error:   "resolve: no entity found",
	}))

	letters, err := s.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "resolve_company", letters[0].JobName)
	assert.Equal(t, 3, letters[0].Attempt)
	assert.NotEmpty(t, letters[0].ID)
	assert.JSONEq(t, `{"company":{"name":"Acme"}}`, string(letters[0].Payload))
}

func TestSink_RecordsJobAsDeadLetter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	job := &queue.Job{
		ID:      "job-9",
		Name:    "extract_emissions",
		Payload: json.RawMessage(`{}`),
		Attempt: 3,
	}
	require.NoError(t, NewSink(s).RecordFailure(ctx, job, "boom"))

	letters, err := s.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "job-9", letters[0].JobID)
	assert.Equal(t, "boom", letters[0].Error)
}
