package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klimatdata/disclosure-pipeline/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "https://example.com/r.pdf", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.Company{Name: "Telia Company"}, "https://example.com/r.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("completed", "done", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteRun(context.Background(), "run-1", model.RunStatusCompleted, "done")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteRunNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", model.RunStatusFailed, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPostgres_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM runs WHERE id`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "company", "report_url", "status", "message", "created_at", "updated_at"}).
			AddRow("run-1", []byte(`{"name":"Telia Company","wikidataId":"Q719344"}`), "https://example.com/r.pdf", "completed", "", now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Q719344", run.Company.WikidataID)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM runs WHERE status .* LIMIT`).
		WithArgs("failed", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company", "report_url", "status", "message", "created_at", "updated_at"}).
			AddRow("run-2", []byte(`{"name":"Acme"}`), "", "failed", "no entity found", now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed, Limit: 50})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "Acme", runs[0].Company.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeadLetters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO dead_letters`).
		WithArgs(pgxmock.AnyArg(), "job-1", "save_fragment", pgxmock.AnyArg(), 3, "portal down", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertDeadLetter(context.Background(), model.DeadLetter{
		JobID:   "job-1",
		JobName: "save_fragment",
		Payload: []byte(`{}`),
		Attempt: 3,
		Error:   "portal down",
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .* FROM dead_letters`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "job_id", "job_name", "payload", "attempt", "error", "created_at"}).
			AddRow("dl-1", "job-1", "save_fragment", []byte(`{}`), 3, "portal down", now))

	letters, err := s.ListDeadLetters(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "save_fragment", letters[0].JobName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
