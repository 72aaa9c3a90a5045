// Package store persists run bookkeeping and dead letters behind one
// interface with postgres and sqlite backends.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/klimatdata/disclosure-pipeline/internal/config"
	"github.com/klimatdata/disclosure-pipeline/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline bookkeeping.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, company model.Company, reportURL string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, message string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Dead letters
	InsertDeadLetter(ctx context.Context, dl model.DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]model.DeadLetter, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store named by the config driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}
