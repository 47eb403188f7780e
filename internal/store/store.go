// Package store persists the pipeline run ledger: one row per operation,
// with its request and result envelopes, so runs can be audited and
// resumed conversations reconstructed.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Run statuses. A run starts as running and ends with the status of its
// result envelope.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// ErrRunNotFound indicates the referenced run id does not exist.
var ErrRunNotFound = eris.New("run not found")

// Run is one recorded pipeline operation.
type Run struct {
	ID        string         `json:"id"`
	Command   string         `json:"command"`
	Status    string         `json:"status"`
	Request   map[string]any `json:"request,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Command string `json:"command,omitempty"`
	Status  string `json:"status,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store defines the run ledger persistence interface.
type Store interface {
	CreateRun(ctx context.Context, command string, request map[string]any) (*Run, error)
	CompleteRun(ctx context.Context, runID, status string, result map[string]any) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
