package domain

import "time"

// PassKind names a reconciliation operation.
type PassKind string

const (
	PassSales PassKind = "sales"
	PassStock PassKind = "stock"
	PassSweep PassKind = "sweep"
)

// RunStatus is the lifecycle state of a tracked run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ReconcileRun is one row of reconcile_runs.
type ReconcileRun struct {
	ID           string     `json:"id" db:"id"`
	Pass         PassKind   `json:"pass" db:"pass"`
	Week         Week       `json:"week" db:"week"`
	Node         string     `json:"node" db:"node"`
	Source       string     `json:"source" db:"source"`
	Status       RunStatus  `json:"status" db:"status"`
	Updated      int        `json:"updated" db:"updated"`
	Inserted     int        `json:"inserted" db:"inserted"`
	Zeroed       int        `json:"zeroed" db:"zeroed"`
	Failed       int        `json:"failed" db:"failed"`
	DurationMS   int64      `json:"durationMs" db:"duration_ms"`
	ErrorMessage *string    `json:"errorMessage,omitempty" db:"error_message"`
	StartedAt    time.Time  `json:"startedAt" db:"started_at"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}
