package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType identifies one of the scheduled pipelines.
type JobType string

const (
	JobSalesTracker    JobType = "sales_tracker"
	JobReplacement     JobType = "replacement"
	JobAdSync          JobType = "ad_sync"
	JobBudgetOptimizer JobType = "budget_optimizer"
	JobWinnerScaler    JobType = "winner_scaler"
)

// JobStatus is the terminal (or running) state of a pipeline invocation.
type JobStatus string

const (
	JobRunning             JobStatus = "running"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
)

// JobRun records one pipeline invocation. Append-only audit trail.
type JobRun struct {
	ID               uuid.UUID
	JobType          JobType
	Status           JobStatus
	StartedAt        time.Time
	CompletedAt      *time.Time
	TenantsProcessed int
	TenantsFailed    int
	ErrorLog         []string
	Metadata         map[string]interface{}
}
