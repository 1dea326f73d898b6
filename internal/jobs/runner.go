// Package jobs is the shared frame the five pipelines run in: single
// flight locking, job-run bracketing, and bounded per-tenant fan-out.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/pkg/distlock"
	"github.com/ignite/podpilot/internal/pkg/logger"
	"github.com/ignite/podpilot/internal/store"
)

// Result accumulates a pipeline invocation's outcome for the job-run
// ledger.
type Result struct {
	mu        sync.Mutex
	Processed int
	Failed    int
	Errors    []string
	Metadata  map[string]interface{}
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{Metadata: make(map[string]interface{})}
}

// TenantOK records one successfully processed tenant.
func (r *Result) TenantOK() {
	r.mu.Lock()
	r.Processed++
	r.mu.Unlock()
}

// TenantFailed records one failed tenant with its error.
func (r *Result) TenantFailed(t *domain.Tenant, err error) {
	r.mu.Lock()
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s: %v", t.Name, joberr.KindName(joberr.KindOf(err)), err))
	r.mu.Unlock()
}

// AddError appends a non-tenant-scoped error to the log.
func (r *Result) AddError(format string, args ...interface{}) {
	r.mu.Lock()
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// SetMeta records a metadata counter on the job run.
func (r *Result) SetMeta(key string, value interface{}) {
	r.mu.Lock()
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
	r.mu.Unlock()
}

// Status derives the terminal job status from the counters.
func (r *Result) Status() domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Failed > 0 || len(r.Errors) > 0 {
		return domain.JobCompletedWithErrors
	}
	return domain.JobCompleted
}

// TenantTask is one tenant's unit of work within a pipeline.
type TenantTask func(ctx context.Context, tenant *domain.Tenant) error

// FanOut runs the task over the tenants with at most width concurrent
// goroutines. Per-tenant failures are isolated into the result; a Fatal
// error cancels the remaining tenants and is returned.
func FanOut(ctx context.Context, tenants []*domain.Tenant, width int, result *Result, task TenantTask) error {
	if width <= 0 {
		width = 1
	}
	sem := make(chan struct{}, width)
	var wg sync.WaitGroup

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatalMu sync.Mutex
	var fatal error

	for _, tenant := range tenants {
		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			result.AddError("run cancelled before tenant %s: %v", tenant.Name, runCtx.Err())
			continue
		}

		wg.Add(1)
		go func(t *domain.Tenant) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					result.TenantFailed(t, fmt.Errorf("panic: %v", r))
					log.Printf("[Jobs] panic processing tenant %s: %v", t.Name, r)
				}
			}()

			if err := task(runCtx, t); err != nil {
				if joberr.Is(err, joberr.Fatal) {
					fatalMu.Lock()
					if fatal == nil {
						fatal = err
					}
					fatalMu.Unlock()
					cancel()
				}
				result.TenantFailed(t, err)
				// Upstream API errors can embed access tokens; route
				// them through the redacting logger.
				logger.Warn("tenant failed",
					"tenant", t.Name,
					"kind", joberr.KindName(joberr.KindOf(err)),
					"error", err.Error())
				return
			}
			result.TenantOK()
		}(tenant)
	}

	wg.Wait()
	return fatal
}

// Run executes one pipeline invocation end to end: acquire the
// single-flight lock, open the job-run row, run the pipeline inside the
// run budget, close the row. Ledger write failures are logged and
// swallowed; the returned error reflects only a fatal pipeline outcome.
func Run(ctx context.Context, st *store.Store, redisClient *redis.Client, db *sql.DB,
	jobType domain.JobType, budget time.Duration, pipeline func(ctx context.Context, result *Result) error) error {

	lock := distlock.NewLock(redisClient, db, distlock.JobLockKey(string(jobType)), budget)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Jobs] %s: lock acquisition failed, proceeding without: %v", jobType, err)
	} else if !acquired {
		log.Printf("[Jobs] %s: another invocation is running, skipping", jobType)
		return nil
	} else {
		defer lock.Release(context.Background())
	}

	runCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	runID, err := st.OpenJobRun(ctx, jobType, map[string]interface{}{"started": time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		if joberr.Is(err, joberr.Fatal) {
			return err
		}
		log.Printf("[Jobs] %s: failed to open job run: %v", jobType, err)
	}

	result := NewResult()
	start := time.Now()
	pipelineErr := pipeline(runCtx, result)

	status := result.Status()
	if pipelineErr != nil {
		if joberr.Is(pipelineErr, joberr.Fatal) {
			status = domain.JobFailed
		} else {
			status = domain.JobCompletedWithErrors
		}
		result.AddError("pipeline: %v", pipelineErr)
	}
	if runCtx.Err() != nil && status == domain.JobCompleted {
		// Partial run closed out by the run budget.
		status = domain.JobCompletedWithErrors
	}
	result.SetMeta("duration_seconds", int(time.Since(start).Seconds()))

	if runID != uuid.Nil {
		if err := st.CloseJobRun(ctx, runID, status, result.Processed, result.Failed, result.Errors, result.Metadata); err != nil {
			log.Printf("[Jobs] %s: failed to close job run: %v", jobType, err)
		}
	}

	logger.Info("job run finished",
		"job", string(jobType),
		"status", string(status),
		"processed", result.Processed,
		"failed", result.Failed,
		"duration", time.Since(start).Round(time.Second).String())

	if status == domain.JobFailed {
		return pipelineErr
	}
	return nil
}
