package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/podpilot/internal/domain"
)

// OpenJobRun inserts a running job_runs row and returns its id.
func (s *Store) OpenJobRun(ctx context.Context, jobType domain.JobType, metadata map[string]interface{}) (uuid.UUID, error) {
	id := uuid.New()
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return uuid.Nil, err
	}

	query := `INSERT INTO job_runs (id, job_type, status, started_at, metadata)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.ExecContext(ctx, query, id, jobType, domain.JobRunning, time.Now().UTC(), metaJSON)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// CloseJobRun finalizes a job_runs row with counters and error log.
func (s *Store) CloseJobRun(ctx context.Context, id uuid.UUID, status domain.JobStatus,
	processed, failed int, errorLog []string, metadata map[string]interface{}) error {

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	query := `UPDATE job_runs SET
		status = $2, completed_at = $3, tenants_processed = $4, tenants_failed = $5,
		error_log = $6, metadata = $7
		WHERE id = $1`
	_, err = s.db.ExecContext(ctx, query, id, status, time.Now().UTC(),
		processed, failed, pq.Array(errorLog), metaJSON)
	return err
}

// GetJobRun retrieves one job run, mainly for tests and operator tooling.
func (s *Store) GetJobRun(ctx context.Context, id uuid.UUID) (*domain.JobRun, error) {
	query := `SELECT id, job_type, status, started_at, completed_at,
		tenants_processed, tenants_failed, error_log, metadata
		FROM job_runs WHERE id = $1`

	r := &domain.JobRun{}
	var errorLog pq.StringArray
	var metaJSON []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.JobType, &r.Status, &r.StartedAt, &r.CompletedAt,
		&r.TenantsProcessed, &r.TenantsFailed, &errorLog, &metaJSON)
	if err != nil {
		return nil, err
	}
	r.ErrorLog = errorLog
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &r.Metadata); err != nil {
			return nil, err
		}
	}
	return r, nil
}
