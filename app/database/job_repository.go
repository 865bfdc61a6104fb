package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

var _ JobRepository = (*SQLJobRepository)(nil)

type SQLJobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

const jobColumns = `id, type, target_id, payload, priority, status, retry_eligible,
	attempts, last_error, next_retry_at, created_at, updated_at`

func (r *SQLJobRepository) GetJob(ctx context.Context, id string) (*SyncJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM sync_jobs
		WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *SQLJobRepository) SaveJob(ctx context.Context, job *SyncJob) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (
			id, type, target_id, payload, priority, status, retry_eligible,
			attempts, last_error, next_retry_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			priority = excluded.priority,
			status = excluded.status,
			retry_eligible = excluded.retry_eligible,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			next_retry_at = excluded.next_retry_at,
			updated_at = excluded.updated_at
	`, job.ID, string(job.Type), job.TargetID, string(payload), int(job.Priority),
		string(job.Status), boolToInt(job.RetryEligible), job.Attempts, job.LastError,
		formatNullableTime(job.NextRetryAt), formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetPendingJobs returns jobs eligible for pickup: pending jobs plus failed
// jobs that are still retryable and past their backoff deadline. Higher
// priority first, then oldest first.
func (r *SQLJobRepository) GetPendingJobs(ctx context.Context, limit int, now time.Time) ([]SyncJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM sync_jobs
		WHERE (status = ? OR (status = ? AND retry_eligible = 1))
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	`, string(JobStatusPending), string(JobStatusFailed), formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (r *SQLJobRepository) GetRecentJobs(ctx context.Context, limit int) ([]SyncJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM sync_jobs
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (r *SQLJobRepository) CancelJobsForTarget(ctx context.Context, targetID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = ?, retry_eligible = 0, updated_at = ?
		WHERE target_id = ? AND status IN (?, ?)
	`, string(JobStatusCancelled), formatTime(time.Now()), targetID,
		string(JobStatusPending), string(JobStatusFailed))
	if err != nil {
		return 0, fmt.Errorf("failed to cancel jobs for target: %w", err)
	}
	return res.RowsAffected()
}

// DeleteJobsOlderThan removes finished jobs (completed, cancelled, or
// terminally failed) last touched before the cutoff.
func (r *SQLJobRepository) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_jobs
		WHERE updated_at < ?
		  AND (status IN (?, ?) OR (status = ? AND retry_eligible = 0))
	`, formatTime(cutoff), string(JobStatusCompleted), string(JobStatusCancelled),
		string(JobStatusFailed))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLJobRepository) GetQueueHealth(ctx context.Context) (*QueueHealth, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' AND retry_eligible = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' AND retry_eligible = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM sync_jobs
	`)

	var health QueueHealth
	err := row.Scan(&health.Total, &health.Pending, &health.InProgress,
		&health.Retryable, &health.Terminal, &health.Completed)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue health: %w", err)
	}
	return &health, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*SyncJob, error) {
	var job SyncJob
	var jobType, status, payload, createdAt, updatedAt string
	var priority, retryEligible int
	var nextRetryAt sql.NullString

	err := row.Scan(&job.ID, &jobType, &job.TargetID, &payload, &priority, &status,
		&retryEligible, &job.Attempts, &job.LastError, &nextRetryAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	parsedType, ok := ParseJobType(jobType)
	if !ok {
		return nil, fmt.Errorf("unknown job type %q for job %s", jobType, job.ID)
	}
	job.Type = parsedType
	job.Priority = JobPriority(priority)
	job.Status = JobStatus(status)
	job.RetryEligible = retryEligible != 0

	if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload for job %s: %w", job.ID, err)
	}

	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if job.NextRetryAt, err = parseNullableTime(nextRetryAt); err != nil {
		return nil, err
	}

	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]SyncJob, error) {
	var jobs []SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
