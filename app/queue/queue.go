package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/shelf-sync/app/database"
)

const (
	DefaultMaxRetries  = 5
	DefaultBackoffBase = 30 * time.Second
	DefaultBackoffMax  = 30 * time.Minute
)

type Options struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Queue owns the lifecycle of durable sync jobs. Synchronizers never touch
// job state; the orchestrator reports outcomes through CompleteJob and
// HandleFailure and the queue applies the retry policy.
type Queue struct {
	repo        database.JobRepository
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
}

func New(repo database.JobRepository, opts Options) *Queue {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	return &Queue{
		repo:        repo,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
	}
}

// Enqueue creates or refreshes the job identified by (type, target). The
// deterministic id makes re-enqueueing idempotent: a pending or running job
// keeps its state and only absorbs the new payload and priority; a finished
// or terminal job is reset to pending with a clean retry budget.
func (q *Queue) Enqueue(ctx context.Context, jobType database.JobType, targetID string,
	payload map[string]string, priority database.JobPriority) (*database.SyncJob, error) {
	if payload == nil {
		payload = map[string]string{}
	}

	id := database.JobID(jobType, targetID)
	now := time.Now().UTC()

	job, err := q.repo.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	if job == nil {
		job = &database.SyncJob{
			ID:            id,
			Type:          jobType,
			TargetID:      targetID,
			Payload:       payload,
			Priority:      priority,
			Status:        database.JobStatusPending,
			RetryEligible: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	} else {
		job.Payload = payload
		job.Priority = priority
		job.UpdatedAt = now

		switch job.Status {
		case database.JobStatusPending, database.JobStatusInProgress:
			// Keep the in-flight state; only parameters refresh.
		default:
			job.Status = database.JobStatusPending
			job.RetryEligible = true
			job.Attempts = 0
			job.LastError = ""
			job.NextRetryAt = nil
			job.CreatedAt = now
		}
	}

	if err := q.repo.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", id, err)
	}

	slog.Debug("Job enqueued", "id", id, "type", string(jobType), "priority", int(priority))
	return job, nil
}

// GetNextBatch returns the next jobs eligible for processing: pending jobs
// plus retryable failures past their backoff deadline.
func (q *Queue) GetNextBatch(ctx context.Context, limit int) ([]database.SyncJob, error) {
	return q.repo.GetPendingJobs(ctx, limit, time.Now().UTC())
}

func (q *Queue) StartJob(ctx context.Context, id string) error {
	job, err := q.repo.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", id)
	}

	job.Status = database.JobStatusInProgress
	job.Attempts++
	job.NextRetryAt = nil
	job.UpdatedAt = time.Now().UTC()

	if err := q.repo.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to start job %s: %w", id, err)
	}
	return nil
}

func (q *Queue) CompleteJob(ctx context.Context, id string) error {
	job, err := q.repo.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", id)
	}

	job.Status = database.JobStatusCompleted
	job.LastError = ""
	job.UpdatedAt = time.Now().UTC()

	if err := q.repo.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	return nil
}

// HandleFailure records a job failure and applies the retry policy. Below
// the attempt cap the job stays failed-but-retryable with a backoff
// deadline; at the cap it becomes terminal and is excluded from batches
// until explicitly re-enqueued.
func (q *Queue) HandleFailure(ctx context.Context, id, errorMessage string) (*database.SyncJob, error) {
	job, err := q.repo.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job not found: %s", id)
	}

	now := time.Now().UTC()
	job.Status = database.JobStatusFailed
	job.UpdatedAt = now

	if job.Attempts < q.maxRetries {
		job.RetryEligible = true
		job.LastError = errorMessage
		retryAt := now.Add(q.backoff(job.Attempts))
		job.NextRetryAt = &retryAt

		slog.Warn("Job failed, retry scheduled", "id", id, "attempts", job.Attempts,
			"max_retries", q.maxRetries, "next_retry_at", retryAt, "error", errorMessage)
	} else {
		job.RetryEligible = false
		job.LastError = fmt.Sprintf("Max retries exceeded: %s", errorMessage)
		job.NextRetryAt = nil

		slog.Error("Job failed permanently", "id", id, "attempts", job.Attempts,
			"max_retries", q.maxRetries, "error", errorMessage)
	}

	if err := q.repo.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record job failure %s: %w", id, err)
	}
	return job, nil
}

// RetryJob resets a terminally failed job to pending with a fresh retry
// budget. This is the explicit user action required after retry exhaustion.
func (q *Queue) RetryJob(ctx context.Context, id string) (*database.SyncJob, error) {
	job, err := q.repo.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if job.Status == database.JobStatusInProgress {
		return nil, fmt.Errorf("job is currently running: %s", id)
	}

	now := time.Now().UTC()
	job.Status = database.JobStatusPending
	job.RetryEligible = true
	job.Attempts = 0
	job.LastError = ""
	job.NextRetryAt = nil
	job.UpdatedAt = now

	if err := q.repo.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to retry job %s: %w", id, err)
	}

	slog.Info("Job manually re-enqueued", "id", id)
	return job, nil
}

func (q *Queue) CancelForTarget(ctx context.Context, targetID string) (int64, error) {
	return q.repo.CancelJobsForTarget(ctx, targetID)
}

// Cleanup removes finished jobs older than the retention window.
func (q *Queue) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := q.repo.DeleteJobsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		slog.Info("Job retention cleanup", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

func (q *Queue) Health(ctx context.Context) (*database.QueueHealth, error) {
	return q.repo.GetQueueHealth(ctx)
}

func (q *Queue) RecentJobs(ctx context.Context, limit int) ([]database.SyncJob, error) {
	return q.repo.GetRecentJobs(ctx, limit)
}

// backoff grows exponentially with the attempt count, capped at backoffMax.
func (q *Queue) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := q.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= q.backoffMax {
			return q.backoffMax
		}
	}
	if delay > q.backoffMax {
		delay = q.backoffMax
	}
	return delay
}
