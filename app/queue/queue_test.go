package queue

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/shelf-sync/app/database"
)

func newTestQueue(t *testing.T, opts Options) (*Queue, *database.SQLJobRepository) {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatal(err)
	}

	repo := database.NewJobRepository(db)
	return New(repo, opts), repo
}

func TestEnqueueCreatesDeterministicID(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	job, err := q.Enqueue(context.Background(), database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)
	if err != nil {
		t.Fatal(err)
	}

	if job.ID != "catalog_cat1" {
		t.Errorf("Expected deterministic id 'catalog_cat1', got %q", job.ID)
	}
	if job.Status != database.JobStatusPending {
		t.Errorf("Expected pending status, got %q", string(job.Status))
	}
	if !job.RetryEligible {
		t.Error("Expected new job to be retry eligible")
	}
}

func TestEnqueueIdempotentWhilePending(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal); err != nil {
		t.Fatal(err)
	}
	updated, err := q.Enqueue(ctx, database.JobTypeCatalog, "cat1",
		map[string]string{"force": "true"}, database.PriorityHigh)
	if err != nil {
		t.Fatal(err)
	}

	if updated.Priority != database.PriorityHigh {
		t.Errorf("Expected priority to refresh, got %d", int(updated.Priority))
	}
	if updated.Payload["force"] != "true" {
		t.Errorf("Expected payload to refresh, got %v", updated.Payload)
	}

	batch, err := q.GetNextBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Errorf("Expected a single job after duplicate enqueue, got %d", len(batch))
	}
}

func TestEnqueueResetsFinishedJob(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	job, err := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := q.CompleteJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	reset, err := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)
	if err != nil {
		t.Fatal(err)
	}

	if reset.Status != database.JobStatusPending {
		t.Errorf("Expected finished job to reset to pending, got %q", string(reset.Status))
	}
	if reset.Attempts != 0 {
		t.Errorf("Expected attempts reset to 0, got %d", reset.Attempts)
	}
	if reset.LastError != "" {
		t.Errorf("Expected last error cleared, got %q", reset.LastError)
	}
}

func TestStartJobIncrementsAttempts(t *testing.T) {
	q, repo := newTestQueue(t, Options{})
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, database.JobTypeFeed, "https://example.com/feed.xml", nil, database.PriorityNormal)
	if err := q.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	stored, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != database.JobStatusInProgress {
		t.Errorf("Expected in_progress status, got %q", string(stored.Status))
	}
	if stored.Attempts != 1 {
		t.Errorf("Expected 1 attempt after start, got %d", stored.Attempts)
	}
}

func TestHandleFailureSchedulesRetry(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxRetries: 3, BackoffBase: time.Minute})
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)
	if err := q.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	failed, err := q.HandleFailure(ctx, job.ID, "connection refused")
	if err != nil {
		t.Fatal(err)
	}

	if failed.Status != database.JobStatusFailed {
		t.Errorf("Expected failed status, got %q", string(failed.Status))
	}
	if !failed.RetryEligible {
		t.Error("Expected job below the retry cap to stay retryable")
	}
	if failed.LastError != "connection refused" {
		t.Errorf("Expected raw error message, got %q", failed.LastError)
	}
	if failed.NextRetryAt == nil || !failed.NextRetryAt.After(time.Now()) {
		t.Errorf("Expected a future retry deadline, got %v", failed.NextRetryAt)
	}

	// The backoff deadline keeps the job out of the next batch.
	batch, err := q.GetNextBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Errorf("Expected job to wait out its backoff, got %d in batch", len(batch))
	}
}

func TestRetryableJobEligibleAfterBackoff(t *testing.T) {
	q, repo := newTestQueue(t, Options{MaxRetries: 3, BackoffBase: time.Minute})
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)
	q.StartJob(ctx, job.ID)
	q.HandleFailure(ctx, job.ID, "connection refused")

	batch, err := repo.GetPendingJobs(ctx, 10, time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Errorf("Expected job eligible once the backoff passes, got %d", len(batch))
	}
}

func TestRetryExhaustionIsTerminal(t *testing.T) {
	q, repo := newTestQueue(t, Options{MaxRetries: 2, BackoffBase: time.Millisecond})
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)

	for i := 0; i < 2; i++ {
		if err := q.StartJob(ctx, job.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := q.HandleFailure(ctx, job.ID, "server error"); err != nil {
			t.Fatal(err)
		}
	}

	stored, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.RetryEligible {
		t.Error("Expected terminal job to be ineligible for retry")
	}
	if !strings.HasPrefix(stored.LastError, "Max retries exceeded: ") {
		t.Errorf("Expected terminal error prefix, got %q", stored.LastError)
	}

	// Terminal jobs never come back, even far in the future.
	batch, err := repo.GetPendingJobs(ctx, 10, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Errorf("Expected terminal job excluded from batches, got %d", len(batch))
	}
}

func TestFailureOneBelowCapStaysRetryable(t *testing.T) {
	q, repo := newTestQueue(t, Options{MaxRetries: 3, BackoffBase: time.Millisecond})
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)

	for i := 0; i < 2; i++ {
		q.StartJob(ctx, job.ID)
		q.HandleFailure(ctx, job.ID, "server error")
	}

	stored, _ := repo.GetJob(ctx, job.ID)
	if !stored.RetryEligible {
		t.Error("Expected job with attempts below the cap to stay retryable")
	}
	if strings.HasPrefix(stored.LastError, "Max retries exceeded") {
		t.Errorf("Expected plain error message below the cap, got %q", stored.LastError)
	}
}

func TestRetryJobResetsTerminalJob(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxRetries: 1, BackoffBase: time.Millisecond})
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)
	q.StartJob(ctx, job.ID)
	q.HandleFailure(ctx, job.ID, "server error")

	reset, err := q.RetryJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}

	if reset.Status != database.JobStatusPending {
		t.Errorf("Expected pending after manual retry, got %q", string(reset.Status))
	}
	if reset.Attempts != 0 || reset.LastError != "" || !reset.RetryEligible {
		t.Errorf("Expected a clean retry budget, got attempts=%d error=%q eligible=%v",
			reset.Attempts, reset.LastError, reset.RetryEligible)
	}
}

func TestRetryJobRejectsRunningJob(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)
	q.StartJob(ctx, job.ID)

	if _, err := q.RetryJob(ctx, job.ID); err == nil {
		t.Error("Expected error when retrying a running job")
	}
}

func TestGetNextBatchOrdersByPriority(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	q.Enqueue(ctx, database.JobTypeCatalog, "low", nil, database.PriorityLow)
	q.Enqueue(ctx, database.JobTypeCatalog, "high", nil, database.PriorityHigh)
	q.Enqueue(ctx, database.JobTypeCatalog, "normal", nil, database.PriorityNormal)

	batch, err := q.GetNextBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(batch))
	}
	if batch[0].TargetID != "high" || batch[2].TargetID != "low" {
		t.Errorf("Expected priority ordering high..low, got %s..%s",
			batch[0].TargetID, batch[2].TargetID)
	}
}

func TestCancelForTarget(t *testing.T) {
	q, repo := newTestQueue(t, Options{})
	ctx := context.Background()

	q.Enqueue(ctx, database.JobTypeCatalog, "cat1", nil, database.PriorityNormal)
	q.Enqueue(ctx, database.JobTypeNewsSync, "cat1", nil, database.PriorityNormal)
	q.Enqueue(ctx, database.JobTypeCatalog, "cat2", nil, database.PriorityNormal)

	cancelled, err := q.CancelForTarget(ctx, "cat1")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled != 2 {
		t.Errorf("Expected 2 cancelled jobs, got %d", cancelled)
	}

	stored, _ := repo.GetJob(ctx, "catalog_cat2")
	if stored.Status != database.JobStatusPending {
		t.Errorf("Expected other target untouched, got %q", string(stored.Status))
	}
}

func TestCleanupRemovesOldFinishedJobs(t *testing.T) {
	q, repo := newTestQueue(t, Options{})
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, database.JobTypeCatalog, "old", nil, database.PriorityNormal)
	q.StartJob(ctx, job.ID)
	q.CompleteJob(ctx, job.ID)

	// Age the job past the retention window.
	stored, _ := repo.GetJob(ctx, job.ID)
	stored.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := repo.SaveJob(ctx, stored); err != nil {
		t.Fatal(err)
	}

	q.Enqueue(ctx, database.JobTypeCatalog, "active", nil, database.PriorityNormal)

	deleted, err := q.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted job, got %d", deleted)
	}

	if gone, _ := repo.GetJob(ctx, job.ID); gone != nil {
		t.Error("Expected old completed job to be removed")
	}
	if kept, _ := repo.GetJob(ctx, "catalog_active"); kept == nil {
		t.Error("Expected pending job to survive cleanup")
	}
}

func TestHealthCounts(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxRetries: 1, BackoffBase: time.Millisecond})
	ctx := context.Background()

	q.Enqueue(ctx, database.JobTypeCatalog, "pending", nil, database.PriorityNormal)

	done, _ := q.Enqueue(ctx, database.JobTypeCatalog, "done", nil, database.PriorityNormal)
	q.StartJob(ctx, done.ID)
	q.CompleteJob(ctx, done.ID)

	dead, _ := q.Enqueue(ctx, database.JobTypeCatalog, "dead", nil, database.PriorityNormal)
	q.StartJob(ctx, dead.ID)
	q.HandleFailure(ctx, dead.ID, "server error")

	health, err := q.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if health.Total != 3 {
		t.Errorf("Expected 3 total jobs, got %d", health.Total)
	}
	if health.Pending != 1 {
		t.Errorf("Expected 1 pending job, got %d", health.Pending)
	}
	if health.Completed != 1 {
		t.Errorf("Expected 1 completed job, got %d", health.Completed)
	}
	if health.Terminal != 1 {
		t.Errorf("Expected 1 terminal job, got %d", health.Terminal)
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	q := &Queue{backoffBase: 30 * time.Second, backoffMax: 5 * time.Minute}

	cases := []struct {
		attempts int
		expected time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 5 * time.Minute},
		{10, 5 * time.Minute},
	}

	for _, tc := range cases {
		if got := q.backoff(tc.attempts); got != tc.expected {
			t.Errorf("backoff(%d): expected %v, got %v", tc.attempts, tc.expected, got)
		}
	}
}
