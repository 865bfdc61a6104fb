package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/connectivity"
	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/syncer"
)

type Options struct {
	BatchSize       int
	WifiOnly        bool
	ProgressEnabled bool
	CatalogsEnabled bool
	FeedsEnabled    bool
	NewsEnabled     bool
}

// Orchestrator drains the job queue through the synchronizers. Processing is
// single-flight: at most one drain loop runs at a time, and overlapping
// triggers return ErrSyncInProgress instead of queueing up.
type Orchestrator struct {
	queue    JobQueue
	progress ProgressSyncer
	catalogs CatalogSyncer
	news     NewsSyncer
	configs  ConfigLister
	gate     ConnectivityGate
	opts     Options

	running atomic.Bool

	mu            sync.RWMutex
	jobsProcessed int
	jobsFailed    int
	lastError     string
	changedAt     time.Time
	subscribers   []chan StatusUpdate
}

func New(jobQueue JobQueue, progress ProgressSyncer, catalogs CatalogSyncer,
	news NewsSyncer, configs ConfigLister, gate ConnectivityGate, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &Orchestrator{
		queue:     jobQueue,
		progress:  progress,
		catalogs:  catalogs,
		news:      news,
		configs:   configs,
		gate:      gate,
		opts:      opts,
		changedAt: time.Now(),
	}
}

// ProcessPendingJobs drains the queue in batches until no eligible job
// remains. Jobs inside a batch run sequentially; a job failure is recorded
// through the queue's retry policy and never aborts the drain.
func (o *Orchestrator) ProcessPendingJobs(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		slog.Debug("Sync already in progress, skipping trigger")
		return ErrSyncInProgress
	}

	if !o.gate.CanSync(o.opts.WifiOnly) {
		o.running.Store(false)
		slog.Info("Connectivity gate closed, sync deferred", "wifi_only", o.opts.WifiOnly)
		return ErrOffline
	}

	processed := 0
	failed := 0
	runErr := ""
	defer func() {
		o.running.Store(false)
		o.record(processed, failed, runErr)
	}()

	o.record(0, 0, "")

	for {
		if err := ctx.Err(); err != nil {
			runErr = err.Error()
			return err
		}

		batch, err := o.queue.GetNextBatch(ctx, o.opts.BatchSize)
		if err != nil {
			runErr = err.Error()
			return fmt.Errorf("failed to load job batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		// Jobs of a disabled type stay pending without being started. They
		// would be returned again by the next batch query, so the loop stops
		// once a batch makes no progress at all.
		advanced := 0
		for i := range batch {
			job := &batch[i]
			if !o.typeEnabled(job.Type) {
				slog.Debug("Job type disabled, leaving job pending", "id", job.ID, "type", string(job.Type))
				continue
			}
			advanced++
			if o.processJob(ctx, job) {
				processed++
			} else {
				failed++
			}
		}
		if advanced == 0 {
			break
		}
	}

	if failed > 0 {
		runErr = fmt.Sprintf("%d of %d jobs failed", failed, processed+failed)
	}

	slog.Info("Sync pass finished", "processed", processed, "failed", failed)
	return nil
}

// processJob runs one job through its synchronizer and reports the outcome
// to the queue. Returns true when the job completed.
func (o *Orchestrator) processJob(ctx context.Context, job *database.SyncJob) bool {
	if err := o.queue.StartJob(ctx, job.ID); err != nil {
		slog.Error("Failed to mark job started", "id", job.ID, "error", err)
		if _, failErr := o.queue.HandleFailure(ctx, job.ID, err.Error()); failErr != nil {
			slog.Error("Failed to record job failure", "id", job.ID, "error", failErr)
		}
		return false
	}

	if err := o.runJob(ctx, job); err != nil {
		if _, failErr := o.queue.HandleFailure(ctx, job.ID, err.Error()); failErr != nil {
			slog.Error("Failed to record job failure", "id", job.ID, "error", failErr)
		}
		return false
	}

	if err := o.queue.CompleteJob(ctx, job.ID); err != nil {
		slog.Error("Failed to mark job completed", "id", job.ID, "error", err)
		return false
	}
	return true
}

func (o *Orchestrator) runJob(ctx context.Context, job *database.SyncJob) error {
	switch job.Type {
	case database.JobTypeProgress:
		catalogID := job.Payload["catalog_id"]
		remoteBookID := job.Payload["remote_book_id"]
		if catalogID == "" || remoteBookID == "" {
			return fmt.Errorf("progress job %s is missing catalog_id or remote_book_id", job.ID)
		}
		return o.progress.SyncBook(ctx, catalogID, job.TargetID, remoteBookID)

	case database.JobTypeCatalog:
		return resultError(o.catalogs.RefreshCatalog(ctx, job.TargetID))

	case database.JobTypeFeed:
		catalogID := job.Payload["catalog_id"]
		if catalogID == "" {
			return fmt.Errorf("feed job %s is missing catalog_id", job.ID)
		}
		return resultError(o.catalogs.RefreshFeed(ctx, catalogID, job.TargetID))

	case database.JobTypeNewsSync:
		result := o.news.SyncFromCatalog(ctx, job.TargetID)
		if !result.Success {
			return fmt.Errorf("news sync failed: %s", result.Reason)
		}
		return nil

	default:
		return fmt.Errorf("unknown job type: %s", string(job.Type))
	}
}

func (o *Orchestrator) typeEnabled(jobType database.JobType) bool {
	switch jobType {
	case database.JobTypeProgress:
		return o.opts.ProgressEnabled
	case database.JobTypeCatalog:
		return o.opts.CatalogsEnabled
	case database.JobTypeFeed:
		return o.opts.FeedsEnabled
	case database.JobTypeNewsSync:
		return o.opts.NewsEnabled
	default:
		return false
	}
}

// SyncAll enqueues a refresh for every enabled catalog, plus a news sync for
// catalogs that opt in, then drains the queue.
func (o *Orchestrator) SyncAll(ctx context.Context) error {
	for _, cat := range o.configs.GetEnabledConfigs() {
		if o.opts.CatalogsEnabled {
			if _, err := o.queue.Enqueue(ctx, database.JobTypeCatalog, cat.ID, nil, database.PriorityNormal); err != nil {
				return fmt.Errorf("failed to enqueue catalog refresh for %s: %w", cat.ID, err)
			}
		}
		if o.opts.NewsEnabled && cat.Type == catalog.TypeNextcloud && cat.Settings.NewsSync {
			if _, err := o.queue.Enqueue(ctx, database.JobTypeNewsSync, cat.ID, nil, database.PriorityNormal); err != nil {
				return fmt.Errorf("failed to enqueue news sync for %s: %w", cat.ID, err)
			}
		}
	}
	return o.ProcessPendingJobs(ctx)
}

// EnqueueProgressSync queues a progress merge for one book. User-initiated
// progress changes get high priority so they land before bulk refreshes.
func (o *Orchestrator) EnqueueProgressSync(ctx context.Context, catalogID, bookID, remoteBookID string) error {
	_, err := o.queue.Enqueue(ctx, database.JobTypeProgress, bookID, map[string]string{
		"catalog_id":     catalogID,
		"remote_book_id": remoteBookID,
	}, database.PriorityHigh)
	return err
}

func (o *Orchestrator) EnqueueCatalogRefresh(ctx context.Context, catalogID string, priority database.JobPriority) error {
	_, err := o.queue.Enqueue(ctx, database.JobTypeCatalog, catalogID, nil, priority)
	return err
}

func (o *Orchestrator) EnqueueFeedRefresh(ctx context.Context, catalogID, feedURL string, priority database.JobPriority) error {
	_, err := o.queue.Enqueue(ctx, database.JobTypeFeed, feedURL, map[string]string{
		"catalog_id": catalogID,
	}, priority)
	return err
}

func (o *Orchestrator) EnqueueNewsSync(ctx context.Context, catalogID string) error {
	_, err := o.queue.Enqueue(ctx, database.JobTypeNewsSync, catalogID, nil, database.PriorityNormal)
	return err
}

// Status derives the externally visible state: syncing while a drain runs,
// error when the last run recorded one, idle otherwise.
func (o *Orchestrator) Status() StatusUpdate {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() StatusUpdate {
	state := StateIdle
	switch {
	case o.running.Load():
		state = StateSyncing
	case o.lastError != "":
		state = StateError
	}
	return StatusUpdate{
		State:         state,
		JobsProcessed: o.jobsProcessed,
		JobsFailed:    o.jobsFailed,
		LastError:     o.lastError,
		At:            o.changedAt,
	}
}

// Subscribe returns a channel receiving every status transition. Slow
// subscribers drop updates rather than blocking the sync loop.
func (o *Orchestrator) Subscribe() <-chan StatusUpdate {
	ch := make(chan StatusUpdate, 16)
	o.mu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.mu.Unlock()
	return ch
}

// record stores a run's counters and error, then broadcasts the derived
// status to subscribers.
func (o *Orchestrator) record(processed, failed int, lastError string) {
	o.mu.Lock()
	o.jobsProcessed = processed
	o.jobsFailed = failed
	o.lastError = lastError
	o.changedAt = time.Now()
	update := o.statusLocked()
	subs := make([]chan StatusUpdate, len(o.subscribers))
	copy(subs, o.subscribers)
	o.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- update:
		default:
		}
	}
}

// WatchConnectivity triggers an opportunistic drain whenever connectivity
// comes back. Runs until the context is cancelled.
func (o *Orchestrator) WatchConnectivity(ctx context.Context, updates <-chan connectivity.Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if !status.Connected {
				continue
			}
			if err := o.ProcessPendingJobs(ctx); err != nil {
				switch err {
				case ErrSyncInProgress, ErrOffline:
				default:
					slog.Error("Connectivity-triggered sync failed", "error", err)
				}
			}
		}
	}
}

// resultError collapses a batch Result into a single error for the job
// lifecycle. Partial counts stay in logs; the queue only needs pass or fail.
func resultError(result syncer.Result) error {
	if result.Ok() {
		return nil
	}
	messages := make([]string, 0, len(result.Errors))
	for _, syncErr := range result.Errors {
		messages = append(messages, fmt.Sprintf("%s %s: %s", syncErr.Operation, syncErr.RecordID, syncErr.Message))
	}
	return fmt.Errorf("sync completed with %d errors: %s", len(result.Errors), strings.Join(messages, "; "))
}
