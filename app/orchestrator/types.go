package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/queue"
	"github.com/lysyi3m/shelf-sync/app/syncer"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrOffline        = errors.New("connectivity policy does not allow sync")
)

type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// StatusUpdate is one entry in the orchestrator's status stream. A full run
// emits syncing at the start and idle or error at the end with the final
// counters. The State is always derived from the running flag and the last
// recorded error, never stored on its own.
type StatusUpdate struct {
	State         State
	JobsProcessed int
	JobsFailed    int
	LastError     string
	At            time.Time
}

// The orchestrator depends on narrow interfaces rather than the concrete
// queue and synchronizers so tests can inject fakes.

type JobQueue interface {
	Enqueue(ctx context.Context, jobType database.JobType, targetID string,
		payload map[string]string, priority database.JobPriority) (*database.SyncJob, error)
	GetNextBatch(ctx context.Context, limit int) ([]database.SyncJob, error)
	StartJob(ctx context.Context, id string) error
	CompleteJob(ctx context.Context, id string) error
	HandleFailure(ctx context.Context, id, errorMessage string) (*database.SyncJob, error)
}

var _ JobQueue = (*queue.Queue)(nil)

type ProgressSyncer interface {
	SyncBook(ctx context.Context, catalogID, bookID, remoteBookID string) error
}

var _ ProgressSyncer = (*syncer.ProgressSynchronizer)(nil)

type CatalogSyncer interface {
	RefreshCatalog(ctx context.Context, catalogID string) syncer.Result
	RefreshFeed(ctx context.Context, catalogID, feedURL string) syncer.Result
}

var _ CatalogSyncer = (*syncer.CatalogSynchronizer)(nil)

type NewsSyncer interface {
	SyncFromCatalog(ctx context.Context, catalogID string) syncer.NewsResult
}

var _ NewsSyncer = (*syncer.NewsSynchronizer)(nil)

// ConfigLister enumerates the catalogs eligible for a full sync pass.
type ConfigLister interface {
	GetEnabledConfigs() map[string]*catalog.Config
}

var _ ConfigLister = (*catalog.ConfigCache)(nil)

// ConnectivityGate answers whether the current connection allows syncing.
type ConnectivityGate interface {
	CanSync(wifiOnly bool) bool
}
