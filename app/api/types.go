package api

import (
	"context"

	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/connectivity"
	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/orchestrator"
	"github.com/lysyi3m/shelf-sync/app/queue"
)

type OrchestratorInterface interface {
	ProcessPendingJobs(ctx context.Context) error
	SyncAll(ctx context.Context) error
	EnqueueCatalogRefresh(ctx context.Context, catalogID string, priority database.JobPriority) error
	Status() orchestrator.StatusUpdate
}

var _ OrchestratorInterface = (*orchestrator.Orchestrator)(nil)

type QueueInterface interface {
	Health(ctx context.Context) (*database.QueueHealth, error)
	RecentJobs(ctx context.Context, limit int) ([]database.SyncJob, error)
	RetryJob(ctx context.Context, id string) (*database.SyncJob, error)
}

var _ QueueInterface = (*queue.Queue)(nil)

type Handler struct {
	configCache  *catalog.ConfigCache
	feedRepo     database.FeedRepository
	itemRepo     database.ItemRepository
	queue        QueueInterface
	orchestrator OrchestratorInterface
	gate         *connectivity.Gate
	version      string
}
