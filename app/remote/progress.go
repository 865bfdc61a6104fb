package remote

import (
	"context"
	"sync"

	"github.com/lysyi3m/shelf-sync/app/catalog"
)

// ProgressSyncCapable is implemented by clients that can read and write
// reading progress on a remote server.
type ProgressSyncCapable interface {
	// FetchProgress returns nil without error when the remote has no record
	// for the book.
	FetchProgress(ctx context.Context, cat *catalog.Config, remoteBookID string) (*RemoteProgress, error)
	SyncProgress(ctx context.Context, cat *catalog.Config, remoteBookID string, percentage float64, cfi string) error
}

// ProgressRegistry maps catalog types to their progress clients. Dispatch is
// by tagged type; catalog types without a registered client simply do not
// support progress sync.
type ProgressRegistry struct {
	mu      sync.RWMutex
	clients map[catalog.Type]ProgressSyncCapable
}

func NewProgressRegistry() *ProgressRegistry {
	return &ProgressRegistry{
		clients: make(map[catalog.Type]ProgressSyncCapable),
	}
}

func (r *ProgressRegistry) Register(catalogType catalog.Type, client ProgressSyncCapable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[catalogType] = client
}

func (r *ProgressRegistry) ClientFor(catalogType catalog.Type) (ProgressSyncCapable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[catalogType]
	return client, ok
}
