package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/feedcache"
	"github.com/lysyi3m/shelf-sync/app/remote"
)

// Expected-absence and unsupported-capability conditions are sentinel
// errors so callers can branch without string matching.
var (
	ErrCatalogNotFound        = errors.New("catalog not found")
	ErrUnsupportedCatalogType = errors.New("catalog type does not support progress sync")
)

// SyncError records one failed operation inside a batch sync. Batch results
// carry these instead of aborting, because partial success must stay
// representable.
type SyncError struct {
	RecordID  string
	Operation string
	Message   string
}

// Result is the outcome of a catalog or feed refresh. Added/updated counts
// are approximated from pre/post entry counts, not a per-id diff.
type Result struct {
	CatalogID    string
	ItemsAdded   int
	ItemsUpdated int
	Errors       []SyncError
	StartedAt    time.Time
	Duration     time.Duration
}

func (r Result) Ok() bool {
	return len(r.Errors) == 0
}

// NewsResult is the outcome of a Nextcloud News two-way sync. Failure is a
// value, never a returned error; Reason is human-readable.
type NewsResult struct {
	Success           bool
	Reason            string
	FeedsImported     int
	FeedsLinked       int
	ItemsAdded        int
	ItemsStateUpdated int
}

// ConfigSource resolves catalog configurations by id.
type ConfigSource interface {
	GetConfig(catalogID string) (*catalog.Config, error)
}

var _ ConfigSource = (*catalog.ConfigCache)(nil)

// FeedCache is the slice of the cache layer the synchronizers depend on.
type FeedCache interface {
	FetchFeed(ctx context.Context, catalogID, url string, strategy feedcache.Strategy) (*feedcache.CachedFeedResult, error)
	Store(ctx context.Context, catalogID, url string, feed *remote.Feed) error
	Invalidate(ctx context.Context, catalogID string) error
}

var _ FeedCache = (*feedcache.Cache)(nil)
