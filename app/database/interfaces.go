package database

import (
	"context"
	"time"
)

// JobRepository persists sync jobs. Lifecycle rules (retry eligibility,
// attempt caps, deterministic ids) live in the queue package; this layer is
// plain storage.
type JobRepository interface {
	GetJob(ctx context.Context, id string) (*SyncJob, error)
	SaveJob(ctx context.Context, job *SyncJob) error
	GetPendingJobs(ctx context.Context, limit int, now time.Time) ([]SyncJob, error)
	GetRecentJobs(ctx context.Context, limit int) ([]SyncJob, error)
	CancelJobsForTarget(ctx context.Context, targetID string) (int64, error)
	DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	GetQueueHealth(ctx context.Context) (*QueueHealth, error)
}

type ProgressRepository interface {
	// GetProgress returns nil without error when no record exists.
	GetProgress(ctx context.Context, bookID string) (*ReadingProgress, error)
	UpsertProgress(ctx context.Context, progress ReadingProgress) error
}

type FeedRepository interface {
	GetFeed(ctx context.Context, id string) (*Feed, error)
	// GetFeedByURL returns nil without error when no feed matches.
	GetFeedByURL(ctx context.Context, url string) (*Feed, error)
	// UpsertFeed creates or updates the feed keyed by (catalogID, url) and
	// returns the stored row.
	UpsertFeed(ctx context.Context, feed Feed) (*Feed, error)
	GetFeedsForCatalog(ctx context.Context, catalogID string) ([]Feed, error)
	GetFeedCount(ctx context.Context) (int, error)
}

type ItemRepository interface {
	GetItem(ctx context.Context, id string) (*FeedItem, error)
	GetItemByGUID(ctx context.Context, feedID, guid string) (*FeedItem, error)
	// UpsertItems writes items keyed by (feedID, guid); existing rows keep
	// their read/starred state.
	UpsertItems(ctx context.Context, feedID string, items []FeedItem) error
	CreateItem(ctx context.Context, item FeedItem) error
	UpdateItemState(ctx context.Context, itemID string, isRead, isStarred bool) error
	GetItemCount(ctx context.Context, feedID string) (int, error)
	DeleteOldItems(ctx context.Context, feedID string, keepCount int) (int64, error)
}

type MappingRepository interface {
	// Get* methods return nil without error when no mapping exists.
	GetFeedMapping(ctx context.Context, catalogID string, remoteFeedID int64) (*FeedMapping, error)
	CreateFeedMapping(ctx context.Context, mapping FeedMapping) error
	GetFeedMappingsForCatalog(ctx context.Context, catalogID string) ([]FeedMapping, error)
	GetItemMapping(ctx context.Context, catalogID string, remoteItemID int64) (*ItemMapping, error)
	CreateItemMapping(ctx context.Context, mapping ItemMapping) error
	DeleteMappingsForCatalog(ctx context.Context, catalogID string) (int64, error)
}

type FeedCacheRepository interface {
	// GetCachedFeed returns nil without error when no entry exists.
	GetCachedFeed(ctx context.Context, catalogID, url string) (*CachedFeed, error)
	PutCachedFeed(ctx context.Context, cached CachedFeed) error
	DeleteCachedFeedsForCatalog(ctx context.Context, catalogID string) (int64, error)
}
