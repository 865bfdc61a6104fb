package database

import (
	"fmt"
	"time"
)

// JobType identifies which synchronizer a queued job is dispatched to.
type JobType string

const (
	JobTypeProgress JobType = "progress"
	JobTypeCatalog  JobType = "catalog"
	JobTypeFeed     JobType = "feed"
	JobTypeNewsSync JobType = "news_sync"
)

// ParseJobType converts a stored string into a known JobType.
func ParseJobType(value string) (JobType, bool) {
	switch JobType(value) {
	case JobTypeProgress, JobTypeCatalog, JobTypeFeed, JobTypeNewsSync:
		return JobType(value), true
	}
	return "", false
}

type JobPriority int

const (
	PriorityLow    JobPriority = 0
	PriorityNormal JobPriority = 1
	PriorityHigh   JobPriority = 2
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// SyncJob is a unit of deferred sync work persisted in SQLite.
//
// The ID is derived from type and target so re-enqueueing the same logical
// operation updates the existing row instead of duplicating it. A failed job
// stays eligible for batch pickup until its attempts reach the configured
// maximum; after that RetryEligible is cleared and the job is terminal until
// re-enqueued explicitly.
type SyncJob struct {
	ID            string
	Type          JobType
	TargetID      string
	Payload       map[string]string
	Priority      JobPriority
	Status        JobStatus
	RetryEligible bool
	Attempts      int
	LastError     string
	NextRetryAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobID builds the deterministic job identifier for a type/target pair.
func JobID(jobType JobType, targetID string) string {
	return fmt.Sprintf("%s_%s", jobType, targetID)
}

// QueueHealth aggregates job counts per lifecycle state.
type QueueHealth struct {
	Total      int
	Pending    int
	InProgress int
	Retryable  int
	Terminal   int
	Completed  int
}

// ReadingProgress is the locally stored reading position for a book.
type ReadingProgress struct {
	BookID    string
	CatalogID string
	Progress  float64 // completion fraction, 0.0-1.0
	CFI       string  // opaque location marker
	UpdatedAt time.Time
}

// Feed is a locally known feed, either declared by a catalog or imported
// from a remote news server.
type Feed struct {
	ID          string // Database UUID
	CatalogID   string
	URL         string
	Title       string
	Link        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FeedItem is a single feed entry. GUID equals the remote identifier so
// re-syncing the same item upserts instead of duplicating.
type FeedItem struct {
	ID        string // Database UUID
	FeedID    string
	GUID      string
	Title     string
	Link      string
	Content   string
	IsRead    bool
	IsStarred bool
	PubDate   *time.Time
	FetchedAt time.Time
}

// FeedMapping correlates a remote numeric feed id with a local feed.
// Created once per remote feed, deleted only by cascade cleanup when sync
// is disabled for the catalog.
type FeedMapping struct {
	CatalogID    string
	RemoteFeedID int64
	LocalFeedID  string
	CreatedAt    time.Time
}

// ItemMapping correlates a remote numeric item id with a local item.
type ItemMapping struct {
	CatalogID    string
	RemoteItemID int64
	LocalItemID  string
	CreatedAt    time.Time
}

// CachedFeed is a persisted fetch result for a catalog feed URL.
// A nil ExpiresAt means the expiry is unknown; such entries are treated as
// stale by the cache layer.
type CachedFeed struct {
	CatalogID string
	URL       string
	Payload   []byte // serialized remote.Feed
	ItemCount int
	CachedAt  time.Time
	ExpiresAt *time.Time
}
