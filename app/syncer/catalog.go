package syncer

import (
	"cmp"
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/feedcache"
)

// CatalogSynchronizer refreshes catalogs and feeds from their remote
// sources. Its public methods never return an error: every failure is
// recorded in the Result so partial success stays observable.
type CatalogSynchronizer struct {
	configs  ConfigSource
	cache    FeedCache
	feedRepo database.FeedRepository
	itemRepo database.ItemRepository
	tracker  *Tracker
}

func NewCatalogSynchronizer(configs ConfigSource, cache FeedCache,
	feedRepo database.FeedRepository, itemRepo database.ItemRepository,
	tracker *Tracker) *CatalogSynchronizer {
	return &CatalogSynchronizer{
		configs:  configs,
		cache:    cache,
		feedRepo: feedRepo,
		itemRepo: itemRepo,
		tracker:  tracker,
	}
}

// RefreshCatalog refreshes the catalog's primary feed URL.
func (s *CatalogSynchronizer) RefreshCatalog(ctx context.Context, catalogID string) Result {
	cat, err := s.configs.GetConfig(catalogID)
	if err != nil {
		result := Result{CatalogID: catalogID, StartedAt: time.Now()}
		result.Errors = append(result.Errors, SyncError{
			RecordID:  catalogID,
			Operation: "refresh_catalog",
			Message:   err.Error(),
		})
		return result
	}
	return s.RefreshFeed(ctx, catalogID, cat.URL)
}

// RefreshFeed forces a network fetch for one feed URL, persists the result,
// and approximates added/updated counts from pre/post entry counts. A count
// decrease is reported as a full updated count, never as negative adds.
func (s *CatalogSynchronizer) RefreshFeed(ctx context.Context, catalogID, feedURL string) Result {
	result := Result{CatalogID: catalogID, StartedAt: time.Now()}

	fetched, err := s.cache.FetchFeed(ctx, catalogID, feedURL, feedcache.NetworkOnly)
	if err != nil {
		result.Errors = append(result.Errors, SyncError{
			RecordID:  feedURL,
			Operation: "fetch_feed",
			Message:   err.Error(),
		})
		result.Duration = time.Since(result.StartedAt)
		return result
	}

	// Network-only fetch plus an explicit cache write: the refresh is the
	// authoritative fetch and also warms the cache for later reads.
	if err := s.cache.Store(ctx, catalogID, feedURL, fetched.Feed); err != nil {
		result.Errors = append(result.Errors, SyncError{
			RecordID:  feedURL,
			Operation: "cache_write",
			Message:   err.Error(),
		})
	}

	feed, err := s.feedRepo.UpsertFeed(ctx, database.Feed{
		CatalogID:   catalogID,
		URL:         feedURL,
		Title:       fetched.Feed.Metadata.Title,
		Link:        fetched.Feed.Metadata.Link,
		Description: fetched.Feed.Metadata.Description,
	})
	if err != nil {
		result.Errors = append(result.Errors, SyncError{
			RecordID:  feedURL,
			Operation: "upsert_feed",
			Message:   err.Error(),
		})
		result.Duration = time.Since(result.StartedAt)
		return result
	}

	preCount, err := s.itemRepo.GetItemCount(ctx, feed.ID)
	if err != nil {
		result.Errors = append(result.Errors, SyncError{
			RecordID:  feed.ID,
			Operation: "count_items",
			Message:   err.Error(),
		})
		result.Duration = time.Since(result.StartedAt)
		return result
	}

	now := time.Now().UTC()
	items := make([]database.FeedItem, 0, len(fetched.Feed.Items))
	for _, entry := range fetched.Feed.Items {
		items = append(items, database.FeedItem{
			FeedID:    feed.ID,
			GUID:      entry.GUID,
			Title:     entry.Title,
			Link:      entry.Link,
			Content:   cmp.Or(entry.Content, entry.Description),
			PubDate:   entry.PublishedAt,
			FetchedAt: now,
		})
	}

	if err := s.itemRepo.UpsertItems(ctx, feed.ID, items); err != nil {
		result.Errors = append(result.Errors, SyncError{
			RecordID:  feed.ID,
			Operation: "upsert_items",
			Message:   err.Error(),
		})
		result.Duration = time.Since(result.StartedAt)
		return result
	}

	postCount, err := s.itemRepo.GetItemCount(ctx, feed.ID)
	if err != nil {
		result.Errors = append(result.Errors, SyncError{
			RecordID:  feed.ID,
			Operation: "count_items",
			Message:   err.Error(),
		})
		result.Duration = time.Since(result.StartedAt)
		return result
	}

	delta := postCount - preCount
	if delta > 0 {
		result.ItemsAdded = delta
		if updated := len(items) - delta; updated > 0 {
			result.ItemsUpdated = updated
		}
	} else {
		result.ItemsUpdated = len(items)
	}

	if cat, err := s.configs.GetConfig(catalogID); err == nil && cat.Settings.KeepItems > 0 {
		if _, err := s.itemRepo.DeleteOldItems(ctx, feed.ID, cat.Settings.KeepItems); err != nil {
			slog.Warn("Failed to trim old items", "catalog", catalogID, "feed", feed.ID, "error", err)
		}
	}

	s.tracker.MarkSynced(catalogID, time.Now())
	result.Duration = time.Since(result.StartedAt)

	slog.Info("Feed refreshed", "catalog", catalogID, "url", feedURL,
		"added", result.ItemsAdded, "updated", result.ItemsUpdated,
		"errors", len(result.Errors), "duration", result.Duration)
	return result
}

// PrefetchFeeds warms the cache for a set of feed URLs. Best effort: errors
// are logged and swallowed.
func (s *CatalogSynchronizer) PrefetchFeeds(ctx context.Context, catalogID string, urls []string) {
	for _, url := range urls {
		if _, err := s.cache.FetchFeed(ctx, catalogID, url, feedcache.CacheFirst); err != nil {
			slog.Debug("Prefetch failed", "catalog", catalogID, "url", url, "error", err)
		}
	}
}

// InvalidateCache drops the catalog's cached feeds and resets its staleness
// tracking so the next check reports the catalog as needing sync.
func (s *CatalogSynchronizer) InvalidateCache(ctx context.Context, catalogID string) error {
	if err := s.cache.Invalidate(ctx, catalogID); err != nil {
		return err
	}
	s.tracker.Clear(catalogID)
	return nil
}

// NeedsSync reports whether the catalog's last refresh is older than the
// threshold.
func (s *CatalogSynchronizer) NeedsSync(catalogID string, threshold time.Duration) bool {
	return s.tracker.NeedsSync(catalogID, threshold)
}
