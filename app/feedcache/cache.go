package feedcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/remote"
)

// Strategy selects how a feed fetch balances the network against the
// persisted cache.
type Strategy string

const (
	// NetworkFirst attempts the network, falling back to any cached entry.
	NetworkFirst Strategy = "network_first"
	// CacheFirst serves a fresh cache entry without touching the network;
	// otherwise fetches, falling back to a stale entry on failure.
	CacheFirst Strategy = "cache_first"
	// CacheOnly never touches the network.
	CacheOnly Strategy = "cache_only"
	// NetworkOnly always fetches and never reads or writes the cache; the
	// caller decides whether to persist via Store.
	NetworkOnly Strategy = "network_only"
)

// ErrCacheNotFound is returned by CacheOnly when no entry exists.
var ErrCacheNotFound = errors.New("no cached feed available")

// CachedFeedResult wraps a fetched or cached feed. Results straight from
// the network carry IsFromCache=false and nil timestamps; cache hits carry
// the stored CachedAt/ExpiresAt.
type CachedFeedResult struct {
	Feed        *remote.Feed
	IsFromCache bool
	CachedAt    *time.Time
	ExpiresAt   *time.Time
}

// Fresh reports whether the result can be served without refetching: fresh
// network results always are, cache entries only until their expiry. An
// entry with unknown expiry is never fresh.
func (r *CachedFeedResult) Fresh(now time.Time) bool {
	if !r.IsFromCache {
		return true
	}
	return r.ExpiresAt != nil && now.Before(*r.ExpiresAt)
}

// Cache is the feed-fetch front door: every catalog and feed read goes
// through it so freshness policy lives in one place.
type Cache struct {
	client remote.FeedClient
	repo   database.FeedCacheRepository
	ttl    time.Duration
}

func NewCache(client remote.FeedClient, repo database.FeedCacheRepository, ttl time.Duration) *Cache {
	return &Cache{client: client, repo: repo, ttl: ttl}
}

func (c *Cache) FetchFeed(ctx context.Context, catalogID, url string, strategy Strategy) (*CachedFeedResult, error) {
	switch strategy {
	case CacheFirst:
		cached, err := c.getCached(ctx, catalogID, url)
		if err != nil {
			// An unreadable entry counts as a miss; the network can still
			// satisfy the request.
			slog.Warn("Cache read failed, treating as miss", "catalog", catalogID, "url", url, "error", err)
			cached = nil
		}
		if cached != nil && cached.Fresh(time.Now()) {
			return cached, nil
		}

		result, fetchErr := c.fetchAndStore(ctx, catalogID, url)
		if fetchErr == nil {
			return result, nil
		}
		if cached != nil {
			slog.Debug("Network fetch failed, serving stale cache", "catalog", catalogID, "url", url, "error", fetchErr)
			return cached, nil
		}
		return nil, fetchErr

	case CacheOnly:
		cached, err := c.getCached(ctx, catalogID, url)
		if err != nil {
			return nil, err
		}
		if cached == nil {
			return nil, fmt.Errorf("%w: %s", ErrCacheNotFound, url)
		}
		return cached, nil

	case NetworkOnly:
		return c.fetchNetwork(ctx, url)

	case NetworkFirst, "":
		result, fetchErr := c.fetchAndStore(ctx, catalogID, url)
		if fetchErr == nil {
			return result, nil
		}
		cached, err := c.getCached(ctx, catalogID, url)
		if err != nil {
			slog.Warn("Cache read failed, treating as miss", "catalog", catalogID, "url", url, "error", err)
			cached = nil
		}
		if cached != nil {
			slog.Debug("Network fetch failed, serving cache", "catalog", catalogID, "url", url, "error", fetchErr)
			return cached, nil
		}
		return nil, fetchErr

	default:
		return nil, fmt.Errorf("unknown fetch strategy: %q", string(strategy))
	}
}

// Store persists a fetched feed for a catalog URL, stamping the freshness
// window. Used by NetworkOnly callers that still want a cache write.
func (c *Cache) Store(ctx context.Context, catalogID, url string, feed *remote.Feed) error {
	payload, err := json.Marshal(feed)
	if err != nil {
		return fmt.Errorf("failed to serialize feed for cache: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(c.ttl)
	return c.repo.PutCachedFeed(ctx, database.CachedFeed{
		CatalogID: catalogID,
		URL:       url,
		Payload:   payload,
		ItemCount: len(feed.Items),
		CachedAt:  now,
		ExpiresAt: &expiresAt,
	})
}

// Invalidate drops all cached entries for a catalog.
func (c *Cache) Invalidate(ctx context.Context, catalogID string) error {
	if _, err := c.repo.DeleteCachedFeedsForCatalog(ctx, catalogID); err != nil {
		return err
	}
	return nil
}

func (c *Cache) fetchNetwork(ctx context.Context, url string) (*CachedFeedResult, error) {
	feed, err := c.client.FetchFeed(ctx, url)
	if err != nil {
		return nil, err
	}
	return &CachedFeedResult{Feed: feed, IsFromCache: false}, nil
}

func (c *Cache) fetchAndStore(ctx context.Context, catalogID, url string) (*CachedFeedResult, error) {
	result, err := c.fetchNetwork(ctx, url)
	if err != nil {
		return nil, err
	}
	if storeErr := c.Store(ctx, catalogID, url, result.Feed); storeErr != nil {
		slog.Warn("Failed to write feed cache", "catalog", catalogID, "url", url, "error", storeErr)
	}
	return result, nil
}

func (c *Cache) getCached(ctx context.Context, catalogID, url string) (*CachedFeedResult, error) {
	cached, err := c.repo.GetCachedFeed(ctx, catalogID, url)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, nil
	}

	var feed remote.Feed
	if err := json.Unmarshal(cached.Payload, &feed); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached feed: %w", err)
	}

	cachedAt := cached.CachedAt
	return &CachedFeedResult{
		Feed:        &feed,
		IsFromCache: true,
		CachedAt:    &cachedAt,
		ExpiresAt:   cached.ExpiresAt,
	}, nil
}
