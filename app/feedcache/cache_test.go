package feedcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/remote"
)

type fakeFeedClient struct {
	feed       *remote.Feed
	err        error
	fetchCalls int
}

func (f *fakeFeedClient) FetchFeed(_ context.Context, _ string) (*remote.Feed, error) {
	f.fetchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.feed, nil
}

type cacheKey struct {
	catalogID string
	url       string
}

type fakeCacheRepo struct {
	entries  map[cacheKey]database.CachedFeed
	getCalls int
	putCalls int
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{entries: make(map[cacheKey]database.CachedFeed)}
}

func (f *fakeCacheRepo) GetCachedFeed(_ context.Context, catalogID, url string) (*database.CachedFeed, error) {
	f.getCalls++
	entry, ok := f.entries[cacheKey{catalogID, url}]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (f *fakeCacheRepo) PutCachedFeed(_ context.Context, cached database.CachedFeed) error {
	f.putCalls++
	f.entries[cacheKey{cached.CatalogID, cached.URL}] = cached
	return nil
}

func (f *fakeCacheRepo) DeleteCachedFeedsForCatalog(_ context.Context, catalogID string) (int64, error) {
	deleted := int64(0)
	for key := range f.entries {
		if key.catalogID == catalogID {
			delete(f.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func networkFeed() *remote.Feed {
	return &remote.Feed{
		Metadata: remote.Metadata{Title: "Network Feed"},
		Items:    []remote.Item{{GUID: "n1", Title: "Fresh"}},
	}
}

func seedCache(t *testing.T, repo *fakeCacheRepo, catalogID, url, title string, expiresAt *time.Time) {
	t.Helper()
	payload, err := json.Marshal(&remote.Feed{
		Metadata: remote.Metadata{Title: title},
		Items:    []remote.Item{{GUID: "c1", Title: "Cached"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	repo.entries[cacheKey{catalogID, url}] = database.CachedFeed{
		CatalogID: catalogID,
		URL:       url,
		Payload:   payload,
		ItemCount: 1,
		CachedAt:  time.Now().UTC().Add(-time.Minute),
		ExpiresAt: expiresAt,
	}
}

const testURL = "https://example.com/feed.xml"

func TestNetworkFirstFetchesAndStores(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	repo := newFakeCacheRepo()
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, NetworkFirst)
	if err != nil {
		t.Fatal(err)
	}

	if result.IsFromCache {
		t.Error("Expected a network result")
	}
	if client.fetchCalls != 1 {
		t.Errorf("Expected 1 network fetch, got %d", client.fetchCalls)
	}
	if repo.putCalls != 1 {
		t.Errorf("Expected 1 cache write, got %d", repo.putCalls)
	}
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	client := &fakeFeedClient{err: errors.New("connection refused")}
	repo := newFakeCacheRepo()
	seedCache(t, repo, "cat", testURL, "Cached Feed", nil)
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, NetworkFirst)
	if err != nil {
		t.Fatal(err)
	}

	if !result.IsFromCache {
		t.Error("Expected a cache fallback result")
	}
	if result.Feed.Metadata.Title != "Cached Feed" {
		t.Errorf("Expected cached payload, got %q", result.Feed.Metadata.Title)
	}
}

func TestNetworkFirstNoCacheNoNetwork(t *testing.T) {
	client := &fakeFeedClient{err: errors.New("connection refused")}
	cache := NewCache(client, newFakeCacheRepo(), time.Hour)

	if _, err := cache.FetchFeed(context.Background(), "cat", testURL, NetworkFirst); err == nil {
		t.Fatal("Expected error when both network and cache are empty")
	}
}

func TestEmptyStrategyDefaultsToNetworkFirst(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	repo := newFakeCacheRepo()
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.IsFromCache || repo.putCalls != 1 {
		t.Error("Expected default strategy to behave like NetworkFirst")
	}
}

func TestCacheFirstServesFreshEntryWithoutNetwork(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	repo := newFakeCacheRepo()
	expires := time.Now().UTC().Add(time.Hour)
	seedCache(t, repo, "cat", testURL, "Cached Feed", &expires)
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, CacheFirst)
	if err != nil {
		t.Fatal(err)
	}

	if !result.IsFromCache {
		t.Error("Expected a cache hit")
	}
	if client.fetchCalls != 0 {
		t.Errorf("Expected 0 network fetches for a fresh entry, got %d", client.fetchCalls)
	}
}

func TestCacheFirstRefetchesExpiredEntry(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	repo := newFakeCacheRepo()
	expired := time.Now().UTC().Add(-time.Minute)
	seedCache(t, repo, "cat", testURL, "Cached Feed", &expired)
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, CacheFirst)
	if err != nil {
		t.Fatal(err)
	}

	if result.IsFromCache {
		t.Error("Expected a network result for an expired entry")
	}
	if client.fetchCalls != 1 {
		t.Errorf("Expected 1 network fetch, got %d", client.fetchCalls)
	}
}

func TestCacheFirstUnknownExpiryIsNeverFresh(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	repo := newFakeCacheRepo()
	seedCache(t, repo, "cat", testURL, "Cached Feed", nil)
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, CacheFirst)
	if err != nil {
		t.Fatal(err)
	}

	if result.IsFromCache {
		t.Error("Expected entry with unknown expiry to be refetched")
	}
}

func TestCacheFirstUnreadableEntryFallsThroughToNetwork(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	repo := newFakeCacheRepo()
	expires := time.Now().UTC().Add(time.Hour)
	repo.entries[cacheKey{"cat", testURL}] = database.CachedFeed{
		CatalogID: "cat",
		URL:       testURL,
		Payload:   []byte("{not json"),
		CachedAt:  time.Now().UTC().Add(-time.Minute),
		ExpiresAt: &expires,
	}
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, CacheFirst)
	if err != nil {
		t.Fatal(err)
	}

	if result.IsFromCache {
		t.Error("Expected a network result when the cached payload is unreadable")
	}
	if client.fetchCalls != 1 {
		t.Errorf("Expected 1 network fetch, got %d", client.fetchCalls)
	}
}

func TestCacheFirstServesStaleOnNetworkFailure(t *testing.T) {
	client := &fakeFeedClient{err: errors.New("timeout")}
	repo := newFakeCacheRepo()
	expired := time.Now().UTC().Add(-time.Minute)
	seedCache(t, repo, "cat", testURL, "Stale Feed", &expired)
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, CacheFirst)
	if err != nil {
		t.Fatal(err)
	}

	if !result.IsFromCache {
		t.Error("Expected stale cache fallback")
	}
	if result.Feed.Metadata.Title != "Stale Feed" {
		t.Errorf("Expected stale payload, got %q", result.Feed.Metadata.Title)
	}
}

func TestCacheOnlyHit(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	repo := newFakeCacheRepo()
	seedCache(t, repo, "cat", testURL, "Cached Feed", nil)
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, CacheOnly)
	if err != nil {
		t.Fatal(err)
	}

	if !result.IsFromCache {
		t.Error("Expected cache result")
	}
	if client.fetchCalls != 0 {
		t.Errorf("Expected CacheOnly to never touch the network, got %d fetches", client.fetchCalls)
	}
}

func TestCacheOnlyMiss(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	cache := NewCache(client, newFakeCacheRepo(), time.Hour)

	_, err := cache.FetchFeed(context.Background(), "cat", testURL, CacheOnly)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("Expected ErrCacheNotFound, got %v", err)
	}
	if client.fetchCalls != 0 {
		t.Errorf("Expected 0 network fetches, got %d", client.fetchCalls)
	}
}

func TestNetworkOnlySkipsCacheEntirely(t *testing.T) {
	client := &fakeFeedClient{feed: networkFeed()}
	repo := newFakeCacheRepo()
	seedCache(t, repo, "cat", testURL, "Cached Feed", nil)
	cache := NewCache(client, repo, time.Hour)

	result, err := cache.FetchFeed(context.Background(), "cat", testURL, NetworkOnly)
	if err != nil {
		t.Fatal(err)
	}

	if result.IsFromCache {
		t.Error("Expected a network result")
	}
	if repo.getCalls != 0 {
		t.Errorf("Expected no cache reads, got %d", repo.getCalls)
	}
	if repo.putCalls != 0 {
		t.Errorf("Expected no cache writes, got %d", repo.putCalls)
	}
}

func TestUnknownStrategyRejected(t *testing.T) {
	cache := NewCache(&fakeFeedClient{feed: networkFeed()}, newFakeCacheRepo(), time.Hour)

	if _, err := cache.FetchFeed(context.Background(), "cat", testURL, Strategy("bogus")); err == nil {
		t.Fatal("Expected error for unknown strategy")
	}
}

func TestStoreStampsFreshnessWindow(t *testing.T) {
	repo := newFakeCacheRepo()
	cache := NewCache(&fakeFeedClient{}, repo, time.Hour)

	before := time.Now().UTC()
	if err := cache.Store(context.Background(), "cat", testURL, networkFeed()); err != nil {
		t.Fatal(err)
	}

	entry := repo.entries[cacheKey{"cat", testURL}]
	if entry.ItemCount != 1 {
		t.Errorf("Expected item count 1, got %d", entry.ItemCount)
	}
	if entry.ExpiresAt == nil {
		t.Fatal("Expected an expiry to be set")
	}
	if entry.ExpiresAt.Before(before.Add(59 * time.Minute)) {
		t.Errorf("Expected expiry roughly one hour out, got %v", entry.ExpiresAt)
	}
}

func TestInvalidateDropsCatalogEntries(t *testing.T) {
	client := &fakeFeedClient{err: errors.New("offline")}
	repo := newFakeCacheRepo()
	seedCache(t, repo, "cat", testURL, "Cached Feed", nil)
	seedCache(t, repo, "other", testURL, "Other Feed", nil)
	cache := NewCache(client, repo, time.Hour)

	if err := cache.Invalidate(context.Background(), "cat"); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.FetchFeed(context.Background(), "cat", testURL, CacheOnly); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("Expected cache miss after invalidation, got %v", err)
	}
	if _, err := cache.FetchFeed(context.Background(), "other", testURL, CacheOnly); err != nil {
		t.Errorf("Expected other catalog's cache to survive, got %v", err)
	}
}
