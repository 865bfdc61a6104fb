package syncer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/feedcache"
	"github.com/lysyi3m/shelf-sync/app/remote"
)

type fakeConfigs struct {
	configs map[string]*catalog.Config
}

func (f *fakeConfigs) GetConfig(catalogID string) (*catalog.Config, error) {
	config, ok := f.configs[catalogID]
	if !ok {
		return nil, fmt.Errorf("catalog config with id '%s' not found", catalogID)
	}
	return config, nil
}

type fakeProgressRepo struct {
	records map[string]database.ReadingProgress
	upserts int
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{records: make(map[string]database.ReadingProgress)}
}

func (f *fakeProgressRepo) GetProgress(_ context.Context, bookID string) (*database.ReadingProgress, error) {
	record, ok := f.records[bookID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (f *fakeProgressRepo) UpsertProgress(_ context.Context, progress database.ReadingProgress) error {
	f.records[progress.BookID] = progress
	f.upserts++
	return nil
}

type fakeProgressClient struct {
	remoteProgress *remote.RemoteProgress
	fetchErr       error
	syncCalls      int
	lastPercentage float64
	lastCFI        string
}

func (f *fakeProgressClient) FetchProgress(_ context.Context, _ *catalog.Config, _ string) (*remote.RemoteProgress, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.remoteProgress, nil
}

func (f *fakeProgressClient) SyncProgress(_ context.Context, _ *catalog.Config, _ string, percentage float64, cfi string) error {
	f.syncCalls++
	f.lastPercentage = percentage
	f.lastCFI = cfi
	return nil
}

type fakeFeedRepo struct {
	feeds  map[string]*database.Feed
	nextID int
}

func newFakeFeedRepo() *fakeFeedRepo {
	return &fakeFeedRepo{feeds: make(map[string]*database.Feed)}
}

func (f *fakeFeedRepo) GetFeed(_ context.Context, id string) (*database.Feed, error) {
	feed, ok := f.feeds[id]
	if !ok {
		return nil, nil
	}
	copied := *feed
	return &copied, nil
}

func (f *fakeFeedRepo) GetFeedByURL(_ context.Context, url string) (*database.Feed, error) {
	for _, feed := range f.feeds {
		if feed.URL == url {
			copied := *feed
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeFeedRepo) UpsertFeed(_ context.Context, feed database.Feed) (*database.Feed, error) {
	for _, existing := range f.feeds {
		if existing.CatalogID == feed.CatalogID && existing.URL == feed.URL {
			existing.Title = feed.Title
			existing.Link = feed.Link
			existing.Description = feed.Description
			copied := *existing
			return &copied, nil
		}
	}
	f.nextID++
	feed.ID = "feed-" + strconv.Itoa(f.nextID)
	stored := feed
	f.feeds[feed.ID] = &stored
	copied := stored
	return &copied, nil
}

func (f *fakeFeedRepo) GetFeedsForCatalog(_ context.Context, catalogID string) ([]database.Feed, error) {
	var out []database.Feed
	for _, feed := range f.feeds {
		if feed.CatalogID == catalogID {
			out = append(out, *feed)
		}
	}
	return out, nil
}

func (f *fakeFeedRepo) GetFeedCount(_ context.Context) (int, error) {
	return len(f.feeds), nil
}

type fakeItemRepo struct {
	items        map[string]*database.FeedItem
	nextID       int
	stateUpdates int
	deleteCalls  int
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[string]*database.FeedItem)}
}

func (f *fakeItemRepo) GetItem(_ context.Context, id string) (*database.FeedItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (f *fakeItemRepo) GetItemByGUID(_ context.Context, feedID, guid string) (*database.FeedItem, error) {
	for _, item := range f.items {
		if item.FeedID == feedID && item.GUID == guid {
			copied := *item
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeItemRepo) UpsertItems(ctx context.Context, feedID string, items []database.FeedItem) error {
	for _, item := range items {
		existing, _ := f.GetItemByGUID(ctx, feedID, item.GUID)
		if existing != nil {
			stored := f.items[existing.ID]
			stored.Title = item.Title
			stored.Link = item.Link
			stored.Content = item.Content
			stored.PubDate = item.PubDate
			stored.FetchedAt = item.FetchedAt
			continue
		}
		item.FeedID = feedID
		if err := f.CreateItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeItemRepo) CreateItem(_ context.Context, item database.FeedItem) error {
	f.nextID++
	item.ID = "item-" + strconv.Itoa(f.nextID)
	stored := item
	f.items[item.ID] = &stored
	return nil
}

func (f *fakeItemRepo) UpdateItemState(_ context.Context, itemID string, isRead, isStarred bool) error {
	item, ok := f.items[itemID]
	if !ok {
		return fmt.Errorf("item not found: %s", itemID)
	}
	item.IsRead = isRead
	item.IsStarred = isStarred
	f.stateUpdates++
	return nil
}

func (f *fakeItemRepo) GetItemCount(_ context.Context, feedID string) (int, error) {
	count := 0
	for _, item := range f.items {
		if item.FeedID == feedID {
			count++
		}
	}
	return count, nil
}

func (f *fakeItemRepo) DeleteOldItems(_ context.Context, _ string, _ int) (int64, error) {
	f.deleteCalls++
	return 0, nil
}

type feedMappingKey struct {
	catalogID    string
	remoteFeedID int64
}

type itemMappingKey struct {
	catalogID    string
	remoteItemID int64
}

type fakeMappingRepo struct {
	feedMappings map[feedMappingKey]database.FeedMapping
	itemMappings map[itemMappingKey]database.ItemMapping
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{
		feedMappings: make(map[feedMappingKey]database.FeedMapping),
		itemMappings: make(map[itemMappingKey]database.ItemMapping),
	}
}

func (f *fakeMappingRepo) GetFeedMapping(_ context.Context, catalogID string, remoteFeedID int64) (*database.FeedMapping, error) {
	mapping, ok := f.feedMappings[feedMappingKey{catalogID, remoteFeedID}]
	if !ok {
		return nil, nil
	}
	return &mapping, nil
}

func (f *fakeMappingRepo) CreateFeedMapping(_ context.Context, mapping database.FeedMapping) error {
	f.feedMappings[feedMappingKey{mapping.CatalogID, mapping.RemoteFeedID}] = mapping
	return nil
}

func (f *fakeMappingRepo) GetFeedMappingsForCatalog(_ context.Context, catalogID string) ([]database.FeedMapping, error) {
	var out []database.FeedMapping
	for key, mapping := range f.feedMappings {
		if key.catalogID == catalogID {
			out = append(out, mapping)
		}
	}
	return out, nil
}

func (f *fakeMappingRepo) GetItemMapping(_ context.Context, catalogID string, remoteItemID int64) (*database.ItemMapping, error) {
	mapping, ok := f.itemMappings[itemMappingKey{catalogID, remoteItemID}]
	if !ok {
		return nil, nil
	}
	return &mapping, nil
}

func (f *fakeMappingRepo) CreateItemMapping(_ context.Context, mapping database.ItemMapping) error {
	f.itemMappings[itemMappingKey{mapping.CatalogID, mapping.RemoteItemID}] = mapping
	return nil
}

func (f *fakeMappingRepo) DeleteMappingsForCatalog(_ context.Context, catalogID string) (int64, error) {
	deleted := int64(0)
	for key := range f.feedMappings {
		if key.catalogID == catalogID {
			delete(f.feedMappings, key)
			deleted++
		}
	}
	for key := range f.itemMappings {
		if key.catalogID == catalogID {
			delete(f.itemMappings, key)
			deleted++
		}
	}
	return deleted, nil
}

type fakeFeedCache struct {
	feed          *remote.Feed
	fetchErr      error
	fetchCalls    int
	lastStrategy  feedcache.Strategy
	storeCalls    int
	invalidations []string
}

func (f *fakeFeedCache) FetchFeed(_ context.Context, _, _ string, strategy feedcache.Strategy) (*feedcache.CachedFeedResult, error) {
	f.fetchCalls++
	f.lastStrategy = strategy
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &feedcache.CachedFeedResult{Feed: f.feed}, nil
}

func (f *fakeFeedCache) Store(_ context.Context, _, _ string, _ *remote.Feed) error {
	f.storeCalls++
	return nil
}

func (f *fakeFeedCache) Invalidate(_ context.Context, catalogID string) error {
	f.invalidations = append(f.invalidations, catalogID)
	return nil
}

type fakeNewsClient struct {
	available    bool
	availableErr error
	feeds        []remote.NewsFeed
	items        map[int64][]remote.NewsItem
	listFeedsErr error
}

func (f *fakeNewsClient) CheckAvailable(_ context.Context, _ *catalog.Config) (bool, error) {
	if f.availableErr != nil {
		return false, f.availableErr
	}
	return f.available, nil
}

func (f *fakeNewsClient) ListFeeds(_ context.Context, _ *catalog.Config) ([]remote.NewsFeed, error) {
	if f.listFeedsErr != nil {
		return nil, f.listFeedsErr
	}
	return f.feeds, nil
}

func (f *fakeNewsClient) ListItems(_ context.Context, _ *catalog.Config, remoteFeedID int64, _ bool) ([]remote.NewsItem, error) {
	return f.items[remoteFeedID], nil
}
