package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/remote"
)

// NewsSynchronizer runs the two-way sync against a Nextcloud News server.
// Remote feeds are imported or linked to existing local feeds once, keyed
// by (catalogID, remoteFeedID); item read/starred state follows the remote
// unconditionally. That asymmetry from the progress merge is deliberate:
// read/starred are flags the user may toggle on any device, not a
// furthest-wins quantity.
type NewsSynchronizer struct {
	configs     ConfigSource
	client      remote.NewsClient
	credentials remote.CredentialStore
	feedRepo    database.FeedRepository
	itemRepo    database.ItemRepository
	mappingRepo database.MappingRepository

	mu        sync.RWMutex
	available map[string]bool
}

func NewNewsSynchronizer(configs ConfigSource, client remote.NewsClient,
	credentials remote.CredentialStore, feedRepo database.FeedRepository,
	itemRepo database.ItemRepository, mappingRepo database.MappingRepository) *NewsSynchronizer {
	return &NewsSynchronizer{
		configs:     configs,
		client:      client,
		credentials: credentials,
		feedRepo:    feedRepo,
		itemRepo:    itemRepo,
		mappingRepo: mappingRepo,
		available:   make(map[string]bool),
	}
}

func failure(result NewsResult, reason string) NewsResult {
	result.Success = false
	result.Reason = reason
	return result
}

// SyncFromCatalog imports/links remote feeds and reconciles item state.
// It never returns an error; every failure path yields a NewsResult with a
// distinct human-readable reason. Preconditions are checked in strict
// order and the first failing one short-circuits.
func (s *NewsSynchronizer) SyncFromCatalog(ctx context.Context, catalogID string) NewsResult {
	var result NewsResult

	cat, err := s.configs.GetConfig(catalogID)
	if err != nil {
		return failure(result, fmt.Sprintf("catalog not found: %s", catalogID))
	}
	if cat.Type != catalog.TypeNextcloud {
		return failure(result, fmt.Sprintf("catalog %s is not a Nextcloud catalog", catalogID))
	}
	if !cat.Settings.NewsSync {
		return failure(result, fmt.Sprintf("news sync is not enabled for catalog %s", catalogID))
	}
	if _, ok := s.credentials.Get(remote.CredentialKey(catalogID)); !ok {
		return failure(result, fmt.Sprintf("no stored credentials for catalog %s", catalogID))
	}
	if !s.UpdateNewsAvailability(ctx, catalogID) {
		return failure(result, fmt.Sprintf("News app is not available on catalog %s", catalogID))
	}

	// Phase 1: import or link remote feeds, once per remote feed id.
	remoteFeeds, err := s.client.ListFeeds(ctx, cat)
	if err != nil {
		return failure(result, fmt.Sprintf("failed to list remote feeds: %v", err))
	}

	for _, remoteFeed := range remoteFeeds {
		mapping, err := s.mappingRepo.GetFeedMapping(ctx, catalogID, remoteFeed.ID)
		if err != nil {
			return failure(result, fmt.Sprintf("failed to look up feed mapping: %v", err))
		}
		if mapping != nil {
			// Already imported or linked on an earlier sync.
			continue
		}

		feedURL := normalizeFeedURL(remoteFeed.URL)
		existing, err := s.feedRepo.GetFeedByURL(ctx, feedURL)
		if err != nil {
			return failure(result, fmt.Sprintf("failed to look up local feed: %v", err))
		}
		if existing == nil && feedURL != "" {
			// A catalog-declared feed is stored verbatim and may carry the
			// trailing slash the normalized form strips.
			existing, err = s.feedRepo.GetFeedByURL(ctx, feedURL+"/")
			if err != nil {
				return failure(result, fmt.Sprintf("failed to look up local feed: %v", err))
			}
		}

		if existing != nil {
			err = s.mappingRepo.CreateFeedMapping(ctx, database.FeedMapping{
				CatalogID:    catalogID,
				RemoteFeedID: remoteFeed.ID,
				LocalFeedID:  existing.ID,
			})
			if err != nil {
				return failure(result, fmt.Sprintf("failed to link feed: %v", err))
			}
			result.FeedsLinked++
			slog.Debug("Linked remote feed to existing local feed", "catalog", catalogID,
				"remote_feed", remoteFeed.ID, "local_feed", existing.ID)
			continue
		}

		created, err := s.feedRepo.UpsertFeed(ctx, database.Feed{
			CatalogID: catalogID,
			URL:       feedURL,
			Title:     norm.NFC.String(remoteFeed.Title),
		})
		if err != nil {
			return failure(result, fmt.Sprintf("failed to import feed: %v", err))
		}
		err = s.mappingRepo.CreateFeedMapping(ctx, database.FeedMapping{
			CatalogID:    catalogID,
			RemoteFeedID: remoteFeed.ID,
			LocalFeedID:  created.ID,
		})
		if err != nil {
			return failure(result, fmt.Sprintf("failed to record feed mapping: %v", err))
		}
		result.FeedsImported++
		slog.Debug("Imported remote feed", "catalog", catalogID,
			"remote_feed", remoteFeed.ID, "local_feed", created.ID)
	}

	// Phase 2: item sync per mapped feed; the remote is the source of truth
	// for read/starred state.
	mappings, err := s.mappingRepo.GetFeedMappingsForCatalog(ctx, catalogID)
	if err != nil {
		return failure(result, fmt.Sprintf("failed to list feed mappings: %v", err))
	}

	for _, feedMapping := range mappings {
		items, err := s.client.ListItems(ctx, cat, feedMapping.RemoteFeedID, true)
		if err != nil {
			return failure(result, fmt.Sprintf("failed to list items for feed %d: %v", feedMapping.RemoteFeedID, err))
		}

		for _, remoteItem := range items {
			if err := s.syncItem(ctx, catalogID, feedMapping.LocalFeedID, remoteItem, &result); err != nil {
				return failure(result, fmt.Sprintf("failed to sync item %d: %v", remoteItem.ID, err))
			}
		}
	}

	result.Success = true
	slog.Info("News sync completed", "catalog", catalogID,
		"feeds_imported", result.FeedsImported, "feeds_linked", result.FeedsLinked,
		"items_added", result.ItemsAdded, "items_state_updated", result.ItemsStateUpdated)
	return result
}

func (s *NewsSynchronizer) syncItem(ctx context.Context, catalogID, localFeedID string,
	remoteItem remote.NewsItem, result *NewsResult) error {
	isRead := !remoteItem.Unread

	mapping, err := s.mappingRepo.GetItemMapping(ctx, catalogID, remoteItem.ID)
	if err != nil {
		return err
	}

	if mapping != nil {
		local, err := s.itemRepo.GetItem(ctx, mapping.LocalItemID)
		if err != nil {
			return err
		}
		if local == nil {
			slog.Warn("Item mapping points at a missing local item, skipping",
				"catalog", catalogID, "remote_item", remoteItem.ID, "local_item", mapping.LocalItemID)
			return nil
		}

		if local.IsRead != isRead || local.IsStarred != remoteItem.Starred {
			if err := s.itemRepo.UpdateItemState(ctx, local.ID, isRead, remoteItem.Starred); err != nil {
				return err
			}
			result.ItemsStateUpdated++
		}
		return nil
	}

	guid := remoteItem.GUID
	if guid == "" {
		guid = strconv.FormatInt(remoteItem.ID, 10)
	}

	item := database.FeedItem{
		FeedID:    localFeedID,
		GUID:      guid,
		Title:     norm.NFC.String(remoteItem.Title),
		Link:      remoteItem.URL,
		Content:   remoteItem.Body,
		IsRead:    isRead,
		IsStarred: remoteItem.Starred,
		PubDate:   remoteItem.PubDate,
		FetchedAt: time.Now().UTC(),
	}
	if err := s.itemRepo.CreateItem(ctx, item); err != nil {
		return err
	}

	stored, err := s.itemRepo.GetItemByGUID(ctx, localFeedID, guid)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("item missing after create: %s", guid)
	}

	err = s.mappingRepo.CreateItemMapping(ctx, database.ItemMapping{
		CatalogID:    catalogID,
		RemoteItemID: remoteItem.ID,
		LocalItemID:  stored.ID,
	})
	if err != nil {
		return err
	}

	result.ItemsAdded++
	return nil
}

// UpdateNewsAvailability re-checks whether the News app responds on the
// catalog's server and caches the answer. Any credential or network failure
// degrades to unavailable instead of propagating.
func (s *NewsSynchronizer) UpdateNewsAvailability(ctx context.Context, catalogID string) bool {
	available := false

	cat, err := s.configs.GetConfig(catalogID)
	if err == nil {
		if _, ok := s.credentials.Get(remote.CredentialKey(catalogID)); ok {
			ok, checkErr := s.client.CheckAvailable(ctx, cat)
			if checkErr != nil {
				slog.Debug("News availability check failed", "catalog", catalogID, "error", checkErr)
			} else {
				available = ok
			}
		}
	}

	s.mu.Lock()
	s.available[catalogID] = available
	s.mu.Unlock()
	return available
}

// NewsAvailable returns the last cached availability verdict for a catalog.
func (s *NewsSynchronizer) NewsAvailable(catalogID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available[catalogID]
}

// DisableSync removes all feed and item mappings for a catalog. Called when
// news sync is switched off so a later re-enable starts from a clean slate.
func (s *NewsSynchronizer) DisableSync(ctx context.Context, catalogID string) error {
	deleted, err := s.mappingRepo.DeleteMappingsForCatalog(ctx, catalogID)
	if err != nil {
		return fmt.Errorf("failed to delete mappings: %w", err)
	}
	slog.Info("News sync disabled, mappings removed", "catalog", catalogID, "deleted", deleted)
	return nil
}

func normalizeFeedURL(url string) string {
	return strings.TrimSuffix(norm.NFC.String(strings.TrimSpace(url)), "/")
}
