package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/remote"
)

// ProgressSynchronizer reconciles reading progress between the local store
// and a progress-capable remote using a furthest-progress-wins merge.
type ProgressSynchronizer struct {
	configs      ConfigSource
	registry     *remote.ProgressRegistry
	progressRepo database.ProgressRepository
}

func NewProgressSynchronizer(configs ConfigSource, registry *remote.ProgressRegistry,
	progressRepo database.ProgressRepository) *ProgressSynchronizer {
	return &ProgressSynchronizer{
		configs:      configs,
		registry:     registry,
		progressRepo: progressRepo,
	}
}

// SyncBook merges local and remote progress for one book. Exactly one write
// fires per call: either the local record is brought up to the remote value
// or the local value is pushed to the remote, never both. When neither side
// has a record the call is a no-op.
//
// Ties by magnitude go to the local side; timestamps are informational and
// never part of the comparison.
func (s *ProgressSynchronizer) SyncBook(ctx context.Context, catalogID, bookID, remoteBookID string) error {
	cat, err := s.configs.GetConfig(catalogID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCatalogNotFound, catalogID)
	}

	if !cat.Settings.SyncProgress {
		slog.Debug("Progress sync disabled for catalog, skipping", "catalog", catalogID, "book", bookID)
		return nil
	}

	client, ok := s.registry.ClientFor(cat.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedCatalogType, string(cat.Type))
	}

	local, err := s.progressRepo.GetProgress(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to load local progress: %w", err)
	}

	remoteProgress, err := client.FetchProgress(ctx, cat, remoteBookID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote progress: %w", err)
	}

	switch {
	case local == nil && remoteProgress == nil:
		slog.Debug("No progress on either side, nothing to merge", "catalog", catalogID, "book", bookID)
		return nil

	case local == nil:
		// Remote is the only record; adopt it verbatim.
		return s.adoptRemote(ctx, catalogID, bookID, remoteProgress)

	case remoteProgress == nil:
		// Local is authoritative; bring the remote up.
		return s.pushLocal(ctx, client, cat, remoteBookID, local)

	case local.Progress >= remoteProgress.Percentage:
		// Local wins, ties included. The remote is stale.
		return s.pushLocal(ctx, client, cat, remoteBookID, local)

	default:
		return s.updateLocal(ctx, catalogID, bookID, local, remoteProgress)
	}
}

func (s *ProgressSynchronizer) adoptRemote(ctx context.Context, catalogID, bookID string, remoteProgress *remote.RemoteProgress) error {
	updatedAt := time.Now().UTC()
	if remoteProgress.UpdatedAt != nil {
		updatedAt = *remoteProgress.UpdatedAt
	}

	err := s.progressRepo.UpsertProgress(ctx, database.ReadingProgress{
		BookID:    bookID,
		CatalogID: catalogID,
		Progress:  remoteProgress.Percentage,
		CFI:       remoteProgress.CFI,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to adopt remote progress: %w", err)
	}

	slog.Info("Adopted remote progress", "catalog", catalogID, "book", bookID,
		"progress", remoteProgress.Percentage)
	return nil
}

func (s *ProgressSynchronizer) pushLocal(ctx context.Context, client remote.ProgressSyncCapable,
	cat *catalog.Config, remoteBookID string, local *database.ReadingProgress) error {
	if err := client.SyncProgress(ctx, cat, remoteBookID, local.Progress, local.CFI); err != nil {
		return fmt.Errorf("failed to push progress to remote: %w", err)
	}

	slog.Info("Pushed local progress to remote", "catalog", cat.ID, "book", local.BookID,
		"progress", local.Progress)
	return nil
}

func (s *ProgressSynchronizer) updateLocal(ctx context.Context, catalogID, bookID string,
	local *database.ReadingProgress, remoteProgress *remote.RemoteProgress) error {
	// Never overwrite a usable location marker with an empty one.
	cfi := remoteProgress.CFI
	if cfi == "" {
		cfi = local.CFI
	}

	err := s.progressRepo.UpsertProgress(ctx, database.ReadingProgress{
		BookID:    bookID,
		CatalogID: catalogID,
		Progress:  remoteProgress.Percentage,
		CFI:       cfi,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to update local progress: %w", err)
	}

	slog.Info("Updated local progress from remote", "catalog", catalogID, "book", bookID,
		"local_progress", local.Progress, "remote_progress", remoteProgress.Percentage)
	return nil
}
