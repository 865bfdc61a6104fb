package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/connectivity"
	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/orchestrator"
)

func NewHandler(configCache *catalog.ConfigCache, feedRepo database.FeedRepository,
	itemRepo database.ItemRepository, jobQueue QueueInterface,
	orch OrchestratorInterface, gate *connectivity.Gate, version string) *Handler {
	return &Handler{
		configCache:  configCache,
		feedRepo:     feedRepo,
		itemRepo:     itemRepo,
		queue:        jobQueue,
		orchestrator: orch,
		gate:         gate,
		version:      version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if feedCount, err := h.feedRepo.GetFeedCount(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	}

	health["loaded_catalogs"] = h.configCache.GetConfigCount()

	if queueHealth, err := h.queue.Health(c.Request.Context()); err == nil {
		health["queue"] = queueHealth
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStatus(c *gin.Context) {
	status := h.orchestrator.Status()
	conn := h.gate.Current()

	out := gin.H{
		"state":          string(status.State),
		"jobs_processed": status.JobsProcessed,
		"jobs_failed":    status.JobsFailed,
		"updated_at":     status.At.Format(time.RFC3339),
		"connectivity": gin.H{
			"connected": conn.Connected,
			"type":      string(conn.Type),
		},
	}
	if status.LastError != "" {
		out["last_error"] = status.LastError
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := gin.H{
		"loaded_catalogs": h.configCache.GetConfigCount(),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(ctx); err == nil {
		stats["feeds"] = feedCount
	}

	catalogs := make([]gin.H, 0)
	for _, cat := range h.configCache.GetConfigs() {
		info := gin.H{
			"id":      cat.ID,
			"type":    string(cat.Type),
			"enabled": cat.Settings.Enabled,
		}
		if feeds, err := h.feedRepo.GetFeedsForCatalog(ctx, cat.ID); err == nil {
			info["feed_count"] = len(feeds)
			itemCount := 0
			for _, feed := range feeds {
				if count, err := h.itemRepo.GetItemCount(ctx, feed.ID); err == nil {
					itemCount += count
				}
			}
			info["item_count"] = itemCount
		}
		catalogs = append(catalogs, info)
	}
	stats["catalogs"] = catalogs

	if queueHealth, err := h.queue.Health(ctx); err == nil {
		stats["queue"] = queueHealth
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListJobs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	jobs, err := h.queue.RecentJobs(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_jobs", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	out := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		entry := gin.H{
			"id":             job.ID,
			"type":           string(job.Type),
			"target_id":      job.TargetID,
			"priority":       int(job.Priority),
			"status":         string(job.Status),
			"retry_eligible": job.RetryEligible,
			"attempts":       job.Attempts,
			"created_at":     job.CreatedAt.Format(time.RFC3339),
			"updated_at":     job.UpdatedAt.Format(time.RFC3339),
		}
		if job.LastError != "" {
			entry["last_error"] = job.LastError
		}
		if job.NextRetryAt != nil {
			entry["next_retry_at"] = job.NextRetryAt.Format(time.RFC3339)
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{"jobs": out, "count": len(out)})
}

func (h *Handler) APIRetryJob(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	job, err := h.queue.RetryJob(c.Request.Context(), id)
	if err != nil {
		slog.Error("Job retry failed", "job", id, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     job.ID,
		"status": string(job.Status),
	})
}

func (h *Handler) APIRefreshCatalog(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	if _, err := h.configCache.GetConfig(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "catalog not found"})
		return
	}

	if err := h.orchestrator.EnqueueCatalogRefresh(c.Request.Context(), id, database.PriorityHigh); err != nil {
		slog.Error("Failed to enqueue catalog refresh", "catalog", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	go h.kickSync()

	c.JSON(http.StatusAccepted, gin.H{"catalog": id, "queued": true})
}

func (h *Handler) APITriggerSync(c *gin.Context) {
	if h.orchestrator.Status().State == orchestrator.StateSyncing {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		return
	}

	go func() {
		if err := h.orchestrator.SyncAll(context.Background()); err != nil &&
			!errors.Is(err, orchestrator.ErrSyncInProgress) {
			slog.Error("Manual sync failed", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

// kickSync triggers an opportunistic drain after an enqueue. An already
// running drain picks the new job up on its own.
func (h *Handler) kickSync() {
	err := h.orchestrator.ProcessPendingJobs(context.Background())
	if err != nil && !errors.Is(err, orchestrator.ErrSyncInProgress) && !errors.Is(err, orchestrator.ErrOffline) {
		slog.Error("Background sync failed", "error", err)
	}
}
