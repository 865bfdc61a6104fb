package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/shelf-sync/app/api"
	"github.com/lysyi3m/shelf-sync/app/catalog"
	"github.com/lysyi3m/shelf-sync/app/cfg"
	"github.com/lysyi3m/shelf-sync/app/connectivity"
	"github.com/lysyi3m/shelf-sync/app/database"
	"github.com/lysyi3m/shelf-sync/app/feedcache"
	"github.com/lysyi3m/shelf-sync/app/orchestrator"
	"github.com/lysyi3m/shelf-sync/app/queue"
	"github.com/lysyi3m/shelf-sync/app/remote"
	"github.com/lysyi3m/shelf-sync/app/scheduler"
	"github.com/lysyi3m/shelf-sync/app/syncer"
)

const connectivityPollInterval = 15 * time.Second

func main() {
	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown, exit gracefully
		return
	}

	if c.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting Shelf Sync", "version", c.Version)

	db, err := database.NewConnection(c.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", c.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", c.DBPath, "schema_version", version, "dirty", dirty)

	jobRepo := database.NewJobRepository(db)
	progressRepo := database.NewProgressRepository(db)
	feedRepo := database.NewFeedRepository(db)
	itemRepo := database.NewItemRepository(db)
	mappingRepo := database.NewMappingRepository(db)
	cacheRepo := database.NewFeedCacheRepository(db)

	configCache := catalog.NewConfigCache(c.CatalogsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load catalog configurations", "dir", c.CatalogsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Catalog configurations loaded", "count", configCache.GetConfigCount())

	credentials := remote.EnvCredentialStore{}
	httpClient := &http.Client{}
	requestTimeout := 30 * time.Second

	feedClient := remote.NewHTTPFeedClient(httpClient, c.UserAgent, requestTimeout)
	feedCache := feedcache.NewCache(feedClient, cacheRepo, time.Duration(c.CacheTTL)*time.Second)

	registry := remote.NewProgressRegistry()
	registry.Register(catalog.TypeKavita, remote.NewKavitaClient(httpClient, credentials, c.UserAgent, requestTimeout))

	newsClient := remote.NewNextcloudNewsClient(httpClient, credentials, c.UserAgent, requestTimeout)

	tracker := syncer.NewTracker()
	progressSync := syncer.NewProgressSynchronizer(configCache, registry, progressRepo)
	catalogSync := syncer.NewCatalogSynchronizer(configCache, feedCache, feedRepo, itemRepo, tracker)
	newsSync := syncer.NewNewsSynchronizer(configCache, newsClient, credentials, feedRepo, itemRepo, mappingRepo)

	provider := connectivity.NewInterfaceProvider(connectivityPollInterval)
	provider.Start()
	defer provider.Stop()
	gate := connectivity.NewGate(provider)

	jobQueue := queue.New(jobRepo, queue.Options{MaxRetries: c.MaxRetries})

	orch := orchestrator.New(jobQueue, progressSync, catalogSync, newsSync, configCache, gate, orchestrator.Options{
		BatchSize:       c.BatchSize,
		WifiOnly:        c.WifiOnly,
		ProgressEnabled: c.SyncProgressEnabled,
		CatalogsEnabled: c.SyncCatalogsEnabled,
		FeedsEnabled:    c.SyncFeedsEnabled,
		NewsEnabled:     c.SyncNewsEnabled,
	})

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go orch.WatchConnectivity(watchCtx, gate.Updates())

	sched := scheduler.New(gate)
	defer sched.Stop()

	sched.RegisterTask("sync", func(ctx context.Context) error {
		err := orch.SyncAll(ctx)
		if errors.Is(err, orchestrator.ErrSyncInProgress) || errors.Is(err, orchestrator.ErrOffline) {
			return nil
		}
		return err
	})
	sched.RegisterTask("cleanup", func(ctx context.Context) error {
		_, err := jobQueue.Cleanup(ctx, time.Duration(c.JobRetentionHours)*time.Hour)
		return err
	})

	if _, err := sched.SchedulePeriodic("sync", time.Duration(c.SyncInterval)*time.Second, scheduler.Constraints{
		RequiresConnectivity: true,
		WifiOnly:             c.WifiOnly,
	}); err != nil {
		slog.Error("Failed to schedule sync task", "error", err)
		os.Exit(1)
	}
	if _, err := sched.SchedulePeriodic("cleanup", time.Duration(c.CleanupInterval)*time.Second, scheduler.Constraints{}); err != nil {
		slog.Error("Failed to schedule cleanup task", "error", err)
		os.Exit(1)
	}

	apiHandler := api.NewHandler(configCache, feedRepo, itemRepo, jobQueue, orch, gate, c.Version)
	server := api.NewServer(apiHandler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Shelf Sync started")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
