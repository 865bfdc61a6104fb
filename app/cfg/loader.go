package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath      string `long:"db-path" env:"DB_PATH" default:"./shelf-sync.db" description:"Path to the SQLite database file"`
	CatalogsDir string `long:"catalogs-dir" env:"CATALOGS_DIR" default:"./catalogs" description:"Directory containing catalog configuration files"`

	// HTTP server configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Sync configuration
	BatchSize         int  `long:"batch-size" env:"BATCH_SIZE" default:"10" description:"Number of jobs pulled from the queue per batch"`
	MaxRetries        int  `long:"max-retries" env:"MAX_RETRIES" default:"5" description:"Maximum retry attempts before a job becomes terminal"`
	SyncInterval      int  `long:"sync-interval" env:"SYNC_INTERVAL" default:"900" description:"Periodic sync interval in seconds"`
	CleanupInterval   int  `long:"cleanup-interval" env:"CLEANUP_INTERVAL" default:"3600" description:"Job retention cleanup interval in seconds"`
	JobRetentionHours int  `long:"job-retention-hours" env:"JOB_RETENTION_HOURS" default:"72" description:"Hours finished jobs are kept before cleanup"`
	CacheTTL          int  `long:"cache-ttl" env:"CACHE_TTL" default:"3600" description:"Feed cache freshness window in seconds"`
	WifiOnly          bool `long:"wifi-only" env:"WIFI_ONLY" description:"Only sync on unmetered connections"`

	// Per-domain sync toggles
	SyncProgressDisabled bool `long:"disable-progress-sync" env:"DISABLE_PROGRESS_SYNC" description:"Disable reading progress sync"`
	SyncCatalogsDisabled bool `long:"disable-catalog-sync" env:"DISABLE_CATALOG_SYNC" description:"Disable catalog refresh"`
	SyncFeedsDisabled    bool `long:"disable-feed-sync" env:"DISABLE_FEED_SYNC" description:"Disable feed refresh"`
	SyncNewsDisabled     bool `long:"disable-news-sync" env:"DISABLE_NEWS_SYNC" description:"Disable Nextcloud News sync"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Shelf Sync/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		CatalogsDir:         raw.CatalogsDir,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		BatchSize:           raw.BatchSize,
		MaxRetries:          raw.MaxRetries,
		SyncInterval:        raw.SyncInterval,
		CleanupInterval:     raw.CleanupInterval,
		JobRetentionHours:   raw.JobRetentionHours,
		CacheTTL:            raw.CacheTTL,
		WifiOnly:            raw.WifiOnly,
		SyncProgressEnabled: !raw.SyncProgressDisabled,
		SyncCatalogsEnabled: !raw.SyncCatalogsDisabled,
		SyncFeedsEnabled:    !raw.SyncFeedsDisabled,
		SyncNewsEnabled:     !raw.SyncNewsDisabled,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
