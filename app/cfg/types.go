package cfg

type Cfg struct {
	// Storage configuration
	DBPath      string
	CatalogsDir string

	// HTTP server configuration
	Port         string
	APIAccessKey string

	// Sync configuration
	BatchSize         int
	MaxRetries        int
	SyncInterval      int // seconds
	CleanupInterval   int // seconds
	JobRetentionHours int
	CacheTTL          int // seconds
	WifiOnly          bool

	// Per-domain sync toggles
	SyncProgressEnabled bool
	SyncCatalogsEnabled bool
	SyncFeedsEnabled    bool
	SyncNewsEnabled     bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
