package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigCache loads catalog definitions from a directory of YAML files and
// serves them to the rest of the application. One file per catalog; the
// catalog id is the filename without extension.
type ConfigCache struct {
	catalogsDir string
	cache       map[string]*Config
	mu          sync.RWMutex
}

func NewConfigCache(catalogsDir string) *ConfigCache {
	return &ConfigCache{
		catalogsDir: catalogsDir,
		cache:       make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.catalogsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.catalogsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		fileName := filepath.Base(file)
		catalogID := fileName[:len(fileName)-4] // Remove .yml extension

		config, err := cc.LoadConfig(catalogID)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Catalog configuration loaded", "catalog", catalogID,
			"type", string(config.Type), "enabled", config.Settings.Enabled,
			"refresh_interval", config.Settings.RefreshInterval)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(catalogID string) (*Config, error) {
	configFile := cc.getConfigFilePath(catalogID)
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.ID = catalogID

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.ID] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(catalogID string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[catalogID]
	if !ok {
		return nil, fmt.Errorf("catalog config with id '%s' not found", catalogID)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Settings.RefreshInterval == 0 {
		config.Settings.RefreshInterval = 3600
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = 30
	}
	if config.Settings.KeepItems == 0 {
		config.Settings.KeepItems = 500
	}

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if config.ID == "" {
		return fmt.Errorf("catalog id is required")
	}
	if config.URL == "" {
		return fmt.Errorf("catalog URL is required")
	}
	if _, ok := ParseType(string(config.Type)); !ok {
		return fmt.Errorf("unknown catalog type: %q", string(config.Type))
	}

	nonNegativeFields := map[string]int{
		"refresh interval": config.Settings.RefreshInterval,
		"timeout":          config.Settings.Timeout,
		"keep items":       config.Settings.KeepItems,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if config.Settings.NewsSync && config.Type != TypeNextcloud {
		return fmt.Errorf("news_sync is only supported for nextcloud catalogs")
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(catalogID string) string {
	return filepath.Join(cc.catalogsDir, catalogID+".yml")
}
