package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/engram/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .engram/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}

	// Return in a stable, logical order matching the TOML section layout.
	ordered := []string{
		"storage.provider",
		"storage.sqlite_path",
		"storage.conn_str",
		"api.listen",
		"client.api_target",
		"vector_store.provider",
		"vector_store.db_path",
		"vector_store.host",
		"vector_store.port",
		"vector_store.collection",
		"embedding.provider",
		"embedding.target",
		"embedding.model",
		"embedding.dimensions",
		"window.max_tokens",
		"window.max_items",
		"window.task_multiplier",
		"window.min_similarity",
		"window.retrieval_timeout_ms",
		"tier.hot_max_age_days",
		"tier.warm_max_age_days",
		"tier.hot_max_bytes",
		"tier.warm_max_bytes",
		"tier.grace_period_days",
		"tier.min_daily_entries",
		"tier.migration_interval_minutes",
		"events.provider",
		"events.brokers",
		"events.topic",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .engram/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config with sane defaults. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = defaults.Storage.Provider
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Client.APITarget == "" {
		cfg.Client.APITarget = defaults.Client.APITarget
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = defaults.VectorStore.Provider
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = defaults.Embedding.Provider
	}
	if cfg.Embedding.Target == "" {
		cfg.Embedding.Target = defaults.Embedding.Target
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.Embedding.Model
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = defaults.Embedding.Dimensions
	}

	if cfg.Window.MaxTokens == 0 {
		cfg.Window.MaxTokens = defaults.Window.MaxTokens
	}
	if cfg.Window.TaskMultiplier == 0 {
		cfg.Window.TaskMultiplier = defaults.Window.TaskMultiplier
	}
	if cfg.Window.MinSimilarity == 0 {
		cfg.Window.MinSimilarity = defaults.Window.MinSimilarity
	}
	if cfg.Window.RetrievalTimeoutMs == 0 {
		cfg.Window.RetrievalTimeoutMs = defaults.Window.RetrievalTimeoutMs
	}

	if cfg.Tier.HotMaxAgeDays == 0 {
		cfg.Tier.HotMaxAgeDays = defaults.Tier.HotMaxAgeDays
	}
	if cfg.Tier.WarmMaxAgeDays == 0 {
		cfg.Tier.WarmMaxAgeDays = defaults.Tier.WarmMaxAgeDays
	}
	if cfg.Tier.GracePeriodDays == 0 {
		cfg.Tier.GracePeriodDays = defaults.Tier.GracePeriodDays
	}
	if cfg.Tier.MinDailyEntries == 0 {
		cfg.Tier.MinDailyEntries = defaults.Tier.MinDailyEntries
	}
	if cfg.Tier.MigrationIntervalMinutes == 0 {
		cfg.Tier.MigrationIntervalMinutes = defaults.Tier.MigrationIntervalMinutes
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target .engram/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with sane defaults for the named deployment preset.
// Supported presets: "local", "sqlite", "server".
// Returns an error if the preset name is not recognized.
func PresetConfig(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "local":
		// Everything in process, nothing touches disk or network except
		// the embedding provider.
		return &Config{
			Version: CurrentV,
			Storage: StorageConfig{
				Provider: "inmemory",
			},
			API: APIConfig{
				Listen: ":8080",
			},
			Client: ClientConfig{
				APITarget: "http://localhost:8080",
			},
			VectorStore: VectorStoreConfig{
				Provider: "inmemory",
			},
			Embedding: EmbeddingConfig{
				Provider:   "ollama",
				Target:     "http://localhost:11434",
				Model:      "embeddinggemma",
				Dimensions: 768,
			},
			Events: EventsConfig{
				Provider: "nop",
			},
		}, nil

	case "sqlite":
		// Single-machine persistence. Paths left empty resolve to files
		// inside the .engram/ directory at startup.
		return &Config{
			Version: CurrentV,
			Storage: StorageConfig{
				Provider: "sqlite",
			},
			API: APIConfig{
				Listen: ":8080",
			},
			Client: ClientConfig{
				APITarget: "http://localhost:8080",
			},
			VectorStore: VectorStoreConfig{
				Provider: "sqlitevec",
			},
			Embedding: EmbeddingConfig{
				Provider:   "ollama",
				Target:     "http://localhost:11434",
				Model:      "embeddinggemma",
				Dimensions: 768,
			},
			Events: EventsConfig{
				Provider: "nop",
			},
		}, nil

	case "server":
		return &Config{
			Version: CurrentV,
			Storage: StorageConfig{
				Provider: "postgres",
				ConnStr:  "postgres://localhost:5432/engram?sslmode=disable",
			},
			API: APIConfig{
				Listen: ":8080",
			},
			Client: ClientConfig{
				APITarget: "http://localhost:8080",
			},
			VectorStore: VectorStoreConfig{
				Provider:   "qdrant",
				Host:       "localhost",
				Port:       6334,
				Collection: "engram",
			},
			Embedding: EmbeddingConfig{
				Provider:   "ollama",
				Target:     "http://localhost:11434",
				Model:      "embeddinggemma",
				Dimensions: 768,
			},
			Events: EventsConfig{
				Provider: "kafka",
				Brokers:  []string{"localhost:9092"},
				Topic:    "engram.events",
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: local, sqlite, server)", name)
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"local", "sqlite", "server"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
