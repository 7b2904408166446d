package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Window      WindowConfig      `toml:"window"`
	Tier        TierConfig        `toml:"tier"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig holds content store settings.
type StorageConfig struct {
	Provider   string `toml:"provider,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
	ConnStr    string `toml:"conn_str,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// engram server (e.g. engram recall, engram status). Values are full URLs
// (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	DBPath     string `toml:"db_path,omitempty"`
	Host       string `toml:"host,omitempty"`
	Port       uint   `toml:"port,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// WindowConfig holds working-memory window settings.
type WindowConfig struct {
	MaxTokens          uint    `toml:"max_tokens,omitempty"`
	MaxItems           uint    `toml:"max_items,omitempty"`
	TaskMultiplier     float64 `toml:"task_multiplier,omitempty"`
	MinSimilarity      float64 `toml:"min_similarity,omitempty"`
	RetrievalTimeoutMs uint    `toml:"retrieval_timeout_ms,omitempty"`
}

// TierConfig holds tiered storage and garbage collection settings.
type TierConfig struct {
	HotMaxAgeDays            uint  `toml:"hot_max_age_days,omitempty"`
	WarmMaxAgeDays           uint  `toml:"warm_max_age_days,omitempty"`
	HotMaxBytes              int64 `toml:"hot_max_bytes,omitempty"`
	WarmMaxBytes             int64 `toml:"warm_max_bytes,omitempty"`
	GracePeriodDays          uint  `toml:"grace_period_days,omitempty"`
	MinDailyEntries          uint  `toml:"min_daily_entries,omitempty"`
	MigrationIntervalMinutes uint  `toml:"migration_interval_minutes,omitempty"`
}

// EventsConfig holds event stream publisher settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// formatUint renders a uint for display, treating zero as unset.
func formatUint(v uint) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(v), 10)
}

func parseUintValue(key, v string) (uint, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return uint(n), nil
}

// formatInt renders an int64 for display, treating zero as unset.
func formatInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

func parseIntValue(key, v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

// formatFloat renders a float64 for display, treating zero as unset.
func formatFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloatValue(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return f, nil
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty elements.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.conn_str": {
		get: func(c *Config) string { return c.Storage.ConnStr },
		set: func(c *Config, v string) error { c.Storage.ConnStr = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.db_path": {
		get: func(c *Config) string { return c.VectorStore.DBPath },
		set: func(c *Config, v string) error { c.VectorStore.DBPath = v; return nil },
	},
	"vector_store.host": {
		get: func(c *Config) string { return c.VectorStore.Host },
		set: func(c *Config, v string) error { c.VectorStore.Host = v; return nil },
	},
	"vector_store.port": {
		get: func(c *Config) string { return formatUint(c.VectorStore.Port) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("vector_store.port", v)
			if err != nil {
				return err
			}
			c.VectorStore.Port = n
			return nil
		},
	},
	"vector_store.collection": {
		get: func(c *Config) string { return c.VectorStore.Collection },
		set: func(c *Config, v string) error { c.VectorStore.Collection = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string { return formatUint(c.Embedding.Dimensions) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("embedding.dimensions", v)
			if err != nil {
				return err
			}
			c.Embedding.Dimensions = n
			return nil
		},
	},
	"window.max_tokens": {
		get: func(c *Config) string { return formatUint(c.Window.MaxTokens) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("window.max_tokens", v)
			if err != nil {
				return err
			}
			c.Window.MaxTokens = n
			return nil
		},
	},
	"window.max_items": {
		get: func(c *Config) string { return formatUint(c.Window.MaxItems) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("window.max_items", v)
			if err != nil {
				return err
			}
			c.Window.MaxItems = n
			return nil
		},
	},
	"window.task_multiplier": {
		get: func(c *Config) string { return formatFloat(c.Window.TaskMultiplier) },
		set: func(c *Config, v string) error {
			f, err := parseFloatValue("window.task_multiplier", v)
			if err != nil {
				return err
			}
			c.Window.TaskMultiplier = f
			return nil
		},
	},
	"window.min_similarity": {
		get: func(c *Config) string { return formatFloat(c.Window.MinSimilarity) },
		set: func(c *Config, v string) error {
			f, err := parseFloatValue("window.min_similarity", v)
			if err != nil {
				return err
			}
			c.Window.MinSimilarity = f
			return nil
		},
	},
	"window.retrieval_timeout_ms": {
		get: func(c *Config) string { return formatUint(c.Window.RetrievalTimeoutMs) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("window.retrieval_timeout_ms", v)
			if err != nil {
				return err
			}
			c.Window.RetrievalTimeoutMs = n
			return nil
		},
	},
	"tier.hot_max_age_days": {
		get: func(c *Config) string { return formatUint(c.Tier.HotMaxAgeDays) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("tier.hot_max_age_days", v)
			if err != nil {
				return err
			}
			c.Tier.HotMaxAgeDays = n
			return nil
		},
	},
	"tier.warm_max_age_days": {
		get: func(c *Config) string { return formatUint(c.Tier.WarmMaxAgeDays) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("tier.warm_max_age_days", v)
			if err != nil {
				return err
			}
			c.Tier.WarmMaxAgeDays = n
			return nil
		},
	},
	"tier.hot_max_bytes": {
		get: func(c *Config) string { return formatInt(c.Tier.HotMaxBytes) },
		set: func(c *Config, v string) error {
			n, err := parseIntValue("tier.hot_max_bytes", v)
			if err != nil {
				return err
			}
			c.Tier.HotMaxBytes = n
			return nil
		},
	},
	"tier.warm_max_bytes": {
		get: func(c *Config) string { return formatInt(c.Tier.WarmMaxBytes) },
		set: func(c *Config, v string) error {
			n, err := parseIntValue("tier.warm_max_bytes", v)
			if err != nil {
				return err
			}
			c.Tier.WarmMaxBytes = n
			return nil
		},
	},
	"tier.grace_period_days": {
		get: func(c *Config) string { return formatUint(c.Tier.GracePeriodDays) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("tier.grace_period_days", v)
			if err != nil {
				return err
			}
			c.Tier.GracePeriodDays = n
			return nil
		},
	},
	"tier.min_daily_entries": {
		get: func(c *Config) string { return formatUint(c.Tier.MinDailyEntries) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("tier.min_daily_entries", v)
			if err != nil {
				return err
			}
			c.Tier.MinDailyEntries = n
			return nil
		},
	},
	"tier.migration_interval_minutes": {
		get: func(c *Config) string { return formatUint(c.Tier.MigrationIntervalMinutes) },
		set: func(c *Config, v string) error {
			n, err := parseUintValue("tier.migration_interval_minutes", v)
			if err != nil {
				return err
			}
			c.Tier.MigrationIntervalMinutes = n
			return nil
		},
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error { c.Events.Brokers = splitList(v); return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
