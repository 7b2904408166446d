// Package configcmder provides the config command for managing persistent
// engram configuration stored in the .engram/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent engram configuration.

Configuration is stored as config.toml in the .engram/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.sqlite_path, storage.conn_str,
  api.listen, client.api_target,
  vector_store.provider, vector_store.db_path, vector_store.host,
  vector_store.port, vector_store.collection,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  window.max_tokens, window.max_items, window.task_multiplier,
  window.min_similarity, window.retrieval_timeout_ms,
  tier.hot_max_age_days, tier.warm_max_age_days, tier.hot_max_bytes,
  tier.warm_max_bytes, tier.grace_period_days, tier.min_daily_entries,
  tier.migration_interval_minutes,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  engram config set <key> <value>    Set a configuration value
  engram config get <key>            Get a configuration value
  engram config list                 List all configuration values

Examples:
  engram config set window.max_tokens 16384
  engram config set embedding.model embeddinggemma
  engram config get storage.provider
  engram config list`

const configShortDesc string = "Manage persistent engram configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
