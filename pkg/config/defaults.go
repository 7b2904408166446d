package config

const (
	defaultStorageProvider = "sqlite"
	defaultAPIListen       = ":8080"

	defaultClientAPITarget = "http://localhost:8080"

	defaultVectorProvider = "sqlitevec"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultWindowMaxTokens          = 8192
	defaultWindowTaskMultiplier     = 1.0
	defaultWindowMinSimilarity      = 0.3
	defaultWindowRetrievalTimeoutMs = 100

	defaultTierHotMaxAgeDays            = 7
	defaultTierWarmMaxAgeDays           = 30
	defaultTierGracePeriodDays          = 7
	defaultTierMinDailyEntries          = 1
	defaultTierMigrationIntervalMinutes = 60

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "engram.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Window: WindowConfig{
			MaxTokens:          defaultWindowMaxTokens,
			TaskMultiplier:     defaultWindowTaskMultiplier,
			MinSimilarity:      defaultWindowMinSimilarity,
			RetrievalTimeoutMs: defaultWindowRetrievalTimeoutMs,
		},
		Tier: TierConfig{
			HotMaxAgeDays:            defaultTierHotMaxAgeDays,
			WarmMaxAgeDays:           defaultTierWarmMaxAgeDays,
			GracePeriodDays:          defaultTierGracePeriodDays,
			MinDailyEntries:          defaultTierMinDailyEntries,
			MigrationIntervalMinutes: defaultTierMigrationIntervalMinutes,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
