// Package servecmder provides the serve command for running the engram server.
package servecmder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/api"
	"github.com/papercomputeco/engram/api/mcp"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/contentstore"
	contentstoreutils "github.com/papercomputeco/engram/pkg/contentstore/utils"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/engram/pkg/embeddings/utils"
	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/eventstream/kafka"
	"github.com/papercomputeco/engram/pkg/eventstream/nop"
	"github.com/papercomputeco/engram/pkg/git"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/vector"
	vectorutils "github.com/papercomputeco/engram/pkg/vector/utils"
)

const serveLongDesc string = `Run the engram server.

Serves the HTTP API and, unless disabled, the MCP endpoint at /mcp from one
shared memory engine. On startup the previous session's context window is
restored from .engram/session.json; on shutdown the current window is
written back so the next run picks up where this one left off.

Settings resolve in order: flags, then ENGRAM_* environment variables, then
.engram/config.toml, then defaults. Set vector_store.provider to "none" to
run without embeddings; recall degrades to recent-only context.

Examples:
  engram serve
  engram serve --listen :9090
  engram serve --storage-provider postgres --conn-str postgres://localhost:5432/engram
  engram serve --vector-store-provider none
  ENGRAM_WINDOW_MAX_TOKENS=16384 engram serve`

const serveShortDesc string = "Run the engram server"

// serveFlagKeys are the registry flags serve binds into viper.
var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageProv,
	config.FlagSQLite,
	config.FlagConnStr,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreDB,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagWindowTokens,
	config.FlagEventsProvider,
}

type ServeCommander struct {
	// Flag storage. After PreRunE the resolved cfg is authoritative; these
	// only exist so cobra has somewhere to parse into.
	listen            string
	storageProvider   string
	sqlitePath        string
	connStr           string
	vectorProvider    string
	vectorDBPath      string
	embeddingProvider string
	embeddingTarget   string
	embeddingModel    string
	embeddingDims     uint
	windowTokens      uint
	eventsProvider    string

	mcpEnabled bool
	noRestore  bool
	debug      bool
	configDir  string

	cfg    *config.Config
	logger *zap.Logger
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlagKeys)

			cmder.cfg = resolveEffective(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProv, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagConnStr, &cmder.connStr)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreDB, &cmder.vectorDBPath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddUintFlag(cmd, config.Flags, config.FlagWindowTokens, &cmder.windowTokens)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &cmder.eventsProvider)

	cmd.Flags().BoolVar(&cmder.mcpEnabled, "mcp", true, "Mount the MCP server at /mcp")
	cmd.Flags().BoolVar(&cmder.noRestore, "no-restore", false, "Skip restoring the previous session's window")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ddm := dotdir.NewManager()
	dataDir, err := ddm.Target(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving engram dir: %w", err)
	}
	if dataDir == "" {
		if dataDir, err = ddm.Ensure(c.configDir); err != nil {
			return fmt.Errorf("creating engram dir: %w", err)
		}
	}

	source := eventstream.EventSource{
		Session: uuid.NewString(),
		Project: projectName(dataDir),
	}

	logFile, err := os.OpenFile(filepath.Join(dataDir, "serve.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	c.logger = logger.NewLoggerWithWriters(c.debug, os.Stdout, logFile)
	defer func() { _ = c.logger.Sync() }()

	// Paths left empty in the config land next to the session file.
	defaultDBFile := filepath.Join(dataDir, "engram.sqlite")
	sqlitePath := c.cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = defaultDBFile
	}

	driver, err := contentstoreutils.NewDriver(ctx, &contentstoreutils.NewDriverOpts{
		DriverType: c.cfg.Storage.Provider,
		Path:       sqlitePath,
		ConnStr:    c.cfg.Storage.ConnStr,
	})
	if err != nil {
		return fmt.Errorf("creating content store driver: %w", err)
	}
	defer driver.Close()

	store, err := contentstore.New(contentstore.Config{
		Driver: driver,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating content store: %w", err)
	}

	var vectors vector.Driver
	var embedder embeddings.Embedder
	if c.cfg.VectorStore.Provider != "none" {
		dbPath := c.cfg.VectorStore.DBPath
		if dbPath == "" {
			dbPath = defaultDBFile
		}

		vectors, err = vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
			ProviderType: c.cfg.VectorStore.Provider,
			DBPath:       dbPath,
			Host:         c.cfg.VectorStore.Host,
			Port:         int(c.cfg.VectorStore.Port),
			Collection:   c.cfg.VectorStore.Collection,
			Dimensions:   c.cfg.Embedding.Dimensions,
			Logger:       c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating vector driver: %w", err)
		}
		defer vectors.Close()

		embedder, err = embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: c.cfg.Embedding.Provider,
			TargetURL:    c.cfg.Embedding.Target,
			Model:        c.cfg.Embedding.Model,
		})
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		defer embedder.Close()
	} else {
		c.logger.Info("vector retrieval disabled, context assembly is recent-only")
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}

	engine, err := memory.New(memory.Config{
		Store:            store,
		Vectors:          vectors,
		Embedder:         embedder,
		Publisher:        publisher,
		Source:           source,
		Logger:           c.logger,
		MaxWindowTokens:  int(c.cfg.Window.MaxTokens),
		MaxWindowItems:   int(c.cfg.Window.MaxItems),
		TaskMultiplier:   c.cfg.Window.TaskMultiplier,
		MinSimilarity:    c.cfg.Window.MinSimilarity,
		RetrievalTimeout: time.Duration(c.cfg.Window.RetrievalTimeoutMs) * time.Millisecond,
		HotMaxAge:        time.Duration(c.cfg.Tier.HotMaxAgeDays) * 24 * time.Hour,
		WarmMaxAge:       time.Duration(c.cfg.Tier.WarmMaxAgeDays) * 24 * time.Hour,
		HotMaxBytes:      c.cfg.Tier.HotMaxBytes,
		WarmMaxBytes:     c.cfg.Tier.WarmMaxBytes,
		GracePeriod:      time.Duration(c.cfg.Tier.GracePeriodDays) * 24 * time.Hour,
		MinDailyEntries:  int(c.cfg.Tier.MinDailyEntries),
	})
	if err != nil {
		return fmt.Errorf("creating memory engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	if !c.noRestore {
		state, err := ddm.LoadSessionState(c.configDir)
		if err != nil {
			c.logger.Warn("could not load session state", zap.Error(err))
		} else if state != nil && len(state.Hashes) > 0 {
			engine.Restore(ctx, state.Hashes)
		}
	}

	engine.StartMigrations(time.Duration(c.cfg.Tier.MigrationIntervalMinutes) * time.Minute)

	var mcpHandler http.Handler
	if c.mcpEnabled {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Engine: engine,
			Logger: c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		mcpHandler = mcpServer.Handler()
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		MCP:        mcpHandler,
	}, engine, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Pick up window.max_tokens edits without a restart.
	if cfger, err := config.NewConfiger(c.configDir); err == nil {
		stop, watchErr := cfger.Watch(func(next *config.Config) {
			if next.Window.MaxTokens > 0 {
				engine.SetBaseBudget(int(next.Window.MaxTokens))
			}
		})
		if watchErr != nil {
			c.logger.Debug("config watch disabled", zap.Error(watchErr))
		} else {
			defer stop()
		}
	}

	errChan := make(chan error, 1)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		c.saveSession(ddm, engine)
		return apiServer.Shutdown()
	}
}

func (c *ServeCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.cfg.Events.Provider {
	case "kafka":
		return kafka.NewPublisher(&kafka.Config{
			Brokers: c.cfg.Events.Brokers,
			Topic:   c.cfg.Events.Topic,
			Logger:  c.logger,
		})
	case "nop", "":
		return nop.NewPublisher(), nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.cfg.Events.Provider)
	}
}

func (c *ServeCommander) saveSession(ddm *dotdir.Manager, engine *memory.Engine) {
	hashes := engine.WindowHashes()
	if len(hashes) == 0 {
		// An empty window means there is nothing to restore; drop any
		// stale session file so the next start does not resurrect it.
		if err := ddm.ClearSession(c.configDir); err != nil {
			c.logger.Warn("could not clear session state", zap.Error(err))
		}
		return
	}

	state := &dotdir.SessionState{Hashes: hashes}
	if err := ddm.SaveSession(c.configDir, state); err != nil {
		c.logger.Warn("could not save session state", zap.Error(err))
	}
}

// projectName attributes published events to the project that owns the
// engram directory. A home-directory .engram stays unattributed.
func projectName(dataDir string) string {
	parent := filepath.Dir(dataDir)
	if home, err := os.UserHomeDir(); err == nil && parent == home {
		return ""
	}
	return git.RepoName(parent)
}

// resolveEffective reads every config key out of viper so flags, environment
// variables, the config file, and defaults collapse into one Config.
func resolveEffective(v *viper.Viper) *config.Config {
	return &config.Config{
		Version: v.GetInt("version"),
		Storage: config.StorageConfig{
			Provider:   v.GetString("storage.provider"),
			SQLitePath: v.GetString("storage.sqlite_path"),
			ConnStr:    v.GetString("storage.conn_str"),
		},
		API: config.APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: config.ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
		VectorStore: config.VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			DBPath:     v.GetString("vector_store.db_path"),
			Host:       v.GetString("vector_store.host"),
			Port:       v.GetUint("vector_store.port"),
			Collection: v.GetString("vector_store.collection"),
		},
		Embedding: config.EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		Window: config.WindowConfig{
			MaxTokens:          v.GetUint("window.max_tokens"),
			MaxItems:           v.GetUint("window.max_items"),
			TaskMultiplier:     v.GetFloat64("window.task_multiplier"),
			MinSimilarity:      v.GetFloat64("window.min_similarity"),
			RetrievalTimeoutMs: v.GetUint("window.retrieval_timeout_ms"),
		},
		Tier: config.TierConfig{
			HotMaxAgeDays:            v.GetUint("tier.hot_max_age_days"),
			WarmMaxAgeDays:           v.GetUint("tier.warm_max_age_days"),
			HotMaxBytes:              v.GetInt64("tier.hot_max_bytes"),
			WarmMaxBytes:             v.GetInt64("tier.warm_max_bytes"),
			GracePeriodDays:          v.GetUint("tier.grace_period_days"),
			MinDailyEntries:          v.GetUint("tier.min_daily_entries"),
			MigrationIntervalMinutes: v.GetUint("tier.migration_interval_minutes"),
		},
		Events: config.EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetStringSlice("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
	}
}
