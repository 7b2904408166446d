// Package gccmder provides the gc command for running a tier migration and
// garbage collection cycle directly against the configured content store.
package gccmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/contentstore"
	contentstoreutils "github.com/papercomputeco/engram/pkg/contentstore/utils"
	"github.com/papercomputeco/engram/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/engram/pkg/embeddings/utils"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/tier"
	vectorutils "github.com/papercomputeco/engram/pkg/vector/utils"
)

const gcLongDesc string = `Run one tier migration and garbage collection cycle.

Ages hot entries into the warm tier, warm entries into the cold tier, and
deletes released entries whose grace period has passed. Operates directly on
the configured content store, so use it for offline maintenance; a running
server migrates on its own schedule.

Requires a persistent content store (sqlite, postgres, libsql). An in-memory
store has nothing to collect outside the server process.

Examples:
  engram gc
  engram gc --sqlite ./archive/engram.sqlite`

const gcShortDesc string = "Run a migration and garbage collection cycle"

type gcCommander struct {
	sqlitePath string
	configDir  string
	debug      bool
}

func NewGCCmd() *cobra.Command {
	cmder := &gcCommander{}

	cmd := &cobra.Command{
		Use:   "gc",
		Short: gcShortDesc,
		Long:  gcLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the content store SQLite database")

	return cmd
}

func (c *gcCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	zapLogger := logger.NewLogger(c.debug)
	defer func() { _ = zapLogger.Sync() }()

	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sqlitePath := c.sqlitePath
	if sqlitePath == "" {
		sqlitePath = cfg.Storage.SQLitePath
	}
	if sqlitePath == "" {
		target, err := dotdir.NewManager().Target(c.configDir)
		if err != nil {
			return fmt.Errorf("resolving engram directory: %w", err)
		}
		if target != "" {
			sqlitePath = filepath.Join(target, "engram.sqlite")
		}
	}

	if cfg.Storage.Provider == "inmemory" || cfg.Storage.Provider == "" {
		return fmt.Errorf("content store provider %q is not persistent; a running server collects its own garbage", cfg.Storage.Provider)
	}

	driver, err := contentstoreutils.NewDriver(ctx, &contentstoreutils.NewDriverOpts{
		DriverType: cfg.Storage.Provider,
		Path:       sqlitePath,
		ConnStr:    cfg.Storage.ConnStr,
	})
	if err != nil {
		return fmt.Errorf("creating content store driver: %w", err)
	}
	defer driver.Close()

	store, err := contentstore.New(contentstore.Config{
		Driver: driver,
		Logger: zapLogger,
	})
	if err != nil {
		return fmt.Errorf("creating content store: %w", err)
	}

	tierCfg := tier.Config{
		Store:           store,
		Logger:          zapLogger,
		HotMaxAge:       time.Duration(cfg.Tier.HotMaxAgeDays) * 24 * time.Hour,
		WarmMaxAge:      time.Duration(cfg.Tier.WarmMaxAgeDays) * 24 * time.Hour,
		HotMaxBytes:     cfg.Tier.HotMaxBytes,
		WarmMaxBytes:    cfg.Tier.WarmMaxBytes,
		GracePeriod:     time.Duration(cfg.Tier.GracePeriodDays) * 24 * time.Hour,
		MinDailyEntries: int(cfg.Tier.MinDailyEntries),
	}

	// Re-indexing and index deletions only happen when the vector store is
	// shared on disk or over the network; skip wiring otherwise.
	if cfg.VectorStore.Provider != "" && cfg.VectorStore.Provider != "inmemory" && cfg.VectorStore.Provider != "none" {
		dbPath := cfg.VectorStore.DBPath
		if dbPath == "" {
			dbPath = sqlitePath
		}

		vectors, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
			ProviderType: cfg.VectorStore.Provider,
			DBPath:       dbPath,
			Host:         cfg.VectorStore.Host,
			Port:         int(cfg.VectorStore.Port),
			Collection:   cfg.VectorStore.Collection,
			Dimensions:   cfg.Embedding.Dimensions,
			Logger:       zapLogger,
		})
		if err != nil {
			return fmt.Errorf("creating vector driver: %w", err)
		}
		defer vectors.Close()
		tierCfg.Vectors = vectors

		embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: cfg.Embedding.Provider,
			TargetURL:    cfg.Embedding.Target,
			Model:        cfg.Embedding.Model,
		})
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		defer embedder.Close()
		tierCfg.Embedder = embedder
	}

	manager, err := tier.NewManager(tierCfg)
	if err != nil {
		return fmt.Errorf("creating tier manager: %w", err)
	}

	var stats *tier.MigrationStats
	err = cliui.Step(os.Stdout, "running migration cycle", func() error {
		var stepErr error
		stats, stepErr = manager.RunMigrationCycle(ctx)
		return stepErr
	})
	if err != nil {
		return err
	}

	printCycleStats(stats)
	return nil
}

func printCycleStats(stats *tier.MigrationStats) {
	if stats == nil {
		return
	}

	fmt.Println()
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("hot -> warm: "), cliui.ValueStyle.Render(fmt.Sprintf("%d entries", stats.HotToWarm)))

	warmLine := fmt.Sprintf("%d entries", stats.WarmToCold)
	if stats.Reindexed > 0 {
		warmLine += fmt.Sprintf(" (%d re-indexed)", stats.Reindexed)
	}
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("warm -> cold:"), cliui.ValueStyle.Render(warmLine))

	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("collected:   "), cliui.ValueStyle.Render(fmt.Sprintf("%d entries", stats.Deleted)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("reclaimed:   "), cliui.ValueStyle.Render(fmt.Sprintf("%d bytes", stats.BytesReclaimed)))
	fmt.Printf("  %s  %s\n\n", cliui.KeyStyle.Render("duration:    "), cliui.ValueStyle.Render(cliui.FormatDuration(stats.Duration)))
}
