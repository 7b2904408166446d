// Package backfillcmder provides the backfill command for embedding stored
// entries that are missing from the vector index.
package backfillcmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/backfill"
	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/contentstore"
	contentstoreutils "github.com/papercomputeco/engram/pkg/contentstore/utils"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/engram/pkg/embeddings/utils"
	"github.com/papercomputeco/engram/pkg/logger"
	vectorutils "github.com/papercomputeco/engram/pkg/vector/utils"
)

const backfillLongDesc string = `Embed stored entries that are missing from the vector index.

Entries ingested while the vector store was disabled, or before an index was
provisioned, have no embeddings and never surface in historical retrieval.
Backfill walks the content store, embeds every entry the index does not know
about, and indexes the result. Re-running is safe; entries that already have
an embedding are left alone.

Operates directly on the configured stores, so stop the server first when
they live on local files. Requires persistent content and vector stores;
--dry-run additionally works without a reachable embedding provider.

Examples:
  engram backfill
  engram backfill --dry-run
  engram backfill --sqlite ./archive/engram.sqlite`

const backfillShortDesc string = "Embed entries missing from the vector index"

type backfillCommander struct {
	sqlitePath string
	dryRun     bool
	configDir  string
	debug      bool
}

func NewBackfillCmd() *cobra.Command {
	cmder := &backfillCommander{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: backfillShortDesc,
		Long:  backfillLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the content store SQLite database")
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Report what would be embedded without writing")

	return cmd
}

func (c *backfillCommander) run(ctx context.Context) error {
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
		return fmt.Errorf("content store provider %q is not persistent; there is nothing to backfill outside the server process", cfg.Storage.Provider)
	}
	if cfg.VectorStore.Provider == "" || cfg.VectorStore.Provider == "inmemory" || cfg.VectorStore.Provider == "none" {
		return fmt.Errorf("vector store provider %q is not persistent; backfill needs a shared index (sqlitevec, qdrant)", cfg.VectorStore.Provider)
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

	var embedder embeddings.Embedder
	if !c.dryRun {
		embedder, err = embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: cfg.Embedding.Provider,
			TargetURL:    cfg.Embedding.Target,
			Model:        cfg.Embedding.Model,
		})
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		defer embedder.Close()
	}

	backfiller, err := backfill.NewBackfiller(store, vectors, embedder, backfill.Options{
		DryRun: c.dryRun,
		Logger: zapLogger,
	})
	if err != nil {
		return fmt.Errorf("creating backfiller: %w", err)
	}

	var result *backfill.Result
	err = cliui.Step(os.Stdout, "backfilling embeddings", func() error {
		var stepErr error
		result, stepErr = backfiller.Run(ctx)
		return stepErr
	})
	if err != nil {
		return err
	}

	printResult(result, c.dryRun)
	return nil
}

func printResult(result *backfill.Result, dryRun bool) {
	if result == nil {
		return
	}

	embeddedKey := "embedded:   "
	if dryRun {
		embeddedKey = "would embed:"
	}

	fmt.Println()
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("scanned:    "), cliui.ValueStyle.Render(fmt.Sprintf("%d entries", result.Scanned)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render(embeddedKey), cliui.ValueStyle.Render(fmt.Sprintf("%d entries", result.Embedded)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("indexed:    "), cliui.ValueStyle.Render(fmt.Sprintf("%d already current", result.Indexed)))
	if result.Skipped > 0 {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("skipped:    "), cliui.ValueStyle.Render(fmt.Sprintf("%d entries", result.Skipped)))
	}
	if result.Failed > 0 {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("failed:     "), cliui.ValueStyle.Render(fmt.Sprintf("%d entries", result.Failed)))
	}
	fmt.Printf("  %s  %s\n\n", cliui.KeyStyle.Render("duration:   "), cliui.ValueStyle.Render(cliui.FormatDuration(result.Duration)))
}
