// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	backfillcmder "github.com/papercomputeco/engram/cmd/engram/backfill"
	configcmder "github.com/papercomputeco/engram/cmd/engram/config"
	eventscmder "github.com/papercomputeco/engram/cmd/engram/events"
	gccmder "github.com/papercomputeco/engram/cmd/engram/gc"
	ingestcmder "github.com/papercomputeco/engram/cmd/engram/ingest"
	initcmder "github.com/papercomputeco/engram/cmd/engram/init"
	recallcmder "github.com/papercomputeco/engram/cmd/engram/recall"
	servecmder "github.com/papercomputeco/engram/cmd/engram/serve"
	statuscmder "github.com/papercomputeco/engram/cmd/engram/status"
	versioncmder "github.com/papercomputeco/engram/cmd/version"
)

const engramLongDesc string = `Engram is working memory for your agents.

Run the server:
  engram init          Create a .engram directory with default config
  engram serve         Run the memory server (HTTP API + MCP)

Feed and query memory:
  engram ingest        Store a fragment and admit it to the window
  engram recall        Assemble context for a query
  engram status        Show window, store, and session state
  engram events        Follow live window admissions and evictions
  engram gc            Run a migration and garbage collection cycle
  engram backfill      Embed entries missing from the vector index`

const engramShortDesc string = "Engram - Agent Working Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Path to the .engram directory (default: nearest .engram)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(recallcmder.NewRecallCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(eventscmder.NewEventsCmd())
	cmd.AddCommand(gccmder.NewGCCmd())
	cmd.AddCommand(backfillcmder.NewBackfillCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
