// Package statuscmder provides the status command for inspecting the local
// .engram directory and a running engram server.
package statuscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/api"
	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/utils"
)

// previewLimit caps how many session fragments are previewed via the API.
const previewLimit = 5

type statusCommander struct {
	apiTarget string
	configDir string
}

const statusLongDesc string = `Show the current engram state.

Reads the local .engram/ directory (or ~/.engram/) to display the config
file, the persisted session, and, when the server is reachable, store and
window statistics plus previews of the most recent session fragments.

Examples:
  engram status`

const statusShortDesc string = "Show engram state"

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.configDir = configDir

			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *statusCommander) run() error {
	manager := dotdir.NewManager()

	target, err := manager.Target(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving engram directory: %w", err)
	}

	fmt.Println()
	if target == "" {
		fmt.Printf("  %s No .engram directory. Run \"engram init\" to create one.\n", cliui.DimStyle.Render("●"))
	} else {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Engram dir: "), cliui.ValueStyle.Render(target))

		configPath := filepath.Join(target, "config.toml")
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Config:     "), cliui.DimStyle.Render(configPath))
	}

	state, err := manager.LoadSessionState(c.configDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	sessionLine := "no session"
	if state != nil {
		sessionLine = fmt.Sprintf("%d fragments", len(state.Hashes))
	}
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Session:    "), cliui.ValueStyle.Render(sessionLine))

	stats, reachable := fetchStats(c.apiTarget)
	if !reachable {
		fmt.Printf("  %s  %s %s\n\n", cliui.KeyStyle.Render("Server:     "),
			cliui.ValueStyle.Render(c.apiTarget),
			cliui.DimStyle.Render("(unreachable)"),
		)
		return nil
	}

	fmt.Printf("  %s  %s %s\n", cliui.KeyStyle.Render("Server:     "),
		cliui.ValueStyle.Render(c.apiTarget),
		cliui.SuccessMark,
	)

	c.printStats(stats)
	c.printSessionPreviews(state)

	fmt.Println()
	return nil
}

func (c *statusCommander) printStats(stats *memory.Stats) {
	if stats == nil {
		return
	}

	fmt.Printf("\n  %s  %s\n", cliui.KeyStyle.Render("Window:     "),
		cliui.ValueStyle.Render(fmt.Sprintf("%d items, %d of %d tokens",
			stats.Window.Items, stats.Window.Tokens, stats.Window.MaxTokens)),
	)

	if stats.Store == nil {
		return
	}

	storeLine := fmt.Sprintf("%d entries, %d references", stats.Store.Entries, stats.Store.References)
	if stats.Store.Releasing > 0 {
		storeLine += fmt.Sprintf(", %d awaiting GC", stats.Store.Releasing)
	}
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Store:      "), cliui.ValueStyle.Render(storeLine))

	for _, tier := range []contentstore.Tier{contentstore.TierHot, contentstore.TierWarm, contentstore.TierCold} {
		ts, ok := stats.Store.Tiers[tier]
		if !ok || ts.Entries == 0 {
			continue
		}
		fmt.Printf("    %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%-5s", string(tier))),
			cliui.DimStyle.Render(fmt.Sprintf("%d entries, %s stored of %s original",
				ts.Entries, formatBytes(ts.StoredBytes), formatBytes(ts.OriginalBytes))),
		)
	}
}

// printSessionPreviews shows the tail of the session with content previews
// fetched from the server.
func (c *statusCommander) printSessionPreviews(state *dotdir.SessionState) {
	if state == nil || len(state.Hashes) == 0 {
		return
	}

	hashes := state.Hashes
	if len(hashes) > previewLimit {
		hashes = hashes[len(hashes)-previewLimit:]
	}

	fmt.Println()
	offset := len(state.Hashes) - len(hashes)
	for i, hash := range hashes {
		entry, err := fetchEntry(c.apiTarget, hash)
		if err != nil {
			fmt.Printf("  %s %s %s\n",
				cliui.DimStyle.Render(fmt.Sprintf("%d.", offset+i+1)),
				cliui.ShortHash(hash),
				cliui.DimStyle.Render("(not in store)"),
			)
			continue
		}

		preview := utils.Truncate(entry.Content, 72)
		fmt.Printf("  %s %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", offset+i+1)),
			cliui.ShortHash(hash),
			cliui.DimStyle.Render("["+entry.ContentType+"]"),
			cliui.PreviewStyle.Render(preview),
		)
	}
}

// fetchStats pings the server's stats endpoint. The bool reports whether the
// server was reachable at all.
func fetchStats(apiTarget string) (*memory.Stats, bool) {
	body, err := getJSON(apiTarget + "/memory/stats")
	if err != nil {
		return nil, false
	}

	var stats memory.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, false
	}

	return &stats, true
}

func fetchEntry(apiTarget, hash string) (*api.EntryResponse, error) {
	body, err := getJSON(apiTarget + "/memory/entries/" + hash)
	if err != nil {
		return nil, err
	}

	var entry api.EntryResponse
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("parsing API response: %w", err)
	}

	return &entry, nil
}

func getJSON(url string) ([]byte, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading API response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
