// Package recallcmder provides the recall command for assembling query-aware
// context from a running engram server.
package recallcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/api"
	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/logger"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	queryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type recallCommander struct {
	query  string
	budget int
	render bool
	quiet  bool

	apiTarget string

	debug  bool
	logger *slog.Logger
}

const recallLongDesc string = `Assemble context for a query from a running engram server.

Merges the most relevant historical fragments from the embedding index with
the recent working-memory window, under one token budget. Requires a running
engram server; historical retrieval additionally needs a configured vector
store and embedder, without them the context is recent-only.

Use --quiet to print only the raw context, which is what you want when
piping into a prompt. Use --render to pretty-print markdown content.

Examples:
  engram recall "how did we fix the flaky migration test"
  engram recall "database schema" --budget 2000
  engram recall "open questions" --render
  engram recall "deploy checklist" --quiet | llm prompt`

const recallShortDesc string = "Assemble context for a query"

func NewRecallCmd() *cobra.Command {
	cmder := &recallCommander{}

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: recallShortDesc,
		Long:  recallLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
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
			if !cmd.Flags().Changed("budget") {
				cmder.budget = int(cfg.Window.MaxTokens)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVarP(&cmder.budget, "budget", "b", int(defaults.Window.MaxTokens), "Token budget for the assembled context")
	cmd.Flags().BoolVar(&cmder.render, "render", false, "Render the context as markdown")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only the raw context (for piping)")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *recallCommander) run() error {
	c.logger = logger.New(logger.WithPretty(true), logger.WithDebug(c.debug), logger.WithWriter(os.Stderr))
	c.logger.Debug("recalling context", "api", c.apiTarget, "budget", c.budget)

	output, err := RecallAPI(c.apiTarget, c.query, c.budget)
	if err != nil {
		return err
	}

	if c.quiet {
		if output.Context != "" {
			fmt.Println(output.Context)
		}
		return nil
	}

	if output.Context == "" {
		fmt.Println("No context recalled.")
		return nil
	}

	fmt.Printf("\n%s %s\n\n",
		headerStyle.Render("Recalled context for:"),
		queryStyle.Render(fmt.Sprintf("%q", output.Query)),
	)

	body := output.Context
	if c.render {
		rendered, err := cliui.RenderMarkdown(body)
		if err == nil {
			body = rendered
		}
	}
	fmt.Println(body)

	fmt.Printf("%s\n", dimStyle.Render(fmt.Sprintf("%d tokens of %d budget", output.TokenCount, output.TokenBudget)))

	return nil
}

// RecallAPI calls the engram recall endpoint and returns the parsed output.
// Exported so other commands can reuse it.
func RecallAPI(apiTarget, query string, budget int) (*api.RecallResponse, error) {
	recallURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	recallURL.Path = "/v1/recall"
	q := recallURL.Query()
	q.Set("query", query)
	if budget > 0 {
		q.Set("budget", strconv.Itoa(budget))
	}
	recallURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, recallURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating recall request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engram API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recall request failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var output api.RecallResponse
	if err := json.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("failed to parse recall response: %w", err)
	}

	return &output, nil
}
