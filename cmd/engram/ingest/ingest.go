// Package ingestcmder provides the ingest command for feeding fragments to a
// running engram server.
package ingestcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/api"
	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/logger"
)

type ingestCommander struct {
	contentType string
	tags        []string
	file        string

	apiTarget string
	configDir string

	debug  bool
	logger *slog.Logger
}

const ingestLongDesc string = `Ingest a fragment into the working memory of a running engram server.

The fragment content comes from the argument, from --file, or from stdin
when the argument is "-". Identical content deduplicates server-side; the
printed hash addresses the stored entry either way.

The ingested hash is appended to the session state in the .engram/
directory so that a restarted server can rebuild its context window.

Examples:
  engram ingest "the auth service listens on port 9443"
  engram ingest --tag user-marked "always run migrations before deploys"
  engram ingest --type file-snapshot --file main.go
  git diff | engram ingest --type file-snapshot --tag code -`

const ingestShortDesc string = "Ingest a fragment into working memory"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest [content]",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MaximumNArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			// A file snapshot is almost never a conversational turn; pick the
			// better default when --file is used without an explicit --type.
			if cmder.file != "" && !cmd.Flags().Changed("type") {
				cmder.contentType = "file-snapshot"
			}

			return cmder.run(args)
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.contentType, "type", "t", "conversational-turn", "Content type (conversational-turn, file-snapshot, environment-state, derived-summary)")
	cmd.Flags().StringArrayVar(&cmder.tags, "tag", nil, "Importance tag (user-marked, error, code, question); repeatable")
	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "Read fragment content from a file")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *ingestCommander) run(args []string) error {
	c.logger = logger.New(logger.WithPretty(true), logger.WithDebug(c.debug), logger.WithWriter(os.Stderr))

	content, err := c.readContent(args)
	if err != nil {
		return err
	}
	if len(content) == 0 {
		return fmt.Errorf("no content to ingest")
	}

	c.logger.Debug("ingesting fragment",
		"api", c.apiTarget,
		"content_type", c.contentType,
		"bytes", len(content),
	)

	resp, err := IngestAPI(c.apiTarget, api.IngestRequest{
		Content:     string(content),
		ContentType: c.contentType,
		Tags:        c.tags,
	})
	if err != nil {
		return err
	}

	fmt.Printf("  %s ingested %s %s\n",
		cliui.SuccessMark,
		cliui.ShortHash(resp.Hash),
		cliui.DimStyle.Render(fmt.Sprintf("(%d tokens)", resp.TokenCount)),
	)
	if resp.RefCount > 1 {
		fmt.Printf("    %s\n", cliui.DimStyle.Render(fmt.Sprintf("deduplicated, reference count %d", resp.RefCount)))
	}

	// The fragment is stored either way; a session write failure only
	// affects window restoration on the next server start.
	return c.recordSession(resp.Hash)
}

// readContent resolves the fragment bytes from --file, the positional
// argument, or stdin when the argument is "-".
func (c *ingestCommander) readContent(args []string) ([]byte, error) {
	if c.file != "" {
		data, err := os.ReadFile(c.file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", c.file, err)
		}
		return data, nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("content argument required (or --file, or \"-\" for stdin)")
	}

	if args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}

	return []byte(args[0]), nil
}

// recordSession appends the hash to the persisted session state so a
// restarted server readmits it. Skipped when no .engram/ directory exists.
func (c *ingestCommander) recordSession(hash string) error {
	manager := dotdir.NewManager()

	target, err := manager.Target(c.configDir)
	if err != nil || target == "" {
		return err
	}

	state, err := manager.LoadSessionState(c.configDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}
	if state == nil {
		state = &dotdir.SessionState{}
	}

	state.Hashes = append(state.Hashes, hash)
	if err := manager.SaveSession(c.configDir, state); err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}

	return nil
}

// IngestAPI posts a fragment to the engram API and returns the parsed
// response. Exported so other commands can reuse it.
func IngestAPI(apiTarget string, reqBody api.IngestRequest) (*api.IngestResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := apiTarget + "/memory/fragments"

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engram API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading API response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var out api.IngestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parsing API response: %w", err)
	}

	return &out, nil
}
