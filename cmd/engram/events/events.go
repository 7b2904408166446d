// Package eventscmder provides the events command for following the live
// window event feed of a running engram server.
package eventscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/sse"
	"github.com/papercomputeco/engram/pkg/window"
)

var (
	admittedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	evictedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type eventsCommander struct {
	apiTarget string

	debug  bool
	logger *slog.Logger
}

const eventsLongDesc string = `Follow the live window event feed from a running engram server.

Streams admissions and evictions over SSE as they happen, one line per
event. Useful for watching how the working-memory window turns over while
an agent session runs.

Stop with Ctrl-C.

Examples:
  engram events
  engram events --api-target http://localhost:8080`

const eventsShortDesc string = "Follow live window admissions and evictions"

func NewEventsCmd() *cobra.Command {
	cmder := &eventsCommander{}

	cmd := &cobra.Command{
		Use:   "events",
		Short: eventsShortDesc,
		Long:  eventsLongDesc,
		Args:  cobra.NoArgs,
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
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd.Context())
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *eventsCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.logger = logger.New(logger.WithPretty(true), logger.WithDebug(c.debug), logger.WithWriter(os.Stderr))
	c.logger.Debug("following window events", "api", c.apiTarget)

	feedURL, err := url.Parse(c.apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	feedURL.Path = "/memory/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL.String(), nil)
	if err != nil {
		return fmt.Errorf("creating event feed request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout: the feed stays open until interrupted.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to engram API at %s: %w", c.apiTarget, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event feed request failed (HTTP %d)", resp.StatusCode)
	}

	fmt.Println(dimStyle.Render(fmt.Sprintf("following window events from %s, Ctrl-C to stop", c.apiTarget)))

	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			// Interrupts surface as read errors on the canceled body.
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading event feed: %w", err)
		}
		if ev == nil {
			// Server closed the stream.
			return nil
		}

		printEvent(ev)
	}
}

// printEvent renders one feed event as a single line. Payloads that are
// not window events are shown raw.
func printEvent(ev *sse.Event) {
	var wev window.Event
	if err := json.Unmarshal([]byte(ev.Data), &wev); err != nil || wev.Type == "" {
		fmt.Println(ev.Data)
		return
	}

	style := admittedStyle
	if wev.Type == window.EventEvicted {
		style = evictedStyle
	}

	fmt.Printf("%s %s %s %s\n",
		dimStyle.Render(time.Now().Format("15:04:05")),
		style.Render(fmt.Sprintf("%-8s", string(wev.Type))),
		cliui.ShortHash(wev.Hash),
		dimStyle.Render(fmt.Sprintf("(%d tokens)", wev.Tokens)),
	)
}
