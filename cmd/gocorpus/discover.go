package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/gocorpus/internal/app"
	"github.com/hyperifyio/gocorpus/internal/discover"
)

func newDiscoverCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "discover <url>",
		Short: "List the content links of a site without extracting them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startURL := strings.TrimSpace(args[0])
			if !strings.HasPrefix(startURL, "http://") && !strings.HasPrefix(startURL, "https://") {
				return fmt.Errorf("%w: discover needs an http(s) URL, got %q", app.ErrConfig, startURL)
			}
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			// Nothing is persisted.
			cfg.OutputPath, cfg.MongoURI = "", ""
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.DiscoverReport(cmd.Context(), startURL)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(opts.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			renderReport(opts.stdout, rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	return cmd
}

func renderReport(w io.Writer, rep *discover.Report) {
	attempts := table.NewWriter()
	attempts.SetOutputMirror(w)
	attempts.SetStyle(table.StyleLight)
	attempts.SetTitle("Strategies")
	attempts.AppendHeader(table.Row{"Strategy", "Found", "Confidence", "Duration", "Error"})
	for _, at := range rep.Attempts {
		attempts.AppendRow(table.Row{at.Strategy, at.Found, fmt.Sprintf("%.2f", at.Confidence), at.Duration.Round(time.Millisecond), truncate(at.Err, 60)})
	}
	attempts.Render()

	links := table.NewWriter()
	links.SetOutputMirror(w)
	links.SetStyle(table.StyleLight)
	links.SetTitle("Links")
	links.AppendHeader(table.Row{"#", "Type", "URL", "Strategy", "Confidence"})
	for i, l := range rep.Links {
		links.AppendRow(table.Row{i + 1, l.Type, l.URL, l.DiscoveredBy, fmt.Sprintf("%.2f", l.Confidence)})
	}
	links.Render()

	winner := string(rep.Succeeded)
	if winner == "" {
		winner = "none"
	}
	fmt.Fprintf(w, "strategy %s, %d links, %d pages visited, budget exhausted: %t\n",
		winner, len(rep.Links), rep.PagesVisited, rep.BudgetExhausted)
}
