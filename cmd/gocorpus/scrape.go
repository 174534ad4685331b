package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/gocorpus/internal/app"
	"github.com/hyperifyio/gocorpus/internal/pipeline"
)

func newScrapeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <source>...",
		Short: "Discover, extract and chunk sources into a corpus file",
		Long: `Each source is a site URL, an article URL, a PDF URL or a local file.
Prefix a source with "pdf:" or "blog:" to declare its type.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.Scrape(cmd.Context(), args)
			if b != nil {
				renderBatch(opts.stdout, b, cfg.OutputPath)
			}
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&opts.flags.OutputPath, "out", "o", "", "Result file (default corpus.json)")
	fs.StringVar(&opts.flags.TeamID, "team", "", "Team id stamped on the result")
	fs.StringVar(&opts.flags.UserID, "user", "", "User id stamped on every item")
	return cmd
}

// renderBatch prints a one-line summary and a table of skipped sources.
func renderBatch(w io.Writer, b *pipeline.Batch, output string) {
	fmt.Fprintf(w, "run %s: %d items, %d skipped, written to %s\n",
		b.RunID, len(b.Result.Items), len(b.Skipped), output)
	if len(b.Skipped) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Stage", "Reason", "Error"})
	for _, s := range b.Skipped {
		t.AppendRow(table.Row{s.Source, s.Stage, s.Reason, truncate(s.Error, 80)})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
