package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/gocorpus/internal/api"
	"github.com/hyperifyio/gocorpus/internal/app"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var shutdown time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /crawl, /scrape, /healthz and /metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			// API batches go to MongoDB only.
			cfg.OutputPath = ""
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			h := api.NewHandler(api.FromOrchestrator(a.Orchestrator()), a.ServeSink())
			router := api.NewRouter(h, api.Options{
				Version:  app.BuildVersion,
				Gatherer: a.Registry(),
				Debug:    cfg.Verbose,
			})
			return api.Serve(cmd.Context(), cfg.ListenAddr, router, shutdown)
		},
	}
	cmd.Flags().StringVar(&opts.flags.ListenAddr, "listen", "", "Listen address (default :8080)")
	cmd.Flags().DurationVar(&shutdown, "shutdown-timeout", 10*time.Second, "Grace period for in-flight requests")
	return cmd
}
