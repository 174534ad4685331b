package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/gocorpus/internal/app"
	"github.com/hyperifyio/gocorpus/internal/cache"
)

func newCacheCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the HTTP cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached response",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, err := cacheConfig(opts)
				if err != nil {
					return err
				}
				if err := cache.ClearDir(cfg.CacheDir); err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "cleared %s\n", cfg.CacheDir)
				return nil
			},
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Remove entries by age (--cache.maxAge) and enforce size limits",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, err := cacheConfig(opts)
				if err != nil {
					return err
				}
				if cfg.CacheMaxAge <= 0 && cfg.CacheMaxBytes <= 0 && cfg.CacheMaxEntries <= 0 {
					return fmt.Errorf("%w: purge needs --cache.maxAge, --cache.maxBytes or --cache.maxEntries", app.ErrConfig)
				}
				var aged, evicted int
				if cfg.CacheMaxAge > 0 {
					if aged, err = cache.PurgeHTTPCacheByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
						return err
					}
				}
				if cfg.CacheMaxBytes > 0 || cfg.CacheMaxEntries > 0 {
					if evicted, err = cache.EnforceHTTPCacheLimits(cfg.CacheDir, cfg.CacheMaxBytes, cfg.CacheMaxEntries); err != nil {
						return err
					}
				}
				fmt.Fprintf(opts.stdout, "removed %d expired and %d evicted entries from %s\n", aged, evicted, cfg.CacheDir)
				return nil
			},
		},
	)
	return cmd
}

func cacheConfig(opts *rootOptions) (app.Config, error) {
	cfg, err := opts.config()
	if err != nil {
		return cfg, err
	}
	if cfg.CacheDir == "" {
		return cfg, fmt.Errorf("%w: no cache directory (--cache.dir or GOCORPUS_CACHE_DIR)", app.ErrConfig)
	}
	return cfg, nil
}
