package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voxbridge/internal/transcriptcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the transcript cache",
		Long: "Inspect and clear the transcript cache.\n\n" +
			"The cache is wiped whenever a command exits cleanly; entries shown here\n" +
			"were left behind by an interrupted run.",
	}
	cacheCmd.AddCommand(newCacheInfoCommand(ctx))
	cacheCmd.AddCommand(newCacheWipeCommand(ctx))
	return cacheCmd
}

func openCache(ctx *commandContext) (*transcriptcache.Cache, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, err
	}
	return transcriptcache.New(cfg.Paths.CacheDir, logger), nil
}

func newCacheInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show transcript cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			count, err := cache.Count()
			if err != nil {
				return err
			}
			size, err := cache.SizeBytes()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directory: %s\n", cache.Dir())
			fmt.Fprintf(out, "Entries:   %d\n", count)
			fmt.Fprintf(out, "Size:      %s\n", humanBytes(size))
			return nil
		},
	}
}

func newCacheWipeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "wipe",
		Short: "Remove the transcript cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			count, err := cache.Count()
			if err != nil {
				return err
			}
			if err := cache.Wipe(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached transcript(s) from %s\n", count, cache.Dir())
			return nil
		},
	}
}
