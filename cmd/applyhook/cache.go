package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or trim the applies cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print remembered application IDs",
	RunE:  runCacheList,
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run one cache cleanup with the configured limits",
	RunE:  runCacheCleanup,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd, cacheCleanupCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	st, err := openStores(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	entries, err := st.cache.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list cache: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-6s %-20s %s\n", "#", "Apply ID", "First seen")
	fmt.Println(strings.Repeat("─", 44))
	for i, e := range entries {
		seen := "-"
		if !e.FirstSeen.IsZero() {
			seen = humanize.Time(e.FirstSeen)
		}
		fmt.Printf("%-6d %-20s %s\n", i+1, e.ID, seen)
	}

	fmt.Printf("\nTotal: %s ids (cleanup above %s keeps the first %s)\n",
		humanize.Comma(int64(len(entries))), humanize.Comma(int64(cfg.Cache.MaxSize)), humanize.Comma(int64(cfg.Cache.KeepSize)))
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := openStores(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	trimmed, err := st.cache.Cleanup(context.Background(), cfg.Cache.MaxSize, cfg.Cache.KeepSize)
	if err != nil {
		logger.Error("cache cleanup failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cache cleanup completed", "trimmed", trimmed, "max_size", cfg.Cache.MaxSize, "keep_size", cfg.Cache.KeepSize)
	return nil
}
