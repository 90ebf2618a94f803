package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/applyhook/internal/model"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll pass and exit",
	Long:  "Runs a single pass with the configured notifier and cache, exactly as the daemon would.",
	RunE:  runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
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

	httpClient := newHTTPClient(cfg)
	n, err := setupNotifier(cfg, httpClient, logger)
	if err != nil {
		logger.Error("failed to set up notifier", "error", err)
		os.Exit(1)
	}
	p := newPoller(cfg, setupAPI(cfg, httpClient, logger), st, n, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := p.Poll(ctx); err != nil {
		if errors.Is(err, model.ErrNotAuthenticated) {
			logger.Error("login required: run `applyhook start` and open /login")
		} else {
			logger.Error("poll failed", "error", err)
		}
		os.Exit(1)
	}
	return nil
}
