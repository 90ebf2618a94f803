package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/applyhook/internal/model"
	"github.com/amishk599/applyhook/internal/notifier"
	"github.com/amishk599/applyhook/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Poll once, log new applications, exit",
	Long:  "One-shot pass that logs every application instead of sending it. Does not write to the cache.",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("check mode: nothing will be cached or sent")

	st, err := openStores(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	// Tokens are real; the cache is not.
	st.cache = store.NewNopCache()

	httpClient := newHTTPClient(cfg)
	p := newPoller(cfg, setupAPI(cfg, httpClient, logger), st, notifier.NewLogNotifier(logger), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apps, err := p.Poll(ctx)
	if errors.Is(err, model.ErrNotAuthenticated) {
		logger.Error("login required: run `applyhook start` and open /login")
		os.Exit(1)
	}
	if err != nil {
		logger.Error("poll failed", "error", err)
		os.Exit(1)
	}

	logger.Info("check complete", "applications", len(apps))
	return nil
}
