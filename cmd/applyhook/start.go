package main

import (
	"context"
	"crypto/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/applyhook/internal/auth"
	"github.com/amishk599/applyhook/internal/scheduler"
	"github.com/amishk599/applyhook/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the polling daemon and login server",
	Long:  "Start the scheduler and the HTTP server; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"interval", cfg.PollingInterval.String(),
		"vacancies", len(cfg.Vacancies),
		"max_pages", cfg.API.MaxPages,
		"cache", cfg.Cache.Backend,
		"notifier", cfg.Notification.Type,
	)

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

	sessionKey := []byte(cfg.Server.SessionKey)
	if len(sessionKey) == 0 {
		logger.Warn("server.session_key not set, generating a random one; pending logins will not survive a restart")
		sessionKey = make([]byte, 32)
		if _, err := rand.Read(sessionKey); err != nil {
			logger.Error("failed to generate session key", "error", err)
			os.Exit(1)
		}
	}
	srv := server.NewServer(cfg.Server.Addr, sessionKey, auth.NewOAuth(cfg.OAuth, httpClient), st.tokens, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.Start(); err != nil {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	sched := scheduler.NewScheduler([]scheduler.Job{
		scheduler.PollJob(cfg.PollingInterval, p.Poll),
		scheduler.CleanupJob(cfg.Cache.CleanupInterval, st.cache, cfg.Cache.MaxSize, cfg.Cache.KeepSize, logger),
	}, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}

	logger.Info("goodbye")
	return nil
}
