package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/applyhook/internal/auth"
	"github.com/amishk599/applyhook/internal/config"
	"github.com/amishk599/applyhook/internal/filter"
	"github.com/amishk599/applyhook/internal/habr"
	"github.com/amishk599/applyhook/internal/model"
	"github.com/amishk599/applyhook/internal/notifier"
	"github.com/amishk599/applyhook/internal/poller"
	"github.com/amishk599/applyhook/internal/ratelimit"
	"github.com/amishk599/applyhook/internal/retry"
	"github.com/amishk599/applyhook/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "applyhook",
	Short: "Forward new Habr Career applications to a webhook",
	Long:  "applyhook polls Habr Career vacancies for new responses, enriches them with candidate contacts and posts each one to a webhook.",
	// Default to `start` so that `applyhook` with no args runs the daemon.
	RunE:          runStart,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: APPLYHOOK_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > APPLYHOOK_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("APPLYHOOK_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.API.Timeout}
}

// setupAPI builds the Habr client behind rate limiting and retries. Retries
// sit outside the limiter so every attempt waits its turn.
func setupAPI(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.RecruitingAPI {
	var api model.RecruitingAPI = habr.NewClient(cfg.API.BaseURL, cfg.API.UserAgent, httpClient, logger)
	api = ratelimit.NewAPI(api, ratelimit.NewLimiter(cfg.API.MinDelay), "habr")
	return retry.New(api, cfg.API.MaxRetries, cfg.API.RetryDelay, logger)
}

// stores bundles the cache and token store. Both sqlite backends on the same
// path share one database.
type stores struct {
	cache   model.ApplyCache
	tokens  model.TokenStore
	closers []func() error
}

func (s *stores) Close() {
	for _, c := range s.closers {
		_ = c()
	}
}

func openStores(cfg *config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{}
	dbs := make(map[string]*store.SQLiteStore)
	openDB := func(path string) (*store.SQLiteStore, error) {
		if db, ok := dbs[path]; ok {
			return db, nil
		}
		db, err := store.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		dbs[path] = db
		s.closers = append(s.closers, db.Close)
		return db, nil
	}

	if cfg.Cache.Backend == "sqlite" {
		db, err := openDB(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		s.cache = db
	} else {
		s.cache = store.NewFileCache(cfg.Cache.Path, logger)
	}

	if cfg.Token.Backend == "sqlite" {
		db, err := openDB(cfg.Token.Path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open token store: %w", err)
		}
		s.tokens = db.Tokens()
	} else {
		s.tokens = auth.NewFileTokenStore(cfg.Token.Path)
	}
	return s, nil
}

func setupFilter(cfg *config.Config) model.VacancyFilter {
	if len(cfg.Filters.TitleKeywords) == 0 && len(cfg.Filters.TitleExcludeKeywords) == 0 {
		return nil
	}
	return filter.NewTitleFilter(cfg.Filters.TitleKeywords, cfg.Filters.TitleExcludeKeywords)
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (model.Notifier, error) {
	switch cfg.Notification.Type {
	case "webhook":
		logger.Info("using webhook notifier")
		return notifier.NewWebhookNotifier(cfg.Notification.WebhookURL, httpClient, logger), nil
	case "telegram":
		logger.Info("using telegram notifier", "chat_id", cfg.Notification.TelegramChatID)
		return notifier.NewTelegramNotifier(cfg.Notification.TelegramToken, cfg.Notification.TelegramChatID, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger), nil
	}
}

func newPoller(cfg *config.Config, api model.RecruitingAPI, s *stores, n model.Notifier, logger *slog.Logger) *poller.ApplyPoller {
	return poller.NewApplyPoller(api, s.tokens, s.cache, setupFilter(cfg), n, poller.Options{
		Vacancies:      cfg.Vacancies,
		MaxPages:       cfg.API.MaxPages,
		ProfileBaseURL: cfg.ProfileBaseURL,
	}, logger)
}
