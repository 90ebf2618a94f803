package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/applyhook/internal/audit"
	"github.com/amishk599/applyhook/internal/config"
	"github.com/amishk599/applyhook/internal/model"
	"github.com/amishk599/applyhook/internal/poller"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse responses interactively (TUI)",
	Long:  "Shows the vacancy picker, then a split-pane view of all responses and the ones not cached yet. Read-only.",
	RunE:  runAuditCmd,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Any log output once the alt-screen starts corrupts the display.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := openStores(cfg, silentLogger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	cred, err := st.tokens.Load(context.Background())
	if err != nil || !cred.Usable() {
		fmt.Println("Login required: run `applyhook start` and open /login.")
		return nil
	}

	api := setupAPI(cfg, newHTTPClient(cfg), silentLogger)
	runAudit(cfg, api, st.cache, cred.AccessToken)
	return nil
}

func runAudit(cfg *config.Config, api model.RecruitingAPI, cache model.ApplyCache, token string) {
	vacancies, err := auditVacancies(context.Background(), cfg, api, token)
	if err != nil {
		fmt.Printf("Error listing vacancies: %v\n", err)
		return
	}
	if len(vacancies) == 0 {
		fmt.Println("No vacancies to audit.")
		return
	}

	lookup := func(ctx context.Context, login string) (model.UserProfile, error) {
		return api.GetUser(ctx, token, login)
	}

	for {
		choice, err := audit.RunVacancyPicker(vacancies)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}
		vacancy := vacancies[choice]

		loaded, err := audit.RunLoader(vacancy, cfg.API.MaxPages,
			func(ctx context.Context, page int) ([]model.Application, error) {
				return api.ListResponses(ctx, token, vacancy.ID, page)
			},
			cache.Contains,
		)
		if err != nil {
			fmt.Printf("Error fetching responses: %v\n", err)
			continue
		}

		wantQuit, err := audit.RunAuditTUI(vacancy, loaded.All, loaded.Fresh, lookup, cfg.ProfileBaseURL)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
		// else: loop → back to picker
	}
}

// auditVacancies returns the configured vacancies with their titles, or the
// account's filtered listing when none are configured.
func auditVacancies(ctx context.Context, cfg *config.Config, api model.RecruitingAPI, token string) ([]model.Vacancy, error) {
	if len(cfg.Vacancies) == 0 {
		listed, err := api.ListVacancies(ctx, token)
		if err != nil {
			return nil, err
		}
		f := setupFilter(cfg)
		var out []model.Vacancy
		for _, v := range listed {
			if f == nil || f.Match(v) {
				out = append(out, v)
			}
		}
		return out, nil
	}

	out := make([]model.Vacancy, 0, len(cfg.Vacancies))
	for _, id := range cfg.Vacancies {
		v, err := api.GetVacancy(ctx, token, id)
		if err != nil || v.Title == "" {
			v = model.Vacancy{ID: id, Title: poller.UnknownTitle}
		}
		out = append(out, v)
	}
	return out, nil
}
