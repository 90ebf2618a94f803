package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var vacanciesCmd = &cobra.Command{
	Use:   "vacancies",
	Short: "List vacancies visible to the stored token",
	Long:  "Lists the account's vacancies and marks which ones are configured or would pass the title filter.",
	RunE:  runVacancies,
}

func init() {
	rootCmd.AddCommand(vacanciesCmd)
}

func runVacancies(cmd *cobra.Command, args []string) error {
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

	ctx := context.Background()
	cred, err := st.tokens.Load(ctx)
	if err != nil || !cred.Usable() {
		fmt.Fprintln(os.Stderr, "login required: run `applyhook start` and open /login")
		os.Exit(1)
	}

	vacancies, err := setupAPI(cfg, newHTTPClient(cfg), logger).ListVacancies(ctx, cred.AccessToken)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list vacancies: %v\n", err)
		os.Exit(1)
	}

	f := setupFilter(cfg)
	fmt.Printf("%-12s %-50s %s\n", "ID", "Title", "Status")
	fmt.Println(strings.Repeat("─", 76))

	polled := 0
	for _, v := range vacancies {
		var status string
		switch {
		case len(cfg.Vacancies) > 0 && slices.Contains(cfg.Vacancies, v.ID):
			status = "configured"
		case len(cfg.Vacancies) > 0:
			status = "-"
		case f == nil || f.Match(v):
			status = "polled"
		default:
			status = "filtered out"
		}
		if status == "configured" || status == "polled" {
			polled++
		}
		fmt.Printf("%-12s %-50s %s\n", v.ID, truncate(v.Title, 50), status)
	}

	fmt.Printf("\nTotal: %d vacancies (%d polled)\n", len(vacancies), polled)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
