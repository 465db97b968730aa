package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/config"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/database"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/output"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/services"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/store"
)

// env holds the command dependencies. queries connects lazily so that
// offline commands never touch the database.
type env struct {
	ui      *output.UI
	appID   string
	queries func() (*services.ReportQueryService, error)
	closers []func() error
}

func newEnv() *env {
	e := &env{ui: output.New()}
	e.queries = func() (*services.ReportQueryService, error) {
		// Startup chatter goes to stderr so table output stays pipeable.
		slog.SetDefault(slog.New(slog.NewTextHandler(e.ui.ErrOut, &slog.HandlerOptions{Level: slog.LevelWarn})))

		cfg := config.Load()
		if cfg.DBPassword == "" {
			return nil, errors.New("DB_PASSWORD environment variable is required")
		}
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error { return database.Close(db) })
		return services.NewReportQueryService(store.NewGormReportStore(db)), nil
	}
	return e
}

func (e *env) close() {
	for _, c := range e.closers {
		_ = c()
	}
	e.closers = nil
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Inspect deduplicated issue reports",
		Long: `reportctl computes report fingerprints and queries the report ledger.
Database settings are read from the same environment as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	root.PersistentFlags().StringVarP(&e.appID, "app", "a", "", "App id (tenant) to operate on")
	root.PersistentFlags().BoolVarP(&e.ui.Verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(
		newFingerprintCmd(e),
		newListCmd(e),
		newStatsCmd(e),
		newDuplicatesCmd(e),
	)
	return root
}

func (e *env) requireApp() error {
	if e.appID == "" {
		return errors.New("--app is required")
	}
	return nil
}
