package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive-migrate/internal/config"
	"github.com/tonimelisma/drive-migrate/internal/drive"
	"github.com/tonimelisma/drive-migrate/internal/migrate"
	"github.com/tonimelisma/drive-migrate/internal/worklist"
)

// migrate command flags.
var (
	flagCSVPath string
	flagBackup  string
	flagDryRun  bool
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy listed items into your ownership and move originals to the backup folder",
		Long: `Process the work-item CSV: each listed file is server-side copied so the
copy is owned by your account, then the original is moved into the backup
folder. Folders are walked recursively; every descendant is copied before
any original moves. Per-item failures are logged and recorded in the run
journal without aborting the batch.`,
		RunE: runMigrate,
	}

	cmd.Flags().StringVar(&flagCSVPath, "csv", "", "work list CSV path (overrides config)")
	cmd.Flags().StringVar(&flagBackup, "backup", "", "backup folder name (overrides config)")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "walk and plan only, mutate nothing")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := config.ValidateAuth(cfg); err != nil {
		return err
	}

	logger := buildLogger(cfg)

	csvPath := cfg.Migrate.CSVPath
	if flagCSVPath != "" {
		csvPath = flagCSVPath
	}

	backupName := cfg.Migrate.BackupFolder
	if flagBackup != "" {
		backupName = flagBackup
	}

	// No work list means nothing can be done safely — fatal, not a no-op.
	items, err := worklist.Load(csvPath, logger)
	if err != nil {
		return err
	}

	logger.Info("work list loaded",
		"path", csvPath,
		"items", len(items),
	)

	ctx := context.Background()

	src, err := drive.TokenSourceFromPath(ctx, cfg.Auth.TokenPath,
		cfg.Auth.ClientID, cfg.Auth.ClientSecret, logger)
	if err != nil {
		return err
	}

	client := drive.NewClient(drive.DefaultBaseURL, drive.DefaultUploadURL,
		defaultHTTPClient(), src, logger)

	var journal *migrate.Journal

	if !flagDryRun {
		journal, err = migrate.OpenJournal(cfg.Migrate.JournalPath, logger)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	engine := migrate.New(client, journal, backupName, flagDryRun, logger)

	summary, err := engine.Run(cmd.Context(), items)
	if err != nil {
		return err
	}

	printSummary(summary)

	return nil
}

// printSummary reports the run totals to the user. Per-item failures do not
// make the exit code non-zero; they are visible here and in the journal.
func printSummary(s *migrate.Summary) {
	if flagDryRun {
		statusf("Dry run: %d items planned, %d skipped, %d failed.\n",
			s.Planned, s.Skipped, s.Failed)
		return
	}

	statusf("Done: %d copies, %d moves, %d skipped, %d failed.\n",
		s.Copied, s.Moved, s.Skipped, s.Failed)

	if s.Failed > 0 {
		statusf("Some items failed; run 'drive-migrate status' for details and re-run to retry them.\n")
	}
}
