package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive-migrate/internal/migrate"
)

// status command flags.
var flagRunID int64

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-item outcomes from the run journal",
		Long: `Display the outcome of the most recent migration run (or a specific run
with --run): which items were migrated, skipped, or failed, and why. The
journal is the authoritative record; the same information is also in the
run's logs.`,
		RunE: runStatus,
	}

	cmd.Flags().Int64Var(&flagRunID, "run", 0, "show a specific run id (default: latest)")

	return cmd
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Run      statusRun      `json:"run"`
	Outcomes []statusOutcome `json:"outcomes"`
}

type statusRun struct {
	ID         int64  `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Copied     int    `json:"copied"`
	Moved      int    `json:"moved"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

type statusOutcome struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)

	journal, err := migrate.OpenJournal(cfg.Migrate.JournalPath, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx := cmd.Context()

	run, err := resolveRun(ctx, journal)
	if errors.Is(err, migrate.ErrNoRuns) {
		fmt.Println("No runs recorded yet. Run 'drive-migrate migrate' to get started.")
		return nil
	}

	if err != nil {
		return err
	}

	outcomes, err := journal.Outcomes(ctx, run.ID)
	if err != nil {
		return err
	}

	if flagJSON {
		return printStatusJSON(run, outcomes)
	}

	printStatusTable(run, outcomes)

	return nil
}

// resolveRun picks the run to display: --run when given, else the latest.
func resolveRun(ctx context.Context, journal *migrate.Journal) (*migrate.Run, error) {
	if flagRunID > 0 {
		runs, err := journal.Runs(ctx)
		if err != nil {
			return nil, err
		}

		for i := range runs {
			if runs[i].ID == flagRunID {
				return &runs[i], nil
			}
		}

		return nil, fmt.Errorf("run %d not found in journal", flagRunID)
	}

	return journal.LatestRun(ctx)
}

func printStatusJSON(run *migrate.Run, outcomes []migrate.Outcome) error {
	out := statusOutput{
		Run: statusRun{
			ID:        run.ID,
			StartedAt: run.StartedAt.Format(time.RFC3339),
			Copied:    run.Copied,
			Moved:     run.Moved,
			Skipped:   run.Skipped,
			Failed:    run.Failed,
		},
	}

	if !run.FinishedAt.IsZero() {
		out.Run.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}

	for _, o := range outcomes {
		out.Outcomes = append(out.Outcomes, statusOutcome{
			ItemID: o.ItemID,
			Name:   o.Name,
			Kind:   o.Kind,
			Status: string(o.Status),
			Detail: o.Detail,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printStatusTable(run *migrate.Run, outcomes []migrate.Outcome) {
	color := isatty.IsTerminal(os.Stdout.Fd())

	fmt.Printf("Run %d: started %s, finished %s — %d copies, %d moves, %d skipped, %d failed\n\n",
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Copied, run.Moved, run.Skipped, run.Failed)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tNAME\tKIND\tSTATUS\tDETAIL")

	for _, o := range outcomes {
		status := string(o.Status)
		if color {
			if c := colorFor(status); c != "" {
				status = c + status + colorReset
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.ItemID, o.Name, o.Kind, status, o.Detail)
	}

	w.Flush()
}
