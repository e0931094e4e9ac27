package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/synchronic/internal/formatter"
	"github.com/desertthunder/synchronic/internal/repositories"
	"github.com/desertthunder/synchronic/internal/shared"
	"github.com/urfave/cli/v3"
)

// HistoryList prints the most recent runs.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	format, err := r.tableFormat(cmd)
	if err != nil {
		return err
	}

	db, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if section := cmd.String("section"); section != "" {
		criteria["section"] = section
	}

	runs, err := repositories.NewSyncRunRepository(db).List(criteria)
	if err != nil {
		return err
	}

	tbl := formatter.NewTable("#", "Run ID", "Section", "Started", "Duration", "Matched", "Unmatched", "Updated", "Dry Run")
	for _, run := range runs {
		tbl.Append(
			run.Sequence(),
			run.ID(),
			run.Section(),
			run.StartedAt().Local().Format(time.DateTime),
			run.Duration().Round(time.Millisecond),
			run.ItemsMatched(),
			run.ItemsUnmatched(),
			run.EntriesUpdated(),
			run.DryRun(),
		)
	}
	return r.writeTable(format, tbl)
}

// HistoryShow prints one run and the outcome of every title in it.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	if id == "" {
		return fmt.Errorf("%w: --id", shared.ErrMissingArgument)
	}

	format, err := r.tableFormat(cmd)
	if err != nil {
		return err
	}

	db, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := repositories.NewSyncRunRepository(db).Get(id)
	if err != nil {
		return err
	}

	records, err := repositories.NewSyncRecordRepository(db).ListByRun(run.ID())
	if err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("Run #%d (%s)", run.Sequence(), run.Section()))
	r.writePlain("Started: %s\n", run.StartedAt().Local().Format(time.DateTime))
	r.writePlain("Titles: %d matched, %d unmatched\n", run.ItemsMatched(), run.ItemsUnmatched())
	r.writePlain("Updated: %d (dry run: %t)\n\n", run.EntriesUpdated(), run.DryRun())

	tbl := formatter.NewTable("Plex Title", "MyAnimeList Title", "MAL ID", "# Watched", "# Total", "Status")
	for _, rec := range records {
		malID := ""
		if rec.Matched() {
			malID = fmt.Sprint(rec.TrackerID())
		}
		tbl.Append(rec.MediaTitle(), rec.TrackerTitle(), malID, rec.Watched(), rec.Total(), rec.Status())
	}
	return r.writeTable(format, tbl)
}
