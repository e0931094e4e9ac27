package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/synchronic/internal/repositories"
	"github.com/desertthunder/synchronic/internal/shared"
	"github.com/desertthunder/synchronic/internal/tasks"
	"github.com/desertthunder/synchronic/internal/ui"
	"github.com/urfave/cli/v3"
)

// Sync runs one pass over a Plex section and pushes the matches to MyAnimeList.
//
// The confirmation and summary tables go to stdout; progress goes to stderr.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	config := r.cfg()
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w (edit %s or run `synchronic setup config`)", err, r.configPath)
	}

	section := cmd.String("section")
	if section == "" {
		section = config.Plex.Section
	}
	dryRun := cmd.Bool("dry-run")

	format, err := r.tableFormat(cmd)
	if err != nil {
		return err
	}

	library, err := r.connectLibrary(ctx)
	if err != nil {
		return err
	}
	tracker, err := r.connectTracker(ctx)
	if err != nil {
		return err
	}

	engine := tasks.NewEngine(library, tracker, shared.WithLogger(r.logger, "config", r.configPath))

	if config.Database.Enabled {
		db, err := r.openHistory()
		if err != nil {
			r.logger.Warn("run history disabled", "err", err)
		} else {
			defer db.Close()
			engine.SetRecorder(repositories.NewHistoryRecorder(db))
		}
	}

	r.logger.Info("starting sync", "section", section, "dry_run", dryRun)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go ui.PrintProgress(r.progress, r.palette, progressCh, done)

	result, err := engine.Run(ctx, progressCh, tasks.SyncOpts{
		Section: section,
		Policy:  tasks.ResolutionPolicy(config.Overrides),
		DryRun:  dryRun,
		Output:  r.output,
		Format:  format,
	})
	close(progressCh)
	<-done

	if err != nil {
		if result != nil && result.Updated > 0 {
			r.logger.Warn("sync stopped after partial update", "updated", result.Updated)
		}
		return err
	}

	return r.writeSyncSummary(format, result)
}

func (r *Runner) writeSyncSummary(format string, result *tasks.SyncResult) error {
	r.writePlainln("")
	if err := r.writeTable(format, result.Report()); err != nil {
		return err
	}

	title := "Sync Complete!"
	if result.DryRun {
		title = "Dry Run Complete"
	}

	r.writePlainln("")
	r.writePlainHeader(title)
	r.writePlain("Section: %s (%d titles)\n", result.Section, result.Total())
	r.writePlain("Matched: %s\n", r.palette.Success(fmt.Sprint(result.Matched)))
	if result.Unmatched > 0 {
		r.writePlain("Unmatched: %s\n", r.palette.Warn(fmt.Sprint(result.Unmatched)))
	} else {
		r.writePlain("Unmatched: 0\n")
	}

	if result.DryRun {
		r.writePlain("Staged (not sent): %d\n", len(result.Flushed))
	} else {
		r.writePlain("Updated: %d\n", result.Updated)
	}

	for _, c := range result.Conflicts {
		r.writePlain("%s %q and %q both matched MAL ID %d; kept %q\n",
			r.palette.Warn("⚠"), c.Previous, c.Current, c.TrackerID, c.Current)
	}

	if result.RunID != "" {
		r.writePlain("%s\n", r.palette.Help("Recorded as run "+result.RunID))
	}

	return nil
}

// ensureSection reports a missing section before any request is made.
func ensureSection(section string) error {
	if section == "" {
		return fmt.Errorf("%w: --section or plex.section", shared.ErrMissingArgument)
	}
	return nil
}
