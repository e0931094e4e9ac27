package main

import (
	"context"

	"github.com/desertthunder/synchronic/internal/formatter"
	"github.com/desertthunder/synchronic/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlexSections lists the library sections on the server.
func (r *Runner) PlexSections(ctx context.Context, cmd *cli.Command) error {
	format, err := r.tableFormat(cmd)
	if err != nil {
		return err
	}

	library, err := r.connectLibrary(ctx)
	if err != nil {
		return err
	}

	sections, err := library.Sections(ctx)
	if err != nil {
		return err
	}

	tbl := formatter.NewTable("Key", "Title", "Type")
	for _, s := range sections {
		tbl.Append(s.Key, s.Title, s.Type)
	}
	return r.writeTable(format, tbl)
}

// PlexItems lists the shows in a section with the status a sync would stage for each.
func (r *Runner) PlexItems(ctx context.Context, cmd *cli.Command) error {
	section := cmd.String("section")
	if section == "" {
		section = r.cfg().Plex.Section
	}
	if err := ensureSection(section); err != nil {
		return err
	}

	format, err := r.tableFormat(cmd)
	if err != nil {
		return err
	}

	library, err := r.connectLibrary(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("listing section", "section", section)

	items, err := library.Items(ctx, section)
	if err != nil {
		return err
	}

	tbl := formatter.NewTable("Title", "Year", "# Watched", "# Total", "Status")
	for _, item := range items {
		tbl.Append(item.Title, item.Year, item.Watched, item.Total, tasks.DetermineStatus(item.Watched, item.Total))
	}
	return r.writeTable(format, tbl)
}
