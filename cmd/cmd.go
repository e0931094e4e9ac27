// submodule cmd contains command definitions
package main

import (
	"fmt"
	"strings"

	"github.com/desertthunder/synchronic/internal/formatter"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

// newApp builds the root command. Running it without a subcommand performs a sync.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:     "synchronic",
		Usage:    "Sync Plex watch progress to your MyAnimeList list",
		Version:  version,
		Flags:    rootFlags(),
		Before:   r.Before,
		Action:   r.Sync,
		Commands: r.register(),
	}
}

// rootFlags are shared by every subcommand.
func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   defaultConfigPath,
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Aliases: []string{"n"},
			Usage:   "Print the staged updates without sending them",
		},
		&cli.StringFlag{
			Name:    "section",
			Aliases: []string{"s"},
			Usage:   "Plex library section title or key (overrides plex.section)",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   fmt.Sprintf("Table format: %s (overrides output.table_format)", strings.Join(formatter.Formats(), ", ")),
		},
	}
}

// syncCommand runs the Plex to MyAnimeList sync
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Push watched episode counts from a Plex section to MyAnimeList",
		Action: r.Sync,
	}
}

// plexCommand handles read-only Plex operations
func plexCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "plex",
		Usage: "Inspect the Plex library",
		Commands: []*cli.Command{
			{
				Name:   "sections",
				Usage:  "List library sections",
				Action: r.PlexSections,
			},
			{
				Name:   "items",
				Usage:  "List shows and watched episode counts in a section",
				Action: r.PlexItems,
			},
		},
	}
}

// malCommand handles MyAnimeList operations
func malCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "mal",
		Aliases: []string{"myanimelist"},
		Usage:   "MyAnimeList operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authorize with MyAnimeList in the browser and save the token",
				Action: r.MALAuth,
			},
			{
				Name:  "search",
				Usage: "Search MyAnimeList; the # column is the index to use in [overrides]",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "query",
					},
				},
				Action: r.MALSearch,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the history database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example configuration file",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the history database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// historyCommand reads the run history database
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect recorded sync runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show the per-title outcome of a run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run ID",
						Required: true,
					},
				},
				Action: r.HistoryShow,
			},
		},
	}
}
