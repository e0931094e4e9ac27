package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/synchronic/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("%s Config written to %s\n", r.palette.Success("✓"), r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set plex.token and plex.section\n")
	r.writePlain("2. Set mal.client_id, then run 'synchronic mal auth'\n")
	r.writePlain("3. Run 'synchronic --dry-run' to preview the updates\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.cfg()

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	if !config.Database.Enabled {
		r.writePlain("%s\n", r.palette.Help(fmt.Sprintf("Set database.enabled = true in %s to record runs", r.configPath)))
	}
	return nil
}
