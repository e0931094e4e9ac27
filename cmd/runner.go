package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/synchronic/internal/formatter"
	"github.com/desertthunder/synchronic/internal/services"
	"github.com/desertthunder/synchronic/internal/shared"
	"github.com/desertthunder/synchronic/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultConfigPath = "config.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	library     services.MediaLibrary
	tracker     services.Tracker
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	progress    io.Writer
	palette     *ui.Palette
	openBrowser func(string) error
	authTimeout time.Duration
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Library and Tracker are built from the config when nil.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Library     services.MediaLibrary
	Tracker     services.Tracker
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Progress    io.Writer
	OpenBrowser func(string) error
	AuthTimeout time.Duration
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Progress == nil {
		opts.Progress = os.Stderr
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 2 * time.Minute
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		library:     opts.Library,
		tracker:     opts.Tracker,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		progress:    opts.Progress,
		palette:     ui.Default,
		openBrowser: opts.OpenBrowser,
		authTimeout: opts.AuthTimeout,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, plexCommand, malCommand, setupCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and applies --verbose.
//
// A missing file falls back to the embedded defaults; a malformed one is an error.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.configPath == "" {
		r.configPath = defaultConfigPath
	}

	if r.config != nil {
		return ctx, nil
	}

	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		r.config = shared.DefaultConfig()
		return ctx, nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.logger.Debug("loaded config", "path", r.configPath)
	r.config = config
	return ctx, nil
}

// cfg returns the loaded config, falling back to defaults when Before has not run.
func (r *Runner) cfg() *shared.Config {
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	return r.config
}

// tableFormat resolves the output format from --format, then the config.
func (r *Runner) tableFormat(cmd *cli.Command) (string, error) {
	format := cmd.String("format")
	if format == "" {
		format = r.cfg().Output.TableFormat
	}
	if format == "" {
		format = formatter.DefaultFormat
	}
	if !formatter.ValidFormat(format) {
		return "", fmt.Errorf("%w: %q (choose from %v)", shared.ErrUnsupportedFormat, format, formatter.Formats())
	}
	return format, nil
}

// connectLibrary returns an authenticated media library, building the Plex client from config if needed.
func (r *Runner) connectLibrary(ctx context.Context) (services.MediaLibrary, error) {
	config := r.cfg()

	if r.library == nil {
		r.library = services.NewPlexService(config.Plex.URL, config.Plex.ClientID)
	}

	r.logger.Debug("authenticating", "service", r.library.Name())
	if err := r.library.Authenticate(ctx, map[string]string{"token": config.Plex.Token}); err != nil {
		return nil, fmt.Errorf("%s authentication failed: %w", r.library.Name(), err)
	}

	if plex, ok := r.library.(*services.PlexService); ok {
		r.logger.Info("connected to plex", "server", plex.ServerName())
	}
	return r.library, nil
}

// newTracker builds the MyAnimeList client from config without authenticating.
func (r *Runner) newTracker() (services.Tracker, error) {
	if r.tracker != nil {
		return r.tracker, nil
	}

	config := r.cfg()
	svc, err := services.NewMALService(config.MAL.Map(), services.MALOptions{
		SearchLimit:       config.MAL.SearchLimit,
		RequestsPerSecond: config.MAL.RequestsPerSecond,
		HTTPClient:        r.httpClient,
	})
	if err != nil {
		return nil, err
	}

	if path := config.MAL.TokenPath; path != "" {
		svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
			if err := shared.SaveToken(path, token); err != nil {
				r.logger.Warn("failed to save token", "path", path, "err", err)
				return
			}
			r.logger.Debug("saved token", "path", path)
		})
	}

	r.tracker = svc
	return svc, nil
}

// connectTracker returns an authenticated tracker.
func (r *Runner) connectTracker(ctx context.Context) (services.Tracker, error) {
	tracker, err := r.newTracker()
	if err != nil {
		return nil, err
	}

	r.logger.Debug("authenticating", "service", tracker.Name())
	if err := tracker.Authenticate(ctx, r.cfg().MAL.Map()); err != nil {
		if errors.Is(err, shared.ErrMissingCredentials) {
			return nil, fmt.Errorf("%w (run `synchronic mal auth` first)", err)
		}
		return nil, fmt.Errorf("%s authentication failed: %w", tracker.Name(), err)
	}
	return tracker, nil
}

// openHistory opens the run history database and applies pending migrations.
func (r *Runner) openHistory() (*sql.DB, error) {
	config := r.cfg()

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func (r *Runner) writeTable(format string, t *formatter.Table) error {
	if err := formatter.Render(r.output, format, t); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", r.palette.Title(title))
	r.writePlain("═══════════════════════════════════════\n")
}
