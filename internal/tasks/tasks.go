package tasks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/synchronic/internal/formatter"
	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/services"
	"github.com/desertthunder/synchronic/internal/shared"
)

// ReportHeaders are the columns of the summary table built by [SyncResult.Report].
var ReportHeaders = []string{"Plex Title", "MyAnimeList Title", "# Watched", "# Total"}

// ReportRow is the outcome for one media item.
type ReportRow struct {
	Title        string        // Media title from the library
	TrackerID    int           // Matched entry id, 0 when unmatched
	TrackerTitle string        // Matched entry title, [models.UnmatchedTitle] when unmatched
	Watched      int           // Episodes watched
	Total        int           // Episodes in the library
	Status       models.Status // Staged status, empty when unmatched
	Matched      bool
	Err          error // Why the item is unmatched
}

// Conflict records two media items that resolved to the same tracker entry.
// The later item's progress replaces the earlier one in the buffer.
type Conflict struct {
	TrackerID int
	Previous  string
	Current   string
}

// SyncOpts configures a single [SyncEngine.Run].
type SyncOpts struct {
	Section string           // Library section title or key
	Policy  ResolutionPolicy // Per-title candidate overrides
	DryRun  bool             // Print the confirmation table without sending updates
	Output  io.Writer        // Destination of the confirmation table, defaults to [io.Discard]
	Format  string           // Table format, see [formatter.Formats]
}

// SyncResult contains everything a run produced.
type SyncResult struct {
	RunID      string // Set when a [RunRecorder] stored the run
	Section    string
	DryRun     bool
	Rows       []ReportRow    // One row per media item in library order
	Flushed    []models.Entry // Entries applied, or that would have been applied in a dry run
	Conflicts  []Conflict
	Matched    int
	Unmatched  int
	Updated    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Total returns the number of media items scanned.
func (r *SyncResult) Total() int {
	return len(r.Rows)
}

// Report builds the summary table.
func (r *SyncResult) Report() *formatter.Table {
	tbl := formatter.NewTable(ReportHeaders...)
	for _, row := range r.Rows {
		tbl.Append(row.Title, row.TrackerTitle, row.Watched, row.Total)
	}
	return tbl
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	// Record stores the result and returns the id of the stored run.
	Record(ctx context.Context, result *SyncResult) (string, error)
}

// SyncEngine defines the sync pass from a media library to a tracker.
type SyncEngine interface {
	// Run scans one library section, stages tracker updates for every match, and flushes them.
	Run(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error)
}

// Engine implements SyncEngine.
// Contains dependencies on the media library, the tracker and an optional run recorder.
type Engine struct {
	library  services.MediaLibrary
	tracker  services.Tracker
	recorder RunRecorder
	logger   *log.Logger
}

// NewEngine creates a new Engine with the provided services.
func NewEngine(library services.MediaLibrary, tracker services.Tracker, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Engine{
		library: library,
		tracker: tracker,
		logger:  shared.WithPrefix(logger, "sync"),
	}
}

// SetRecorder sets the recorder that receives every finished run. A nil recorder disables recording.
func (e *Engine) SetRecorder(r RunRecorder) {
	e.recorder = r
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run performs the sync pass described in the package documentation.
func (e *Engine) Run(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error) {
	if e.library == nil {
		return nil, fmt.Errorf("%w: media library not initialized", shared.ErrServiceUnavailable)
	}
	if e.tracker == nil {
		return nil, fmt.Errorf("%w: tracker not initialized", shared.ErrServiceUnavailable)
	}
	if opts.Section == "" {
		return nil, fmt.Errorf("%w: library section", shared.ErrMissingArgument)
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}

	result := &SyncResult{
		Section:   opts.Section,
		DryRun:    opts.DryRun,
		Rows:      []ReportRow{},
		Flushed:   []models.Entry{},
		StartedAt: time.Now(),
	}

	e.logger.Info("loading library section", "section", opts.Section)
	e.sendProgress(progress, fetchLibraryUpdate(opts.Section))

	items, err := e.library.Items(ctx, opts.Section)
	if err != nil {
		return nil, fmt.Errorf("failed to load section %q: %w", opts.Section, err)
	}

	buffer := NewPendingBuffer(e.tracker.Blank)
	owners := map[int]string{}

	for i, item := range items {
		e.sendProgress(progress, searchTitleUpdate(i+1, len(items), item))

		row := ReportRow{
			Title:        item.Title,
			TrackerTitle: models.UnmatchedTitle,
			Watched:      item.Watched,
			Total:        item.Total,
		}

		entry, err := e.resolve(ctx, item.Title, opts.Policy)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.logger.Warn("no match", "title", item.Title, "err", err)
			row.Err = err
			result.Rows = append(result.Rows, row)
			result.Unmatched++
			continue
		}

		if prev, ok := owners[entry.ID]; ok {
			e.logger.Warn("duplicate match, keeping the later item", "id", entry.ID, "previous", prev, "current", item.Title)
			result.Conflicts = append(result.Conflicts, Conflict{TrackerID: entry.ID, Previous: prev, Current: item.Title})
		}
		owners[entry.ID] = item.Title

		if item.Total == 0 && item.Watched > 0 {
			e.logger.Warn("unknown episode total, staging as watching", "title", item.Title, "watched", item.Watched)
		}

		status, err := e.tracker.Status(DetermineStatus(item.Watched, item.Total).String())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve status for %q: %w", item.Title, err)
		}
		buffer.Stage(entry.ID, item.Watched, status, WithTitle(entry.Title))
		e.logger.Debug("staged", "title", item.Title, "id", entry.ID, "status", status, "episodes", item.Watched)

		row.TrackerID = entry.ID
		row.TrackerTitle = entry.Title
		row.Status = status
		row.Matched = true
		result.Rows = append(result.Rows, row)
		result.Matched++
	}

	e.logger.Info("flushing pending updates", "count", buffer.Len(), "dry_run", opts.DryRun)
	e.sendProgress(progress, flushUpdate(buffer.Len(), opts.DryRun))

	flushed, err := buffer.Flush(ctx, e.tracker, opts.Output, opts.Format, opts.DryRun)
	if flushed != nil {
		result.Flushed = flushed
	}
	if !opts.DryRun {
		result.Updated = len(flushed)
	}
	result.FinishedAt = time.Now()
	if err != nil {
		return result, err
	}

	if e.recorder != nil {
		e.sendProgress(progress, recordHistoryUpdate())
		id, err := e.recorder.Record(ctx, result)
		if err != nil {
			e.logger.Warn("failed to record run history", "err", err)
		} else {
			result.RunID = id
		}
	}

	return result, nil
}

// resolve searches the tracker for title and picks the candidate named by policy.
func (e *Engine) resolve(ctx context.Context, title string, policy ResolutionPolicy) (*models.Entry, error) {
	candidates, err := e.tracker.Search(ctx, title)
	if err != nil {
		return nil, err
	}

	idx := policy.Index(title)
	if idx < 0 || idx >= len(candidates) {
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: no results", shared.ErrNoMatch)
		}
		return nil, fmt.Errorf("%w: index %d out of range for %d results", shared.ErrNoMatch, idx, len(candidates))
	}

	entry := candidates[idx]
	return &entry, nil
}
