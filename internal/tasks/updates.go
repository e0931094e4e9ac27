package tasks

import (
	"fmt"

	"github.com/desertthunder/synchronic/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchLibrary Phase = iota
	SearchTitles
	FlushUpdates
	RecordHistory
)

func (p Phase) String() string {
	switch p {
	case FetchLibrary:
		return "fetch_library"
	case SearchTitles:
		return "search_titles"
	case FlushUpdates:
		return "flush_updates"
	case RecordHistory:
		return "record_history"
	default:
		return ""
	}
}

func fetchLibraryUpdate(section string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLibrary,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loading library section %q...", section),
	}
}

func searchTitleUpdate(step, total int, item models.MediaItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s (%d/%d watched)", step, total, item.Title, item.Watched, item.Total),
		Data:    item,
	}
}

func flushUpdate(staged int, dryRun bool) ProgressUpdate {
	msg := fmt.Sprintf("Applying %d staged updates...", staged)
	if dryRun {
		msg = fmt.Sprintf("Dry run: %d staged updates will not be sent", staged)
	}
	return ProgressUpdate{
		Phase:   FlushUpdates,
		Step:    1,
		Total:   1,
		Message: msg,
	}
}

func recordHistoryUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   RecordHistory,
		Step:    1,
		Total:   1,
		Message: "Recording run history...",
	}
}
