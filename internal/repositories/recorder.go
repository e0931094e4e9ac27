package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/tasks"
)

// HistoryRecorder implements [tasks.RunRecorder] by writing a run and its records to SQLite.
type HistoryRecorder struct {
	runs    *SyncRunRepository
	records *SyncRecordRepository
}

// NewHistoryRecorder creates a recorder backed by db. The sync_runs and sync_records migrations must have run.
func NewHistoryRecorder(db *sql.DB) *HistoryRecorder {
	return &HistoryRecorder{
		runs:    NewSyncRunRepository(db),
		records: NewSyncRecordRepository(db),
	}
}

// Record stores result and returns the new run id. A run whose records fail to insert is soft-deleted.
func (h *HistoryRecorder) Record(ctx context.Context, result *tasks.SyncResult) (string, error) {
	run := models.NewSyncRun(0, result.Section, result.DryRun, result.StartedAt)
	run.SetCounts(result.Total(), result.Matched, result.Unmatched)
	run.SetEntriesUpdated(result.Updated)
	if !result.FinishedAt.IsZero() {
		finished := result.FinishedAt
		run.SetFinishedAt(&finished)
	}

	if err := h.runs.Create(run); err != nil {
		return "", err
	}

	records := make([]*models.SyncRecord, 0, len(result.Rows))
	for i, row := range result.Rows {
		item := models.MediaItem{Title: row.Title, Watched: row.Watched, Total: row.Total}

		var entry *models.Entry
		if row.Matched {
			entry = &models.Entry{ID: row.TrackerID, Title: row.TrackerTitle, Status: row.Status}
		}

		rec := models.NewSyncRecord(run.ID(), i, item, entry)
		rec.SetCreatedAt(run.CreatedAt())
		records = append(records, rec)
	}

	if err := h.records.CreateBatch(ctx, records); err != nil {
		if delErr := h.runs.Delete(run.ID()); delErr != nil {
			return "", fmt.Errorf("%w (cleanup failed: %v)", err, delErr)
		}
		return "", err
	}

	return run.ID(), nil
}
