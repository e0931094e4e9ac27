package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/shared"
)

const syncRecordColumns = `
	id, run_id, position, media_title, tracker_id, tracker_title,
	watched, total, status, created_at`

// SyncRecordRepository stores the per-item outcomes of a run.
//
// Records are written once, in a batch, and never updated.
type SyncRecordRepository struct {
	db *sql.DB
}

// NewSyncRecordRepository creates a new SyncRecordRepository with the given database connection
func NewSyncRecordRepository(db *sql.DB) *SyncRecordRepository {
	return &SyncRecordRepository{db: db}
}

// CreateBatch inserts all records in a single transaction, assigning each a generated ID.
func (r *SyncRecordRepository) CreateBatch(ctx context.Context, records []*models.SyncRecord) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_records (`+syncRecordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		id := shared.GenerateID()

		var trackerID any
		if rec.Matched() {
			trackerID = rec.TrackerID()
		}

		_, err := stmt.ExecContext(ctx,
			id,
			rec.RunID(),
			rec.Position(),
			rec.MediaTitle(),
			trackerID,
			rec.TrackerTitle(),
			rec.Watched(),
			rec.Total(),
			rec.Status().String(),
			rec.CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record for %q: %w", rec.MediaTitle(), err)
		}
		rec.SetID(id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// Get retrieves a record by ID
func (r *SyncRecordRepository) Get(id string) (*models.SyncRecord, error) {
	query := `SELECT ` + syncRecordColumns + ` FROM sync_records WHERE id = ?`

	rec, err := r.scan(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record not found: %s", id)
	}
	return rec, err
}

// ListByRun retrieves the records of a run in library order
func (r *SyncRecordRepository) ListByRun(runID string) ([]*models.SyncRecord, error) {
	return r.List(map[string]any{"run_id": runID})
}

// List retrieves records matching the given criteria.
//
// Supported criteria: "run_id" (string), "tracker_id" (int), "matched" (bool).
func (r *SyncRecordRepository) List(criteria map[string]any) ([]*models.SyncRecord, error) {
	query := `SELECT ` + syncRecordColumns + ` FROM sync_records WHERE 1 = 1`
	args := []any{}

	if runID, ok := criteria["run_id"].(string); ok && runID != "" {
		query += " AND run_id = ?"
		args = append(args, runID)
	}

	if trackerID, ok := criteria["tracker_id"].(int); ok && trackerID > 0 {
		query += " AND tracker_id = ?"
		args = append(args, trackerID)
	}

	if matched, ok := criteria["matched"].(bool); ok {
		if matched {
			query += " AND tracker_id IS NOT NULL"
		} else {
			query += " AND tracker_id IS NULL"
		}
	}

	query += " ORDER BY created_at ASC, position ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*models.SyncRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// scan reads one row into a [models.SyncRecord]. [sql.ErrNoRows] is returned unwrapped.
func (r *SyncRecordRepository) scan(row scanner) (*models.SyncRecord, error) {
	var (
		id           string
		runID        string
		position     int
		mediaTitle   string
		trackerID    sql.NullInt64
		trackerTitle string
		watched      int
		total        int
		status       string
		createdAt    time.Time
	)

	err := row.Scan(&id, &runID, &position, &mediaTitle, &trackerID, &trackerTitle, &watched, &total, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	item := models.MediaItem{Title: mediaTitle, Watched: watched, Total: total}

	var entry *models.Entry
	if trackerID.Valid {
		entry = &models.Entry{ID: int(trackerID.Int64), Title: trackerTitle, Status: models.Status(status)}
	}

	rec := models.NewSyncRecord(runID, position, item, entry)
	rec.SetID(id)
	rec.SetCreatedAt(createdAt)
	return rec, nil
}
