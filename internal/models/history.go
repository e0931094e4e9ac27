package models

import (
	"fmt"
	"time"
)

// SyncRun is the persisted summary of one sync driver execution.
type SyncRun struct {
	id             string
	sequence       int
	section        string
	dryRun         bool
	itemsTotal     int
	itemsMatched   int
	itemsUnmatched int
	entriesUpdated int
	startedAt      time.Time
	finishedAt     *time.Time
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewSyncRun creates a run for the given section that started at startedAt.
func NewSyncRun(sequence int, section string, dryRun bool, startedAt time.Time) *SyncRun {
	now := time.Now()
	return &SyncRun{
		sequence:  sequence,
		section:   section,
		dryRun:    dryRun,
		startedAt: startedAt,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *SyncRun) ID() string             { return r.id }
func (r *SyncRun) Sequence() int          { return r.sequence }
func (r *SyncRun) Section() string        { return r.section }
func (r *SyncRun) DryRun() bool           { return r.dryRun }
func (r *SyncRun) ItemsTotal() int        { return r.itemsTotal }
func (r *SyncRun) ItemsMatched() int      { return r.itemsMatched }
func (r *SyncRun) ItemsUnmatched() int    { return r.itemsUnmatched }
func (r *SyncRun) EntriesUpdated() int    { return r.entriesUpdated }
func (r *SyncRun) StartedAt() time.Time   { return r.startedAt }
func (r *SyncRun) FinishedAt() *time.Time { return r.finishedAt }
func (r *SyncRun) CreatedAt() time.Time   { return r.createdAt }
func (r *SyncRun) UpdatedAt() time.Time   { return r.updatedAt }
func (r *SyncRun) DeletedAt() *time.Time  { return r.deletedAt }

func (r *SyncRun) SetID(id string)               { r.id = id }
func (r *SyncRun) SetSequence(sequence int)      { r.sequence = sequence }
func (r *SyncRun) SetUpdatedAt(t time.Time)      { r.updatedAt = t }
func (r *SyncRun) SetCreatedAt(t time.Time)      { r.createdAt = t }
func (r *SyncRun) SetDeletedAt(t *time.Time)     { r.deletedAt = t }
func (r *SyncRun) SetFinishedAt(t *time.Time)    { r.finishedAt = t }
func (r *SyncRun) SetEntriesUpdated(updated int) { r.entriesUpdated = updated }

// SetCounts records how many items were scanned and how they resolved.
func (r *SyncRun) SetCounts(total, matched, unmatched int) {
	r.itemsTotal = total
	r.itemsMatched = matched
	r.itemsUnmatched = unmatched
}

// Duration returns the elapsed time of a finished run, or zero while it is still running.
func (r *SyncRun) Duration() time.Duration {
	if r.finishedAt == nil {
		return 0
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Validate checks required fields and count consistency.
func (r *SyncRun) Validate() error {
	if r.section == "" {
		return fmt.Errorf("section is required")
	}
	if r.startedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	if r.itemsMatched+r.itemsUnmatched != r.itemsTotal {
		return fmt.Errorf("matched (%d) + unmatched (%d) must equal total (%d)", r.itemsMatched, r.itemsUnmatched, r.itemsTotal)
	}
	if r.finishedAt != nil && r.finishedAt.Before(r.startedAt) {
		return fmt.Errorf("finished_at must not be before started_at")
	}
	return nil
}

// SyncRecord is the persisted outcome of one media item within a [SyncRun].
type SyncRecord struct {
	id           string
	runID        string
	position     int
	mediaTitle   string
	trackerID    int // 0 when unmatched
	trackerTitle string
	watched      int
	total        int
	status       Status
	createdAt    time.Time
}

// NewSyncRecord creates a record for the media item at position within a run.
func NewSyncRecord(runID string, position int, item MediaItem, entry *Entry) *SyncRecord {
	rec := &SyncRecord{
		runID:        runID,
		position:     position,
		mediaTitle:   item.Title,
		trackerTitle: UnmatchedTitle,
		watched:      item.Watched,
		total:        item.Total,
		createdAt:    time.Now(),
	}
	if entry != nil {
		rec.trackerID = entry.ID
		rec.trackerTitle = entry.Title
		rec.status = entry.Status
	}
	return rec
}

// UnmatchedTitle marks a media item that resolved to no tracking entry.
const UnmatchedTitle = "N/A"

func (r *SyncRecord) ID() string           { return r.id }
func (r *SyncRecord) RunID() string        { return r.runID }
func (r *SyncRecord) Position() int        { return r.position }
func (r *SyncRecord) MediaTitle() string   { return r.mediaTitle }
func (r *SyncRecord) TrackerID() int       { return r.trackerID }
func (r *SyncRecord) TrackerTitle() string { return r.trackerTitle }
func (r *SyncRecord) Watched() int         { return r.watched }
func (r *SyncRecord) Total() int           { return r.total }
func (r *SyncRecord) Status() Status       { return r.status }
func (r *SyncRecord) Matched() bool        { return r.trackerID > 0 }
func (r *SyncRecord) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the creation time; records are immutable.
func (r *SyncRecord) UpdatedAt() time.Time { return r.createdAt }

func (r *SyncRecord) SetID(id string)          { r.id = id }
func (r *SyncRecord) SetRunID(runID string)    { r.runID = runID }
func (r *SyncRecord) SetCreatedAt(t time.Time) { r.createdAt = t }

// Validate checks required fields.
func (r *SyncRecord) Validate() error {
	if r.runID == "" {
		return fmt.Errorf("run_id is required")
	}
	if r.mediaTitle == "" {
		return fmt.Errorf("media title is required")
	}
	if r.watched < 0 || r.total < 0 {
		return fmt.Errorf("episode counts must not be negative")
	}
	if r.Matched() && !r.status.Valid() {
		return fmt.Errorf("matched record has unknown status %q", r.status)
	}
	return nil
}
