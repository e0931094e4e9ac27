package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/desertthunder/synchronic/internal/formatter"
	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/services"
)

// FlushHeaders are the columns of the confirmation table printed by [PendingBuffer.Flush].
var FlushHeaders = []string{"MAL ID", "MyAnimeList Title", "Status", "Episodes"}

// StageOption customizes a staged entry.
type StageOption func(*models.Entry)

// WithScore sets the entry score (0 means unscored).
func WithScore(score int) StageOption {
	return func(e *models.Entry) { e.Score = score }
}

// WithTags replaces the default tags.
func WithTags(tags ...string) StageOption {
	return func(e *models.Entry) { e.Tags = slices.Clone(tags) }
}

// WithTitle records the tracker title so Flush does not have to look it up.
func WithTitle(title string) StageOption {
	return func(e *models.Entry) { e.Title = title }
}

// PendingBuffer holds staged tracker updates keyed by entry id until they are flushed.
//
// Entries keep the position of their first staging, so tables and updates follow a stable order.
// A buffer is not safe for concurrent use.
type PendingBuffer struct {
	entries map[int]*models.Entry
	order   []int
	blank   func() *models.Entry
}

// NewPendingBuffer creates a buffer whose drafts start from blank, usually [services.Tracker.Blank].
// A nil blank falls back to [models.NewEntry].
func NewPendingBuffer(blank func() *models.Entry) *PendingBuffer {
	if blank == nil {
		blank = models.NewEntry
	}
	return &PendingBuffer{entries: map[int]*models.Entry{}, blank: blank}
}

// Stage inserts or overwrites the entry for id, starting from a fresh blank draft.
func (b *PendingBuffer) Stage(id, watched int, status models.Status, opts ...StageOption) models.Entry {
	entry := b.blank()
	if entry == nil {
		entry = models.NewEntry()
	}
	entry.Tags = slices.Clone(entry.Tags)
	entry.ID = id
	entry.Episodes = watched
	entry.Status = status
	for _, opt := range opts {
		opt(entry)
	}

	if _, ok := b.entries[id]; !ok {
		b.order = append(b.order, id)
	}
	b.entries[id] = entry
	return *entry
}

// Len returns the number of staged entries.
func (b *PendingBuffer) Len() int {
	return len(b.order)
}

// Get returns a copy of the staged entry for id.
func (b *PendingBuffer) Get(id int) (models.Entry, bool) {
	entry, ok := b.entries[id]
	if !ok {
		return models.Entry{}, false
	}
	return *entry, true
}

// Entries returns copies of the staged entries in staging order.
func (b *PendingBuffer) Entries() []models.Entry {
	entries := make([]models.Entry, 0, len(b.order))
	for _, id := range b.order {
		entries = append(entries, *b.entries[id])
	}
	return entries
}

// Clear drops every staged entry.
func (b *PendingBuffer) Clear() {
	b.entries = map[int]*models.Entry{}
	b.order = nil
}

func (b *PendingBuffer) remove(id int) {
	delete(b.entries, id)
	b.order = slices.DeleteFunc(b.order, func(v int) bool { return v == id })
}

// Flush prints the confirmation table to w in format, then sends every staged entry to tracker in staging order.
//
// Missing titles are looked up with [services.Tracker.Get] before the table is drawn.
// Each entry leaves the buffer once its update succeeds. The first failed update stops the flush and is returned
// along with the entries applied so far; the rest stay staged. With dryRun no updates are sent and the buffer is cleared.
func (b *PendingBuffer) Flush(ctx context.Context, tracker services.Tracker, w io.Writer, format string, dryRun bool) ([]models.Entry, error) {
	entries := b.Entries()

	tbl := formatter.NewTable(FlushHeaders...)
	for i := range entries {
		e := &entries[i]
		if e.Title == "" {
			found, err := tracker.Get(ctx, e.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to look up title for %d: %w", e.ID, err)
			}
			e.Title = found.Title
			b.entries[e.ID].Title = found.Title
		}
		tbl.Append(e.ID, e.Title, e.Status, e.Episodes)
	}

	if err := formatter.Render(w, format, tbl); err != nil {
		return nil, err
	}

	if dryRun {
		b.Clear()
		return entries, nil
	}

	applied := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if err := tracker.Update(ctx, e.ID, &e); err != nil {
			return applied, fmt.Errorf("failed to update %d (%s): %w", e.ID, e.Title, err)
		}
		b.remove(e.ID)
		applied = append(applied, e)
	}
	return applied, nil
}
