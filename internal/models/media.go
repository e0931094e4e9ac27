package models

import (
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/synchronic/internal/shared"
)

// Section represents a Plex library section
type Section struct {
	Key   string
	Title string
	Type  string // show, movie, artist, photo
}

// MediaItem represents a show in a Plex library section
type MediaItem struct {
	RatingKey string
	Title     string
	Year      int
	Watched   int // Episodes with at least one view
	Total     int // Episodes in the library, 0 when unknown
}

// Status is a MyAnimeList list status, stored with its API wire name.
type Status string

const (
	StatusNotStarted Status = "plan_to_watch"
	StatusWatching   Status = "watching"
	StatusCompleted  Status = "completed"
	StatusOnHold     Status = "on_hold"
	StatusDropped    Status = "dropped"
)

var statusAliases = map[string]Status{
	"plan_to_watch": StatusNotStarted,
	"plantowatch":   StatusNotStarted,
	"not_started":   StatusNotStarted,
	"not-started":   StatusNotStarted,
	"watching":      StatusWatching,
	"completed":     StatusCompleted,
	"on_hold":       StatusOnHold,
	"onhold":        StatusOnHold,
	"dropped":       StatusDropped,
}

// ParseStatus resolves a status by its wire name or a common alias (case-insensitive).
func ParseStatus(name string) (Status, error) {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", shared.ErrInvalidStatus, name)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusWatching, StatusCompleted, StatusOnHold, StatusDropped:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// DefaultTags are attached to every entry the sync writes.
var DefaultTags = []string{"synchronic", "auto-sync", "plex-sync"}

// Entry represents a MyAnimeList anime and the user's list status for it
type Entry struct {
	ID          int
	Title       string
	Status      Status
	Episodes    int // Episodes watched
	Score       int // 0 (unscored) through 10
	Tags        []string
	NumEpisodes int // Episode count reported by MyAnimeList, 0 when unknown
}

// NewEntry returns a blank entry with the default score and tags.
func NewEntry() *Entry {
	return &Entry{Score: 0, Tags: slices.Clone(DefaultTags)}
}

// Validate checks the fields MyAnimeList would reject.
func (e *Entry) Validate() error {
	if e.ID <= 0 {
		return fmt.Errorf("entry id must be positive, got %d", e.ID)
	}
	if e.Episodes < 0 {
		return fmt.Errorf("episodes must not be negative, got %d", e.Episodes)
	}
	if e.Score < 0 || e.Score > 10 {
		return fmt.Errorf("score must be between 0 and 10, got %d", e.Score)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: %q", shared.ErrInvalidStatus, e.Status)
	}
	return nil
}
