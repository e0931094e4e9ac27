// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"testing"

	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/shared"
)

// MockLibrary is a test double for [services.MediaLibrary]
type MockLibrary struct {
	SectionList    []models.Section
	ItemsBySection map[string][]models.MediaItem
	AuthErr        error
	ItemsErr       error
	ItemsCalls     []string
}

func (m *MockLibrary) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.AuthErr
}

func (m *MockLibrary) Sections(ctx context.Context) ([]models.Section, error) {
	return m.SectionList, nil
}

func (m *MockLibrary) Items(ctx context.Context, section string) ([]models.MediaItem, error) {
	m.ItemsCalls = append(m.ItemsCalls, section)
	if m.ItemsErr != nil {
		return nil, m.ItemsErr
	}
	items, ok := m.ItemsBySection[section]
	if !ok {
		return nil, fmt.Errorf("%w: %q", shared.ErrSectionNotFound, section)
	}
	return items, nil
}

func (m *MockLibrary) Name() string { return "mock-library" }

// UpdateCall records one call to [MockTracker.Update]
type UpdateCall struct {
	ID    int
	Entry models.Entry
}

// MockTracker is a test double for [services.Tracker].
//
// Search answers from Results keyed by title; titles in SearchErrs fail. Update fails for ids in UpdateErrs.
// Blank copies BlankEntry when set, and Status fails for names in StatusErrs.
type MockTracker struct {
	Results     map[string][]models.Entry
	Entries     map[int]models.Entry
	SearchErrs  map[string]error
	UpdateErrs  map[int]error
	StatusErrs  map[string]error
	BlankEntry  *models.Entry
	AuthErr     error
	SearchCalls []string
	GetCalls    []int
	StatusCalls []string
	BlankCalls  int
	Updates     []UpdateCall
}

func NewMockTracker() *MockTracker {
	return &MockTracker{
		Results:    map[string][]models.Entry{},
		Entries:    map[int]models.Entry{},
		SearchErrs: map[string]error{},
		UpdateErrs: map[int]error{},
		StatusErrs: map[string]error{},
	}
}

func (m *MockTracker) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.AuthErr
}

func (m *MockTracker) Search(ctx context.Context, title string) ([]models.Entry, error) {
	m.SearchCalls = append(m.SearchCalls, title)
	if err, ok := m.SearchErrs[title]; ok {
		return nil, err
	}
	return m.Results[title], nil
}

func (m *MockTracker) Get(ctx context.Context, id int) (*models.Entry, error) {
	m.GetCalls = append(m.GetCalls, id)
	entry, ok := m.Entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", shared.ErrEntryNotFound, id)
	}
	return &entry, nil
}

func (m *MockTracker) Status(name string) (models.Status, error) {
	m.StatusCalls = append(m.StatusCalls, name)
	if err, ok := m.StatusErrs[name]; ok {
		return "", err
	}
	return models.ParseStatus(name)
}

func (m *MockTracker) Blank() *models.Entry {
	m.BlankCalls++
	if m.BlankEntry == nil {
		return models.NewEntry()
	}
	entry := *m.BlankEntry
	entry.Tags = slices.Clone(m.BlankEntry.Tags)
	return &entry
}

func (m *MockTracker) Update(ctx context.Context, id int, entry *models.Entry) error {
	if err, ok := m.UpdateErrs[id]; ok {
		return err
	}
	m.Updates = append(m.Updates, UpdateCall{ID: id, Entry: *entry})
	return nil
}

func (m *MockTracker) Name() string { return "mock-tracker" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
