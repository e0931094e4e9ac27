package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/repositories"
	"github.com/desertthunder/synchronic/internal/services"
	"github.com/desertthunder/synchronic/internal/shared"
	tu "github.com/desertthunder/synchronic/internal/testing"
)

type harness struct {
	config  *shared.Config
	library *tu.MockLibrary
	tracker *tu.MockTracker
	output  *bytes.Buffer
	runner  *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	config := shared.DefaultConfig()
	config.Plex.Section = "Anime"
	config.MAL.ClientID = "client"
	config.Output.TableFormat = "plain"
	config.Database.Path = filepath.Join(t.TempDir(), "history.db")

	library := &tu.MockLibrary{
		SectionList: []models.Section{
			{Key: "1", Title: "Anime", Type: "show"},
			{Key: "2", Title: "Movies", Type: "movie"},
		},
		ItemsBySection: map[string][]models.MediaItem{
			"Anime": {
				{Title: "Show A", Year: 2020, Watched: 12, Total: 12},
				{Title: "Show B", Year: 2021, Watched: 0, Total: 3},
			},
			"Cartoons": {},
		},
	}

	tracker := tu.NewMockTracker()
	tracker.Results["Show A"] = []models.Entry{{ID: 42, Title: "Show A TV", NumEpisodes: 12}}

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:   config,
		Library:  library,
		Tracker:  tracker,
		Logger:   shared.NewLogger(&bytes.Buffer{}),
		Output:   output,
		Progress: &bytes.Buffer{},
	})

	return &harness{config: config, library: library, tracker: tracker, output: output, runner: runner}
}

func (h *harness) run(args ...string) error {
	return newApp(h.runner).Run(context.Background(), append([]string{"synchronic"}, args...))
}

func TestSyncCommand(t *testing.T) {
	t.Run("Default Action Syncs", func(t *testing.T) {
		h := newHarness(t)

		if err := h.run(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(h.tracker.Updates) != 1 {
			t.Fatalf("expected 1 update, got %d", len(h.tracker.Updates))
		}
		if u := h.tracker.Updates[0]; u.ID != 42 || u.Entry.Status != models.StatusCompleted || u.Entry.Episodes != 12 {
			t.Errorf("unexpected update %+v", u)
		}

		out := h.output.String()
		for _, want := range []string{"Show A TV", "Show B", models.UnmatchedTitle, "Sync Complete!", "Updated: 1"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("Dry Run", func(t *testing.T) {
		h := newHarness(t)

		if err := h.run("--dry-run", "sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(h.tracker.Updates) != 0 {
			t.Errorf("expected no updates, got %d", len(h.tracker.Updates))
		}
		out := h.output.String()
		if !strings.Contains(out, "Dry Run Complete") || !strings.Contains(out, "Staged (not sent): 1") {
			t.Errorf("expected dry run summary, got:\n%s", out)
		}
	})

	t.Run("Section And Format Flags", func(t *testing.T) {
		h := newHarness(t)

		if err := h.run("--section", "Cartoons", "--format", "csv", "sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(h.library.ItemsCalls) != 1 || h.library.ItemsCalls[0] != "Cartoons" {
			t.Errorf("expected Cartoons to be loaded, got %v", h.library.ItemsCalls)
		}
		if !strings.Contains(h.output.String(), "Plex Title,MyAnimeList Title,# Watched,# Total") {
			t.Errorf("expected csv summary header, got:\n%s", h.output.String())
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		h := newHarness(t)
		h.config.Overrides["Show A"] = 1
		h.tracker.Results["Show A"] = append(h.tracker.Results["Show A"], models.Entry{ID: 43, Title: "Show A Movie"})

		if err := h.run("sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(h.tracker.Updates) != 1 || h.tracker.Updates[0].ID != 43 {
			t.Errorf("expected override candidate 43, got %+v", h.tracker.Updates)
		}
	})

	t.Run("Records History", func(t *testing.T) {
		h := newHarness(t)
		h.config.Database.Enabled = true

		if err := h.run("sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		db, err := shared.NewDatabase(h.config.Database.Path)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		runs, err := repositories.NewSyncRunRepository(db).List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 || runs[0].ItemsMatched() != 1 || runs[0].ItemsUnmatched() != 1 {
			t.Fatalf("expected one recorded run, got %d", len(runs))
		}
		if !strings.Contains(h.output.String(), "Recorded as run "+runs[0].ID()) {
			t.Errorf("expected run id in summary, got:\n%s", h.output.String())
		}
	})

	t.Run("Errors", func(t *testing.T) {
		tests := []struct {
			name   string
			setup  func(h *harness)
			args   []string
			target error
		}{
			{
				name:   "invalid config",
				setup:  func(h *harness) { h.config.Plex.Token = "" },
				target: shared.ErrInvalidConfig,
			},
			{
				name:   "unsupported format",
				args:   []string{"--format", "xml"},
				target: shared.ErrUnsupportedFormat,
			},
			{
				name:   "library auth",
				setup:  func(h *harness) { h.library.AuthErr = shared.ErrAuthFailed },
				target: shared.ErrAuthFailed,
			},
			{
				name:   "tracker credentials",
				setup:  func(h *harness) { h.tracker.AuthErr = shared.ErrMissingCredentials },
				target: shared.ErrMissingCredentials,
			},
			{
				name:   "unknown section",
				args:   []string{"--section", "Nope"},
				target: shared.ErrSectionNotFound,
			},
			{
				name:   "update failure",
				setup:  func(h *harness) { h.tracker.UpdateErrs[42] = shared.ErrServiceUnavailable },
				target: shared.ErrServiceUnavailable,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := newHarness(t)
				if tt.setup != nil {
					tt.setup(h)
				}

				err := h.run(append(tt.args, "sync")...)
				if !errors.Is(err, tt.target) {
					t.Errorf("expected %v, got %v", tt.target, err)
				}
			})
		}
	})

	t.Run("Missing Credentials Hint", func(t *testing.T) {
		h := newHarness(t)
		h.tracker.AuthErr = shared.ErrMissingCredentials

		err := h.run("sync")
		if err == nil || !strings.Contains(err.Error(), "synchronic mal auth") {
			t.Errorf("expected hint to run mal auth, got %v", err)
		}
	})
}

func TestPlexCommands(t *testing.T) {
	t.Run("Sections", func(t *testing.T) {
		h := newHarness(t)

		if err := h.run("--format", "csv", "plex", "sections"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := "Key,Title,Type\n1,Anime,show\n2,Movies,movie\n"
		if h.output.String() != want {
			t.Errorf("expected %q, got %q", want, h.output.String())
		}
	})

	t.Run("Items", func(t *testing.T) {
		h := newHarness(t)

		if err := h.run("--format", "csv", "plex", "items"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := "Title,Year,# Watched,# Total,Status\n" +
			"Show A,2020,12,12,completed\n" +
			"Show B,2021,0,3,plan_to_watch\n"
		if h.output.String() != want {
			t.Errorf("expected %q, got %q", want, h.output.String())
		}
	})

	t.Run("Items Without Section", func(t *testing.T) {
		h := newHarness(t)
		h.config.Plex.Section = ""

		if err := h.run("plex", "items"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if len(h.library.ItemsCalls) != 0 {
			t.Error("expected no library request")
		}
	})
}

func TestMALCommands(t *testing.T) {
	t.Run("Search", func(t *testing.T) {
		h := newHarness(t)
		h.tracker.Results["Fate/Zero"] = []models.Entry{
			{ID: 10087, Title: "Fate/Zero", NumEpisodes: 13},
			{ID: 11741, Title: "Fate/Zero 2nd Season", NumEpisodes: 12},
		}

		if err := h.run("--format", "csv", "mal", "search", "Fate/Zero"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := "#,MAL ID,Title,Episodes\n0,10087,Fate/Zero,13\n1,11741,Fate/Zero 2nd Season,12\n"
		if h.output.String() != want {
			t.Errorf("expected %q, got %q", want, h.output.String())
		}
	})

	t.Run("Search Without Query", func(t *testing.T) {
		h := newHarness(t)
		if err := h.run("mal", "search"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Search Read Failure", func(t *testing.T) {
		h := newHarness(t)
		client := &http.Client{Transport: tu.NewMockRoundTripper(&http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       &tu.FCloser{},
		}, nil)}

		mal, err := services.NewMALService(map[string]string{"client_id": "client"}, services.MALOptions{HTTPClient: client})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		h.runner.tracker = mal
		h.config.MAL.TokenPath = ""
		h.config.MAL.Username = ""
		h.config.MAL.Password = ""

		// No credentials at all, so auth fails before any request.
		if err := h.run("mal", "search", "x"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials, got %v", err)
		}

		if err := mal.Authenticate(context.Background(), map[string]string{"access_token": "abc"}); err != nil {
			t.Fatalf("failed to authenticate: %v", err)
		}
		if _, err := mal.Search(context.Background(), "x"); err == nil {
			t.Error("expected body read error")
		}
	})

	t.Run("Auth", func(t *testing.T) {
		var gotVerifier string
		tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			gotVerifier = r.Form.Get("code_verifier")
			if r.Form.Get("code") != "auth-code" || r.Form.Get("grant_type") != "authorization_code" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "mal-access",
				"refresh_token": "mal-refresh",
				"token_type":    "Bearer",
				"expires_in":    2678400,
			})
		}))
		defer tokens.Close()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to reserve port: %v", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		h := newHarness(t)
		h.config.MAL.TokenPath = filepath.Join(t.TempDir(), "auth", "mal.json")
		h.config.MAL.RedirectURI = fmt.Sprintf("http://127.0.0.1:%d/callback", port)
		h.config.Server.Host = "127.0.0.1"
		h.config.Server.Port = port

		mal, err := services.NewMALService(h.config.MAL.Map(), services.MALOptions{
			AuthURL:  "https://myanimelist.example/authorize",
			TokenURL: tokens.URL,
		})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		h.runner.tracker = mal

		var challenge string
		h.runner.openBrowser = func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			q := u.Query()
			challenge = q.Get("code_challenge")
			if q.Get("code_challenge_method") != "plain" {
				return fmt.Errorf("unexpected challenge method %q", q.Get("code_challenge_method"))
			}

			callback := q.Get("redirect_uri") + "?state=" + url.QueryEscape(q.Get("state")) + "&code=auth-code"
			resp, err := http.Get(callback)
			if err != nil {
				return err
			}
			resp.Body.Close()
			return nil
		}

		if err := h.run("mal", "auth"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if challenge == "" || gotVerifier != challenge {
			t.Errorf("expected verifier %q to match challenge %q", gotVerifier, challenge)
		}

		tu.AssertFileExists(t, h.config.MAL.TokenPath)
		token, err := shared.LoadToken(h.config.MAL.TokenPath)
		if err != nil {
			t.Fatalf("failed to load token: %v", err)
		}
		if token.AccessToken != "mal-access" || token.RefreshToken != "mal-refresh" {
			t.Errorf("unexpected token %+v", token)
		}
		if !strings.Contains(h.output.String(), "Authorization successful") {
			t.Errorf("expected success message, got:\n%s", h.output.String())
		}
	})

	t.Run("Auth Timeout", func(t *testing.T) {
		h := newHarness(t)
		h.config.MAL.TokenPath = filepath.Join(t.TempDir(), "mal.json")
		h.config.Server.Host = "127.0.0.1"
		h.config.Server.Port = 0

		mal, err := services.NewMALService(h.config.MAL.Map(), services.MALOptions{})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		h.runner.tracker = mal
		h.runner.authTimeout = 50 * time.Millisecond
		h.runner.openBrowser = func(string) error { return errors.New("no browser") }

		err = h.run("mal", "auth")
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if !strings.Contains(h.output.String(), "Please open this URL") {
			t.Errorf("expected manual URL instructions, got:\n%s", h.output.String())
		}
	})

	t.Run("Auth Requires OAuth Tracker", func(t *testing.T) {
		h := newHarness(t)
		h.config.MAL.TokenPath = filepath.Join(t.TempDir(), "mal.json")

		if err := h.run("mal", "auth"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Auth Requires Token Path", func(t *testing.T) {
		h := newHarness(t)
		h.config.MAL.TokenPath = ""

		if err := h.run("mal", "auth"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("Config", func(t *testing.T) {
		dir := t.TempDir()
		wd := tu.MustGetwd(t)
		tu.MustChdir(t, dir)
		defer tu.MustChdir(t, wd)

		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{}), Output: &bytes.Buffer{}})
		if err := newApp(runner).Run(context.Background(), []string{"synchronic", "setup", "config"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		path := filepath.Join(dir, defaultConfigPath)
		tu.AssertFileExists(t, path)
		if !strings.Contains(tu.MustReadFile(t, path), "[plex]") {
			t.Error("expected example config content")
		}

		again := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{}), Output: &bytes.Buffer{}})
		if err := newApp(again).Run(context.Background(), []string{"synchronic", "setup", "config"}); err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("Database", func(t *testing.T) {
		h := newHarness(t)

		if err := h.run("setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, h.config.Database.Path)
		if !strings.Contains(h.output.String(), "database.enabled = true") {
			t.Errorf("expected hint to enable history, got %q", h.output.String())
		}
	})
}

func TestHistoryCommands(t *testing.T) {
	h := newHarness(t)
	h.config.Database.Enabled = true

	if err := h.run("sync"); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if err := h.run("--dry-run", "sync"); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	db, err := shared.NewDatabase(h.config.Database.Path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	runs, err := repositories.NewSyncRunRepository(db).List(map[string]any{})
	db.Close()
	if err != nil || len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d (%v)", len(runs), err)
	}

	t.Run("List", func(t *testing.T) {
		h.output.Reset()
		if err := h.run("--format", "csv", "history", "list", "--limit", "1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		lines := strings.Split(strings.TrimSpace(h.output.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected header and one run, got %q", h.output.String())
		}
		if !strings.HasPrefix(lines[1], "2,"+runs[0].ID()+",Anime,") || !strings.HasSuffix(lines[1], ",true") {
			t.Errorf("expected newest (dry) run first, got %q", lines[1])
		}
	})

	t.Run("Show", func(t *testing.T) {
		h.output.Reset()
		if err := h.run("--format", "csv", "history", "show", "--id", runs[1].ID()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := h.output.String()
		for _, want := range []string{
			"Run #1 (Anime)",
			"Plex Title,MyAnimeList Title,MAL ID,# Watched,# Total,Status",
			"Show A,Show A TV,42,12,12,completed",
			"Show B,N/A,,0,3,",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("Show Unknown Run", func(t *testing.T) {
		if err := h.run("history", "show", "--id", "missing"); err == nil {
			t.Error("expected not found error")
		}
	})
}
