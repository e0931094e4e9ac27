package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/shared"
	"golang.org/x/oauth2"
)

type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}

// malTestServer is a fake MyAnimeList API that records list updates.
type malTestServer struct {
	*httptest.Server
	mu      sync.Mutex
	updates map[string]url.Values
}

func newMALTestServer(t *testing.T) *malTestServer {
	t.Helper()

	s := &malTestServer{updates: map[string]url.Values{}}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("client_id") != "test_client_id" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}

		switch r.PostForm.Get("grant_type") {
		case "password":
			if r.PostForm.Get("password") != "hunter2" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
		case "authorization_code":
			if r.PostForm.Get("code_verifier") != "verifier-123" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"issued-token","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`)
	})

	mux.HandleFunc("GET /v2/anime", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("fields") != "num_episodes" {
			t.Errorf("expected fields=num_episodes, got %q", q.Get("fields"))
		}
		if q.Get("q") == "nothing" {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		fmt.Fprint(w, `{"data":[
			{"node":{"id":1,"title":"Cowboy Bebop","num_episodes":26}},
			{"node":{"id":5,"title":"Cowboy Bebop: Tengoku no Tobira","num_episodes":1}}]}`)
	})

	mux.HandleFunc("GET /v2/anime/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "1":
			fmt.Fprint(w, `{"id":1,"title":"Cowboy Bebop","num_episodes":26,
				"my_list_status":{"status":"watching","score":8,"num_episodes_watched":12,"tags":["synchronic"]}}`)
		case "6":
			fmt.Fprint(w, `{"id":6,"title":"Trigun","num_episodes":26}`)
		default:
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("PATCH /v2/anime/{id}/my_list_status", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("expected form content type, got %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.updates[r.PathValue("id")] = r.PostForm
		s.mu.Unlock()
		fmt.Fprint(w, `{"status":"watching"}`)
	})

	mux.HandleFunc("GET /v2/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v2/") {
			if r.Header.Get("X-MAL-CLIENT-ID") != "test_client_id" {
				t.Errorf("expected X-MAL-CLIENT-ID header, got %q", r.Header.Get("X-MAL-CLIENT-ID"))
			}
			if r.Header.Get("Authorization") == "Bearer expired" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		mux.ServeHTTP(w, r)
	}))
	return s
}

func (s *malTestServer) options() MALOptions {
	return MALOptions{
		BaseURL:  s.URL + "/v2",
		AuthURL:  s.URL + "/v1/oauth2/authorize",
		TokenURL: s.URL + "/v1/oauth2/token",
	}
}

func TestMALService(t *testing.T) {
	server := newMALTestServer(t)
	defer server.Close()

	ctx := context.Background()
	credentials := map[string]string{
		"client_id":    "test_client_id",
		"redirect_uri": "http://127.0.0.1:3000/callback",
	}

	t.Run("NewMALService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewMALService(credentials, MALOptions{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "MyAnimeList" {
				t.Errorf("expected service name 'MyAnimeList', got %s", srv.Name())
			}
			if srv.baseURL != malBaseURL {
				t.Errorf("expected default base URL, got %s", srv.baseURL)
			}
			if srv.searchLimit != defaultSearchLimit {
				t.Errorf("expected default search limit, got %d", srv.searchLimit)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewMALService(map[string]string{}, MALOptions{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Clamps Search Limit", func(t *testing.T) {
			srv, err := NewMALService(credentials, MALOptions{SearchLimit: 500})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.searchLimit != maxSearchLimit {
				t.Errorf("expected search limit %d, got %d", maxSearchLimit, srv.searchLimit)
			}
		})
	})

	t.Run("Get AuthURL", func(t *testing.T) {
		srv, err := NewMALService(credentials, MALOptions{})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.GetAuthURL("test_state", "verifier-123")
		for _, want := range []string{
			"myanimelist.net/v1/oauth2/authorize",
			"client_id=test_client_id",
			"state=test_state",
			"code_challenge=verifier-123",
			"code_challenge_method=plain",
		} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL %q should contain %q", authURL, want)
			}
		}

		if srv.GetOAuthConfig().Endpoint.TokenURL != malTokenURL {
			t.Errorf("unexpected token URL %s", srv.GetOAuthConfig().Endpoint.TokenURL)
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("With Access Token", func(t *testing.T) {
			srv, _ := NewMALService(credentials, server.options())
			if err := srv.Authenticate(ctx, map[string]string{"access_token": "abc"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			token, err := srv.Token()
			if err != nil {
				t.Fatalf("expected token, got %v", err)
			}
			if token.AccessToken != "abc" {
				t.Errorf("expected access token 'abc', got %s", token.AccessToken)
			}
		})

		t.Run("With Password", func(t *testing.T) {
			srv, _ := NewMALService(credentials, server.options())
			err := srv.Authenticate(ctx, map[string]string{"username": "spike", "password": "hunter2"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			token, _ := srv.Token()
			if token.AccessToken != "issued-token" {
				t.Errorf("expected issued token, got %s", token.AccessToken)
			}
		})

		t.Run("Wrong Password", func(t *testing.T) {
			srv, _ := NewMALService(credentials, server.options())
			err := srv.Authenticate(ctx, map[string]string{"username": "spike", "password": "wrong"})
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("With Auth Code And Verifier", func(t *testing.T) {
			srv, _ := NewMALService(credentials, server.options())
			err := srv.Authenticate(ctx, map[string]string{"auth_code": "code", "code_verifier": "verifier-123"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("With Saved Token", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			if err := shared.SaveToken(path, &oauth2.Token{AccessToken: "saved"}); err != nil {
				t.Fatalf("failed to save token: %v", err)
			}

			srv, _ := NewMALService(credentials, server.options())
			if err := srv.Authenticate(ctx, map[string]string{"token_path": path}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			token, _ := srv.Token()
			if token.AccessToken != "saved" {
				t.Errorf("expected saved token, got %s", token.AccessToken)
			}
		})

		t.Run("Missing Credentials", func(t *testing.T) {
			srv, _ := NewMALService(credentials, server.options())
			err := srv.Authenticate(ctx, map[string]string{"token_path": filepath.Join(t.TempDir(), "missing.json")})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Refresh Callback", func(t *testing.T) {
			srv, _ := NewMALService(credentials, server.options())
			var got []string
			srv.SetTokenRefreshCallback(func(token *oauth2.Token) {
				got = append(got, token.AccessToken)
			})
			if err := srv.Authenticate(ctx, map[string]string{"access_token": "abc"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, err := srv.Search(ctx, "Cowboy Bebop"); err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if _, err := srv.Token(); err != nil {
				t.Fatalf("token failed: %v", err)
			}
			if len(got) != 1 || got[0] != "abc" {
				t.Errorf("expected a single callback with 'abc', got %v", got)
			}
		})
	})

	t.Run("Requires Authentication", func(t *testing.T) {
		srv, _ := NewMALService(credentials, server.options())
		if _, err := srv.Search(ctx, "Trigun"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if _, err := srv.Token(); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	srv, err := NewMALService(credentials, server.options())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := srv.Authenticate(ctx, map[string]string{"access_token": "abc"}); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}

	t.Run("Search", func(t *testing.T) {
		t.Run("Returns Candidates In Order", func(t *testing.T) {
			entries, err := srv.Search(ctx, "Cowboy Bebop")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(entries))
			}
			if entries[0].ID != 1 || entries[0].Title != "Cowboy Bebop" || entries[0].NumEpisodes != 26 {
				t.Errorf("unexpected first entry: %+v", entries[0])
			}
			if entries[1].ID != 5 {
				t.Errorf("expected second entry id 5, got %d", entries[1].ID)
			}
		})

		t.Run("No Results", func(t *testing.T) {
			entries, err := srv.Search(ctx, "nothing")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("expected no entries, got %d", len(entries))
			}
		})

		t.Run("Empty Title", func(t *testing.T) {
			if _, err := srv.Search(ctx, "  "); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("With List Status", func(t *testing.T) {
			entry, err := srv.Get(ctx, 1)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if entry.Status != models.StatusWatching || entry.Episodes != 12 || entry.Score != 8 {
				t.Errorf("unexpected entry: %+v", entry)
			}
		})

		t.Run("Without List Status", func(t *testing.T) {
			entry, err := srv.Get(ctx, 6)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if entry.Title != "Trigun" || entry.Status != "" {
				t.Errorf("unexpected entry: %+v", entry)
			}
		})

		t.Run("Not Found", func(t *testing.T) {
			if _, err := srv.Get(ctx, 999); !errors.Is(err, shared.ErrEntryNotFound) {
				t.Errorf("expected ErrEntryNotFound, got %v", err)
			}
		})

		t.Run("Invalid ID", func(t *testing.T) {
			if _, err := srv.Get(ctx, 0); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("Sends Form Fields", func(t *testing.T) {
			entry := srv.Blank()
			entry.Status = models.StatusCompleted
			entry.Episodes = 26

			if err := srv.Update(ctx, 1, entry); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			server.mu.Lock()
			form := server.updates["1"]
			server.mu.Unlock()

			if form.Get("status") != "completed" {
				t.Errorf("expected status completed, got %q", form.Get("status"))
			}
			if form.Get("num_watched_episodes") != "26" {
				t.Errorf("expected 26 episodes, got %q", form.Get("num_watched_episodes"))
			}
			if form.Get("score") != "0" {
				t.Errorf("expected score 0, got %q", form.Get("score"))
			}
			if form.Get("tags") != "synchronic,auto-sync,plex-sync" {
				t.Errorf("unexpected tags %q", form.Get("tags"))
			}
		})

		t.Run("Rejects Invalid Entry", func(t *testing.T) {
			entry := srv.Blank()
			entry.Status = "rewatching"
			if err := srv.Update(ctx, 1, entry); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})

		t.Run("Nil Entry", func(t *testing.T) {
			if err := srv.Update(ctx, 1, nil); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("Status", func(t *testing.T) {
		s, err := srv.Status("Completed")
		if err != nil || s != models.StatusCompleted {
			t.Errorf("expected completed, got %v (%v)", s, err)
		}
		if _, err := srv.Status("binging"); !errors.Is(err, shared.ErrInvalidStatus) {
			t.Errorf("expected ErrInvalidStatus, got %v", err)
		}
	})

	t.Run("Error Mapping", func(t *testing.T) {
		t.Run("Unauthorized", func(t *testing.T) {
			expired, _ := NewMALService(credentials, server.options())
			if err := expired.Authenticate(ctx, map[string]string{"access_token": "expired"}); err != nil {
				t.Fatalf("failed to authenticate: %v", err)
			}
			if _, err := expired.Get(ctx, 1); !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("Service Unavailable", func(t *testing.T) {
			err := srv.doRequest(ctx, http.MethodGet, "/broken", nil, nil)
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	})

	t.Run("Tracker Interface", func(t *testing.T) {
		var _ Tracker = srv
		var _ OAuthService = srv
	})

	t.Run("refreshableTokenSource", func(t *testing.T) {
		t.Run("calls callback when token changes", func(t *testing.T) {
			var captured []string
			mockSource := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}
			source := &refreshableTokenSource{
				source:   mockSource,
				callback: func(token *oauth2.Token) { captured = append(captured, token.AccessToken) },
			}

			source.Token()
			source.Token()
			mockSource.token = &oauth2.Token{AccessToken: "token2"}
			source.Token()

			if len(captured) != 2 || captured[0] != "token1" || captured[1] != "token2" {
				t.Errorf("expected [token1 token2], got %v", captured)
			}
		})

		t.Run("handles nil callback gracefully", func(t *testing.T) {
			source := &refreshableTokenSource{source: &mockTokenSource{token: &oauth2.Token{AccessToken: "t"}}}
			token, err := source.Token()
			if err != nil || token.AccessToken != "t" {
				t.Errorf("expected token 't', got %v (%v)", token, err)
			}
		})

		t.Run("propagates source errors", func(t *testing.T) {
			source := &refreshableTokenSource{
				source:   &mockTokenSource{err: errors.New("token source error")},
				callback: func(*oauth2.Token) { t.Error("callback should not be called on error") },
			}
			if _, err := source.Token(); err == nil || !strings.Contains(err.Error(), "token source error") {
				t.Errorf("expected source error, got %v", err)
			}
		})
	})
}
