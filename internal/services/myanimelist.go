// MyAnimeList API implementation of [Tracker]
//
// MyAnimeList response types based on https://myanimelist.net/apiconfig/references/api/v2
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	malAuthURL  = "https://myanimelist.net/v1/oauth2/authorize"
	malTokenURL = "https://myanimelist.net/v1/oauth2/token"
	malBaseURL  = "https://api.myanimelist.net/v2"

	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// MALAnime represents an anime node.
type MALAnime struct {
	ID           int            `json:"id"`
	Title        string         `json:"title"`
	NumEpisodes  int            `json:"num_episodes"`
	MyListStatus *MALListStatus `json:"my_list_status,omitempty"`
}

// MALListStatus represents the user's list entry for an anime.
type MALListStatus struct {
	Status             string   `json:"status"`
	Score              int      `json:"score"`
	NumEpisodesWatched int      `json:"num_episodes_watched"`
	Tags               []string `json:"tags"`
	UpdatedAt          string   `json:"updated_at"`
}

// MALSearchResponse represents a page of GET /anime results.
type MALSearchResponse struct {
	Data []struct {
		Node MALAnime `json:"node"`
	} `json:"data"`
}

// MALOptions configures endpoints and request pacing for [MALService].
type MALOptions struct {
	BaseURL           string
	AuthURL           string
	TokenURL          string
	SearchLimit       int
	RequestsPerSecond float64 // 0 or less disables the limiter
	HTTPClient        *http.Client
}

// MALService implements the Tracker interface for MyAnimeList.
// Uses [oauth2] for authentication and paces every request with a [rate.Limiter].
type MALService struct {
	config         *oauth2.Config
	tokens         oauth2.TokenSource
	baseClient     *http.Client
	httpClient     *http.Client
	limiter        *rate.Limiter
	baseURL        string
	searchLimit    int
	credentials    map[string]string
	onTokenRefresh func(*oauth2.Token)
}

// refreshableTokenSource wraps a token source and reports every new access token to callback.
type refreshableTokenSource struct {
	mu       sync.Mutex
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	last     string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if token.AccessToken != r.last {
		r.last = token.AccessToken
		if r.callback != nil {
			r.callback(token)
		}
	}
	return token, nil
}

// NewMALService creates a new MyAnimeList service with the given API client credentials.
func NewMALService(credentials map[string]string, opts MALOptions) (*MALService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	if opts.BaseURL == "" {
		opts.BaseURL = malBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = malAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = malTokenURL
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}
	if opts.SearchLimit > maxSearchLimit {
		opts.SearchLimit = maxSearchLimit
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: credentials["client_secret"],
		RedirectURL:  credentials["redirect_uri"],
		Endpoint: oauth2.Endpoint{
			AuthURL:   opts.AuthURL,
			TokenURL:  opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &MALService{
		config:      config,
		baseClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(limit, 1),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		searchLimit: opts.SearchLimit,
		credentials: credentials,
	}, nil
}

func (m *MALService) Name() string {
	return "MyAnimeList"
}

// Authenticate obtains a user token. Credentials are tried in order:
//  1. "access_token"
//  2. a saved token at "token_path"
//  3. "auth_code" with its "code_verifier"
//  4. "username" and "password" (resource owner password grant)
func (m *MALService) Authenticate(ctx context.Context, credentials map[string]string) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.baseClient)

	token, err := m.obtainToken(ctx, credentials)
	if err != nil {
		return err
	}

	m.tokens = &refreshableTokenSource{
		source:   m.config.TokenSource(ctx, token),
		callback: m.onTokenRefresh,
	}
	m.httpClient = oauth2.NewClient(ctx, m.tokens)
	return nil
}

func (m *MALService) obtainToken(ctx context.Context, credentials map[string]string) (*oauth2.Token, error) {
	if accessToken := credentials["access_token"]; accessToken != "" {
		return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
	}

	if path := credentials["token_path"]; path != "" {
		if token, err := shared.LoadToken(path); err == nil {
			return token, nil
		}
	}

	if authCode := credentials["auth_code"]; authCode != "" {
		token, err := m.config.Exchange(ctx, authCode, oauth2.VerifierOption(credentials["code_verifier"]))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		return token, nil
	}

	username, password := credentials["username"], credentials["password"]
	if username != "" && password != "" {
		token, err := m.config.PasswordCredentialsToken(ctx, username, password)
		if err != nil {
			return nil, fmt.Errorf("%w: password grant rejected: %v", shared.ErrAuthFailed, err)
		}
		return token, nil
	}

	return nil, fmt.Errorf("%w: need access_token, token_path, auth_code, or username and password", shared.ErrMissingCredentials)
}

// SetTokenRefreshCallback registers fn to receive each new token. Takes effect on the next Authenticate.
func (m *MALService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	m.onTokenRefresh = fn
}

// Token returns the current token, refreshing it first when it has expired.
func (m *MALService) Token() (*oauth2.Token, error) {
	if m.tokens == nil {
		return nil, fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}
	token, err := m.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	}
	return token, nil
}

// GetAuthURL returns the authorization URL for user login.
//
// MyAnimeList only supports the "plain" PKCE method, so the verifier doubles as the challenge.
func (m *MALService) GetAuthURL(state, verifier string) string {
	return m.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", verifier),
		oauth2.SetAuthURLParam("code_challenge_method", "plain"),
	)
}

func (m *MALService) GetOAuthConfig() *oauth2.Config {
	return m.config
}

// Status resolves a status by its wire name or alias.
func (m *MALService) Status(name string) (models.Status, error) {
	return models.ParseStatus(name)
}

// Blank returns an entry with the default score and tags.
func (m *MALService) Blank() *models.Entry {
	return models.NewEntry()
}

// doRequest performs an authenticated, rate-limited request against the API.
func (m *MALService) doRequest(ctx context.Context, method, endpoint string, form url.Values, result any) error {
	if m.httpClient == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-MAL-CLIENT-ID", m.config.ClientID)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: myanimelist request failed: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: myanimelist rejected the token", shared.ErrAuthFailed)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrEntryNotFound, endpoint)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: myanimelist returned %s", shared.ErrServiceUnavailable, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: myanimelist %s %s returned %s: %s", shared.ErrAPIRequest, method, endpoint, resp.Status, strings.TrimSpace(string(msg)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Search returns candidate entries for title in relevance order.
//
// Calls GET /anime?q={title}.
func (m *MALService) Search(ctx context.Context, title string) ([]models.Entry, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: empty search title", shared.ErrInvalidInput)
	}

	query := url.Values{}
	query.Set("q", title)
	query.Set("limit", strconv.Itoa(m.searchLimit))
	query.Set("fields", "num_episodes")

	var response MALSearchResponse
	if err := m.doRequest(ctx, http.MethodGet, "/anime?"+query.Encode(), nil, &response); err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(response.Data))
	for _, d := range response.Data {
		entries = append(entries, *d.Node.toEntry())
	}
	return entries, nil
}

// Get retrieves an anime and, when present, the user's list status for it.
//
// Calls GET /anime/{id}.
func (m *MALService) Get(ctx context.Context, id int) (*models.Entry, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: anime id must be positive, got %d", shared.ErrInvalidInput, id)
	}

	var anime MALAnime
	endpoint := fmt.Sprintf("/anime/%d?fields=num_episodes,my_list_status", id)
	if err := m.doRequest(ctx, http.MethodGet, endpoint, nil, &anime); err != nil {
		return nil, err
	}
	return anime.toEntry(), nil
}

// Update creates or replaces the user's list entry for id.
//
// Calls PATCH /anime/{id}/my_list_status.
func (m *MALService) Update(ctx context.Context, id int, entry *models.Entry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", shared.ErrInvalidInput)
	}

	e := *entry
	e.ID = id
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	form := url.Values{}
	form.Set("status", e.Status.String())
	form.Set("num_watched_episodes", strconv.Itoa(e.Episodes))
	form.Set("score", strconv.Itoa(e.Score))
	form.Set("tags", strings.Join(e.Tags, ","))

	endpoint := fmt.Sprintf("/anime/%d/my_list_status", id)
	return m.doRequest(ctx, http.MethodPatch, endpoint, form, nil)
}

func (a MALAnime) toEntry() *models.Entry {
	entry := &models.Entry{
		ID:          a.ID,
		Title:       a.Title,
		NumEpisodes: a.NumEpisodes,
	}
	if a.MyListStatus != nil {
		entry.Status = models.Status(a.MyListStatus.Status)
		entry.Episodes = a.MyListStatus.NumEpisodesWatched
		entry.Score = a.MyListStatus.Score
		entry.Tags = a.MyListStatus.Tags
	}
	return entry
}
