// Plex Media Server implementation of [MediaLibrary]
//
// Plex API response types based on the JSON form of the server's MediaContainer responses.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/synchronic/internal/models"
	"github.com/desertthunder/synchronic/internal/shared"
)

const (
	defaultPlexBaseURL  = "http://127.0.0.1:32400"
	defaultPlexClientID = "synchronic"
	plexPageSize        = 100
)

// PlexDirectory represents a library section in /library/sections.
type PlexDirectory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// PlexMetadata represents a show (or episode) in a MediaContainer listing.
type PlexMetadata struct {
	RatingKey       string `json:"ratingKey"`
	Title           string `json:"title"`
	Type            string `json:"type"`
	Year            int    `json:"year"`
	LeafCount       int    `json:"leafCount"`
	ViewedLeafCount int    `json:"viewedLeafCount"`
	ViewCount       int    `json:"viewCount"`
}

type plexContainer struct {
	MediaContainer struct {
		Size         int             `json:"size"`
		TotalSize    int             `json:"totalSize"`
		Offset       int             `json:"offset"`
		FriendlyName string          `json:"friendlyName"`
		Directory    []PlexDirectory `json:"Directory"`
		Metadata     []PlexMetadata  `json:"Metadata"`
	} `json:"MediaContainer"`
}

// PlexService implements the MediaLibrary interface for a Plex Media Server.
type PlexService struct {
	baseURL    string
	clientID   string
	token      string
	serverName string
	httpClient *http.Client
}

// NewPlexService creates a new Plex service for the server at baseURL.
func NewPlexService(baseURL, clientID string) *PlexService {
	if baseURL == "" {
		baseURL = defaultPlexBaseURL
	}
	if clientID == "" {
		clientID = defaultPlexClientID
	}

	return &PlexService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the service name.
func (p *PlexService) Name() string {
	return "Plex"
}

// ServerName returns the friendly name reported by the server after authentication.
func (p *PlexService) ServerName() string {
	return p.serverName
}

// Authenticate stores the server token and verifies it against the server root.
//
// Expects credentials["token"] to contain an X-Plex-Token.
func (p *PlexService) Authenticate(ctx context.Context, credentials map[string]string) error {
	token, ok := credentials["token"]
	if !ok || token == "" {
		return fmt.Errorf("%w: missing token in credentials", shared.ErrMissingCredentials)
	}
	p.token = token

	var root plexContainer
	if err := p.doRequest(ctx, "/", nil, &root); err != nil {
		p.token = ""
		return err
	}

	p.serverName = root.MediaContainer.FriendlyName
	return nil
}

// setPlexHeaders adds required Plex headers to a request
func (p *PlexService) setPlexHeaders(req *http.Request) {
	req.Header.Set("X-Plex-Client-Identifier", p.clientID)
	req.Header.Set("X-Plex-Product", "synchronic")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("X-Plex-Token", p.token)
	}
}

func (p *PlexService) doRequest(ctx context.Context, endpoint string, query url.Values, result any) error {
	if p.token == "" {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	apiURL := p.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	p.setPlexHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: plex request failed: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: plex rejected the token", shared.ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: plex %s returned %s: %s", shared.ErrAPIRequest, endpoint, resp.Status, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Sections lists the library sections on the server.
//
// Calls GET /library/sections.
func (p *PlexService) Sections(ctx context.Context) ([]models.Section, error) {
	var container plexContainer
	if err := p.doRequest(ctx, "/library/sections", nil, &container); err != nil {
		return nil, err
	}

	sections := make([]models.Section, len(container.MediaContainer.Directory))
	for i, d := range container.MediaContainer.Directory {
		sections[i] = models.Section{Key: d.Key, Title: d.Title, Type: d.Type}
	}
	return sections, nil
}

// Items lists every show in the section whose title (case-insensitive) or key matches section.
//
// Calls GET /library/sections/{key}/all page by page.
func (p *PlexService) Items(ctx context.Context, section string) ([]models.MediaItem, error) {
	key, err := p.resolveSection(ctx, section)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/library/sections/%s/all", url.PathEscape(key))

	var items []models.MediaItem
	for offset := 0; ; {
		query := url.Values{}
		query.Set("X-Plex-Container-Start", fmt.Sprint(offset))
		query.Set("X-Plex-Container-Size", fmt.Sprint(plexPageSize))

		var page plexContainer
		if err := p.doRequest(ctx, endpoint, query, &page); err != nil {
			return nil, err
		}

		for _, m := range page.MediaContainer.Metadata {
			item, err := p.toMediaItem(ctx, m)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}

		n := len(page.MediaContainer.Metadata)
		offset += n
		if n == 0 {
			break
		}
		// Without totalSize only a full page means there may be more.
		if total := page.MediaContainer.TotalSize; total > 0 {
			if offset >= total {
				break
			}
		} else if n != plexPageSize {
			break
		}
	}

	return items, nil
}

func (p *PlexService) resolveSection(ctx context.Context, section string) (string, error) {
	sections, err := p.Sections(ctx)
	if err != nil {
		return "", err
	}

	for _, s := range sections {
		if strings.EqualFold(s.Title, section) || s.Key == section {
			return s.Key, nil
		}
	}
	return "", fmt.Errorf("%w: %q", shared.ErrSectionNotFound, section)
}

// toMediaItem converts a show listing, counting episodes from allLeaves when the listing has no leafCount.
func (p *PlexService) toMediaItem(ctx context.Context, m PlexMetadata) (models.MediaItem, error) {
	item := models.MediaItem{
		RatingKey: m.RatingKey,
		Title:     m.Title,
		Year:      m.Year,
		Watched:   m.ViewedLeafCount,
		Total:     m.LeafCount,
	}

	if m.LeafCount > 0 || m.RatingKey == "" {
		return item, nil
	}

	watched, total, err := p.countEpisodes(ctx, m.RatingKey)
	if err != nil {
		return item, err
	}
	item.Watched, item.Total = watched, total
	return item, nil
}

// countEpisodes counts the episodes of a show and how many of them have been viewed.
//
// Calls GET /library/metadata/{ratingKey}/allLeaves.
func (p *PlexService) countEpisodes(ctx context.Context, ratingKey string) (watched, total int, err error) {
	var leaves plexContainer
	endpoint := fmt.Sprintf("/library/metadata/%s/allLeaves", url.PathEscape(ratingKey))
	if err := p.doRequest(ctx, endpoint, nil, &leaves); err != nil {
		return 0, 0, err
	}

	for _, leaf := range leaves.MediaContainer.Metadata {
		total++
		if leaf.ViewCount > 0 {
			watched++
		}
	}
	return watched, total, nil
}
