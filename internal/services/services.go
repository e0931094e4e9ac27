// package services defines the interfaces synchronic uses to talk to HTTP APIs
//
// Plex (media library), MyAnimeList (tracker)
package services

import (
	"context"

	"github.com/desertthunder/synchronic/internal/models"
	"golang.org/x/oauth2"
)

// MediaLibrary defines the operations needed from a media server that knows what the user has watched.
type MediaLibrary interface {
	// Authenticate stores and verifies credentials for subsequent requests.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// Sections lists the library sections on the server.
	Sections(ctx context.Context) ([]models.Section, error)

	// Items lists every show in the named section, in the order the server returns them.
	Items(ctx context.Context, section string) ([]models.MediaItem, error)

	// Name returns the name of the service (e.g., "Plex")
	Name() string
}

// Tracker defines exactly the operations the sync driver needs from a progress-tracking service.
type Tracker interface {
	// Authenticate performs authentication with the service.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// Search returns candidate entries for a title, best match first. The slice may be empty.
	Search(ctx context.Context, title string) ([]models.Entry, error)

	// Get retrieves a single entry by id.
	Get(ctx context.Context, id int) (*models.Entry, error)

	// Status resolves a status by name.
	Status(name string) (models.Status, error)

	// Blank returns an entry populated with the service defaults.
	Blank() *models.Entry

	// Update creates or replaces the user's list entry for id.
	Update(ctx context.Context, id int, entry *models.Entry) error

	// Name returns the name of the service (e.g., "MyAnimeList")
	Name() string
}

// OAuthService extends [Tracker] for services that authorize through a browser redirect.
type OAuthService interface {
	Tracker

	// GetAuthURL returns the authorization URL for the given state and PKCE verifier.
	GetAuthURL(state, verifier string) string

	// GetOAuthConfig returns the OAuth2 configuration used for the code exchange.
	GetOAuthConfig() *oauth2.Config
}
