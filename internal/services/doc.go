// Package services defines the [MediaLibrary] and [Tracker] interfaces and implements them for Plex and MyAnimeList.
//
// # Interfaces
//
// The sync driver depends only on these two interfaces, which list exactly the operations it uses.
// Each backing service gets one concrete adapter.
//
// # Plex Implementation
//
// [PlexService] talks to a Plex Media Server over its JSON API using an X-Plex-Token.
// Watched and total episode counts come from the viewedLeafCount and leafCount attributes of each show.
// Shows that report no leafCount are counted from their allLeaves listing.
//
// # MyAnimeList Implementation
//
// [MALService] uses the MyAnimeList v2 REST API with [oauth2] tokens.
// Authenticate takes the first usable credential: an access token, the saved token file, an authorization
// code with its verifier, then the OAuth2 password grant. Refreshed tokens are reported to a callback so the
// CLI can save them.
// Every request waits on a client-side rate limiter.
//
// [MALService] also implements [OAuthService] for the authorization code flow with a PKCE verifier used by `synchronic mal auth`.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrAuthFailed] : The service rejected the credentials (HTTP 401)
//   - [shared.ErrAPIRequest] : HTTP request failed or returned a non-2xx status
//   - [shared.ErrSectionNotFound] : Named Plex section does not exist
//   - [shared.ErrEntryNotFound] : MyAnimeList id does not exist
package services
