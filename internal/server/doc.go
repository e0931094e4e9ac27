// Package server runs the local listener that completes the MyAnimeList OAuth flow.
//
// # Router
//
// [BasicRouter] wraps [http.ServeMux] with a middleware stack. [RequestLogger] and [Recover] are the
// middleware the CLI installs.
//
// # OAuth Callback Handler
//
// [OAuthHandler] receives the authorization code redirect. It validates the state parameter, exchanges
// the code together with the PKCE verifier for a token, and sends the outcome on a channel. Only the
// first callback is processed.
//
// # Lifecycle
//
// `synchronic mal auth` starts a [CallbackServer] on the host and port from the `server` config
// section, opens the browser, waits for one [OAuthResult] (or a two minute timeout) and shuts the
// server down.
package server
