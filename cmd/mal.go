package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/synchronic/internal/formatter"
	"github.com/desertthunder/synchronic/internal/server"
	"github.com/desertthunder/synchronic/internal/services"
	"github.com/desertthunder/synchronic/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// MALSearch prints the candidates a sync would choose from for a title.
func (r *Runner) MALSearch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}

	format, err := r.tableFormat(cmd)
	if err != nil {
		return err
	}

	tracker, err := r.connectTracker(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("searching", "service", tracker.Name(), "query", query)

	entries, err := tracker.Search(ctx, query)
	if err != nil {
		return err
	}

	tbl := formatter.NewTable("#", "MAL ID", "Title", "Episodes")
	for i, e := range entries {
		tbl.Append(i, e.ID, e.Title, e.NumEpisodes)
	}
	return r.writeTable(format, tbl)
}

// MALAuth runs the authorization code flow with PKCE and saves the token to mal.token_path.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) MALAuth(ctx context.Context, cmd *cli.Command) error {
	config := r.cfg()

	if config.MAL.ClientID == "" {
		return fmt.Errorf("%w: mal.client_id must be set in %s", shared.ErrInvalidArgument, r.configPath)
	}
	if config.MAL.TokenPath == "" {
		return fmt.Errorf("%w: mal.token_path must be set in %s", shared.ErrInvalidArgument, r.configPath)
	}

	tracker, err := r.newTracker()
	if err != nil {
		return fmt.Errorf("failed to create MyAnimeList service: %w", err)
	}

	oauthSrv, ok := tracker.(services.OAuthService)
	if !ok {
		return fmt.Errorf("%w: %s does not support browser authorization", shared.ErrInvalidArgument, tracker.Name())
	}

	token, err := r.doOAuth(ctx, oauthSrv)
	if err != nil {
		return err
	}

	if err := shared.SaveToken(config.MAL.TokenPath, token); err != nil {
		return err
	}

	r.writePlainln("%s Authorization successful", r.palette.Success("✓"))
	r.writePlain("%s Token saved to %s\n\n", r.palette.Success("✓"), config.MAL.TokenPath)
	r.writePlain("You can now use: synchronic sync\n")
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	handler := server.NewOAuthHandler(oauthSrv.GetOAuthConfig(), state, verifier)
	handler.SetExchangeContext(context.WithValue(ctx, oauth2.HTTPClient, r.httpClient))

	logger := shared.WithPrefix(r.logger, "oauth")
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(logger), server.Recover(logger))
	router.Handler(handler)

	addr := fmt.Sprintf("%s:%d", r.cfg().Server.Host, r.cfg().Server.Port)
	srv := server.NewCallbackServer(addr, router)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	logger.Info("waiting for callback", "addr", srv.Addr(), "path", handler.Routes()[0])

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down server", "err", err)
		}
	}()

	authURL := oauthSrv.GetAuthURL(state, verifier)

	r.writePlain("→ Opening browser for MyAnimeList authorization...\n")
	if err := r.openBrowser(authURL); err != nil {
		logger.Warn("failed to open browser automatically", "err", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", r.authTimeout)

	timeout := time.NewTimer(r.authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-handler.Result():
	case err := <-srv.Errors():
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, r.authTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}
