package shared

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// SaveToken writes an OAuth2 token as JSON, readable only by the current user.
func SaveToken(path string, token *oauth2.Token) error {
	if path == "" {
		return fmt.Errorf("%w: token path is empty", ErrInvalidArgument)
	}
	if token == nil {
		return fmt.Errorf("%w: token is nil", ErrInvalidArgument)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// LoadToken reads a token written by [SaveToken].
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token file: %v", ErrInvalidCredentials, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token file has no access or refresh token", ErrInvalidCredentials)
	}
	return &token, nil
}
