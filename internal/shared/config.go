package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Plex      PlexConfig     `toml:"plex"`
	MAL       MALConfig      `toml:"mal"`
	Output    OutputConfig   `toml:"output"`
	Overrides map[string]int `toml:"overrides"`
	Database  DatabaseConfig `toml:"database"`
	Server    ServerConfig   `toml:"server"`
}

// PlexConfig contains the Plex Media Server connection settings.
type PlexConfig struct {
	URL      string `toml:"url"`
	Token    string `toml:"token"`
	Section  string `toml:"section"`
	ClientID string `toml:"client_id"`
}

// MALConfig contains MyAnimeList API credentials.
type MALConfig struct {
	ClientID          string  `toml:"client_id"`
	ClientSecret      string  `toml:"client_secret"`
	Username          string  `toml:"username"`
	Password          string  `toml:"password"`
	TokenPath         string  `toml:"token_path"`
	RedirectURI       string  `toml:"redirect_uri"`
	SearchLimit       int     `toml:"search_limit"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Map returns the credentials in the form accepted by the tracker's Authenticate method.
func (m MALConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     m.ClientID,
		"client_secret": m.ClientSecret,
		"username":      m.Username,
		"password":      m.Password,
		"token_path":    m.TokenPath,
		"redirect_uri":  m.RedirectURI,
	}
}

// OutputConfig controls console table rendering.
type OutputConfig struct {
	TableFormat string `toml:"table_format"`
}

// DatabaseConfig contains run history database settings.
type DatabaseConfig struct {
	Enabled      bool   `toml:"enabled"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the OAuth callback listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}
	if config.Overrides == nil {
		config.Overrides = map[string]int{}
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	if config.Overrides == nil {
		config.Overrides = map[string]int{}
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes the config as TOML and writes it to path, creating parent directories as needed.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports the first missing setting required to run a sync.
func (c *Config) Validate() error {
	switch {
	case c.Plex.URL == "":
		return fmt.Errorf("%w: plex.url is required", ErrInvalidConfig)
	case c.Plex.Token == "":
		return fmt.Errorf("%w: plex.token is required", ErrInvalidConfig)
	case c.Plex.Section == "":
		return fmt.Errorf("%w: plex.section is required", ErrInvalidConfig)
	case c.MAL.ClientID == "":
		return fmt.Errorf("%w: mal.client_id is required", ErrInvalidConfig)
	}

	for title, idx := range c.Overrides {
		if idx < 0 {
			return fmt.Errorf("%w: override for %q must not be negative", ErrInvalidConfig, title)
		}
	}
	return nil
}
