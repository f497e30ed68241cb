// Package config loads and saves sheriff settings from the user's config
// directory. Environment variables override file values so credentials can
// stay out of the file entirely.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment overrides, checked after the file is read.
const (
	EnvGitHubToken = "SHERIFF_GITHUB_TOKEN"
	EnvDevinAPIKey = "SHERIFF_DEVIN_API_KEY"
	EnvWebhookURL  = "SHERIFF_WEBHOOK_URL"
)

// Config holds all sheriff settings.
type Config struct {
	GitHubToken string `yaml:"github_token,omitempty"`
	DevinAPIKey string `yaml:"devin_api_key,omitempty"`
	WebhookURL  string `yaml:"webhook_url,omitempty"`
	// DatabasePath overrides the default ~/.devin-sheriff/sheriff.db.
	DatabasePath string `yaml:"database_path,omitempty"`
}

// Dir returns the sheriff config directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devin-sheriff"
	}
	return filepath.Join(home, ".devin-sheriff")
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the config file and applies environment overrides. A missing
// file is not an error; the result is just the environment.
func Load() (*Config, error) {
	return loadFrom(Path())
}

func loadFrom(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fresh install, env-only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvGitHubToken); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv(EnvDevinAPIKey); v != "" {
		cfg.DevinAPIKey = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		cfg.WebhookURL = v
	}
	return &cfg, nil
}

// Save writes the config file with owner-only permissions, creating the
// config directory if needed.
func (c *Config) Save() error {
	return c.saveTo(Path())
}

func (c *Config) saveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// The file carries credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks that the credentials required for remote operations are
// present, naming the missing ones.
func (c *Config) Validate() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "github_token (or "+EnvGitHubToken+")")
	}
	if c.DevinAPIKey == "" {
		missing = append(missing, "devin_api_key (or "+EnvDevinAPIKey+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %v (run 'sheriff setup')", missing)
	}
	return nil
}
