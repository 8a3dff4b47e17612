// Package config loads client and server settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppDir is the per-user directory name under the config root.
	AppDir = "gigmarket"
	// ClientConfigFile is the YAML file name inside Dir().
	ClientConfigFile = "config.yaml"
)

// Store backends for the client credential store.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreNone   = "none"
)

// Client is the CLI configuration.
type Client struct {
	// BaseURL is the marketplace backend root (e.g. https://api.gigmarket.dev)
	BaseURL string `yaml:"base_url"`
	// RefreshPath is the refresh endpoint path
	RefreshPath string `yaml:"refresh_path"`
	// LoginPath is where the user is sent when the session is gone
	LoginPath string `yaml:"login_path"`
	// Timeout bounds a single HTTP exchange
	Timeout time.Duration `yaml:"timeout"`
	// Store selects the credential store: file, memory or none
	Store string `yaml:"store"`
	// Seal encrypts the credential file with a local key
	Seal bool `yaml:"seal"`
}

// DefaultClient returns the built-in client settings.
func DefaultClient() *Client {
	return &Client{
		BaseURL:     "http://localhost:8080",
		RefreshPath: "/api/auth/refresh",
		LoginPath:   "/login",
		Timeout:     30 * time.Second,
		Store:       StoreFile,
		Seal:        true,
	}
}

// Validate checks the settings are usable.
func (c *Client) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	switch c.Store {
	case StoreFile, StoreMemory, StoreNone:
	default:
		return fmt.Errorf("store must be one of file, memory, none; got %q", c.Store)
	}
	if c.RefreshPath == "" || c.LoginPath == "" {
		return errors.New("refresh_path and login_path are required")
	}
	return nil
}

// Dir returns the per-user config directory.
func Dir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, AppDir)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", AppDir)
}

// ClientPath is the default location of the client YAML file.
func ClientPath() string { return filepath.Join(Dir(), ClientConfigFile) }

// TokenPath is the credential document location.
func TokenPath() string { return filepath.Join(Dir(), "tokens.json") }

// KeyPath is the sealing key location.
func KeyPath() string { return filepath.Join(Dir(), "store.key") }

// LoadClient reads path over DefaultClient. A missing file yields the defaults.
func LoadClient(path string) (*Client, error) {
	c := DefaultClient()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return c, nil
}

// Save writes the settings to path as YAML.
func (c *Client) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
