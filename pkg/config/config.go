// Package config holds the client configuration and credential resolution
// for ofw-client.
//
// Configuration is an explicit value passed to constructors. A Config is
// built from DefaultConfig, optionally overlaid with a YAML file via Load,
// and validated before use. There is no package-level singleton.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL       = "https://ofw.ourfamilywizard.com"
	defaultLoginPath     = "/app/login"
	defaultLogoutPath    = "/app/logout"
	defaultStoragePath   = "/ofw/appv2/localstorage.json"
	defaultClaimPath     = "/pub/v1/security/claim"
	defaultAPIBasePath   = "/pub"
	defaultProbePath     = "/pub/v1/messageFolders"
	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultClientHeader  = "WebApplication"
	defaultClientVersion = "1.0.0"
)

// Duration wraps time.Duration so YAML configs can say "90s" or "2m".
// Plain integers are read as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value %q", value.Value)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config describes the endpoints, headers and runtime behavior of the
// client. Zero values are filled by DefaultConfig; Load overlays a YAML file
// on top of the defaults.
type Config struct {
	// BaseURL is the scheme+host of the web application.
	BaseURL string `yaml:"baseUrl"`

	// Paths on BaseURL. LoginPath and LogoutPath are browser pages,
	// StoragePath serves the localStorage snapshot, ClaimPath exchanges an
	// auth token for a JWT, ProbePath answers cheap authenticated GETs.
	LoginPath   string `yaml:"loginPath"`
	LogoutPath  string `yaml:"logoutPath"`
	StoragePath string `yaml:"storagePath"`
	ClaimPath   string `yaml:"claimPath"`
	APIBasePath string `yaml:"apiBasePath"`
	ProbePath   string `yaml:"probePath"`

	// UserID, when set, is used as the claim target instead of the account
	// name.
	UserID string `yaml:"userId"`

	// CacheDir holds token cache files, DebugDir failure screenshots.
	// Empty means ~/.ofw and ~/.ofw/debug.
	CacheDir string `yaml:"cacheDir"`
	DebugDir string `yaml:"debugDir"`

	// Headers sent on every request.
	UserAgent     string `yaml:"userAgent"`
	ClientHeader  string `yaml:"clientHeader"`
	ClientVersion string `yaml:"clientVersion"`

	Headless         bool `yaml:"headless"`
	DebugScreenshots bool `yaml:"debugScreenshots"`

	LoginTimeout   Duration `yaml:"loginTimeout"`
	RequestTimeout Duration `yaml:"requestTimeout"`
}

// DefaultConfig returns the production configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        defaultBaseURL,
		LoginPath:      defaultLoginPath,
		LogoutPath:     defaultLogoutPath,
		StoragePath:    defaultStoragePath,
		ClaimPath:      defaultClaimPath,
		APIBasePath:    defaultAPIBasePath,
		ProbePath:      defaultProbePath,
		UserAgent:      defaultUserAgent,
		ClientHeader:   defaultClientHeader,
		ClientVersion:  defaultClientVersion,
		Headless:       true,
		LoginTimeout:   Duration(90 * time.Second),
		RequestTimeout: Duration(30 * time.Second),
	}
}

// Load reads a YAML config file and overlays it on DefaultConfig. Keys
// absent from the file keep their defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("baseUrl is required")
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid baseUrl: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("baseUrl must be http or https, got %q", c.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("baseUrl has no host: %q", c.BaseURL)
	}

	paths := []struct {
		name  string
		value string
	}{
		{"loginPath", c.LoginPath},
		{"logoutPath", c.LogoutPath},
		{"storagePath", c.StoragePath},
		{"claimPath", c.ClaimPath},
		{"apiBasePath", c.APIBasePath},
		{"probePath", c.ProbePath},
	}
	for _, p := range paths {
		if p.value == "" {
			return fmt.Errorf("%s is required", p.name)
		}
		if !strings.HasPrefix(p.value, "/") {
			return fmt.Errorf("%s must start with /, got %q", p.name, p.value)
		}
	}

	if c.LoginTimeout <= 0 {
		return fmt.Errorf("loginTimeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("requestTimeout must be positive")
	}

	return nil
}

func (c *Config) join(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// LoginURL returns the browser login page URL.
func (c *Config) LoginURL() string {
	return c.join(c.LoginPath)
}

// LogoutURL returns the logout URL.
func (c *Config) LogoutURL() string {
	return c.join(c.LogoutPath)
}

// StorageURL returns the localStorage snapshot endpoint.
func (c *Config) StorageURL() string {
	return c.join(c.StoragePath)
}

// ClaimURL returns the token claim endpoint with the claim target attached
// as a query parameter.
func (c *Config) ClaimURL(target string) string {
	return c.join(c.ClaimPath) + "?userId=" + url.QueryEscape(target)
}

// ProbeURL returns the cheap authenticated endpoint used to check whether a
// token is still accepted.
func (c *Config) ProbeURL() string {
	return c.join(c.ProbePath) + "?includeFolderCounts=false"
}

// APIURL returns an API endpoint under the API base path.
func (c *Config) APIURL(path string) string {
	return c.join(c.APIBasePath) + path
}

// ClaimTarget returns the configured user ID, or the given account when no
// user ID is set.
func (c *Config) ClaimTarget(account string) string {
	if c.UserID != "" {
		return c.UserID
	}
	return account
}

// ResolveCacheDir returns CacheDir, defaulting to ~/.ofw.
func (c *Config) ResolveCacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ofw"), nil
}

// ResolveDebugDir returns DebugDir, defaulting to ~/.ofw/debug.
func (c *Config) ResolveDebugDir() (string, error) {
	if c.DebugDir != "" {
		return c.DebugDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ofw", "debug"), nil
}
