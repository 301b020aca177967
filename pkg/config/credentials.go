package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-ini/ini"
)

// Environment variables consulted for credentials. EnvEmail is an accepted
// alias for EnvUsername.
const (
	EnvUsername = "OFW_USERNAME"
	EnvEmail    = "OFW_EMAIL"
	EnvPassword = "OFW_PASSWORD"
)

// ErrNoCredentials is returned when no credential source yields a usable
// username and password.
var ErrNoCredentials = errors.New("no credentials found in environment, credential files, or keyring")

// Credentials is a transient username/password pair. It is passed to the
// browser login and never persisted by this module outside the OS keyring.
type Credentials struct {
	Username string
	Password string
}

// IsZero reports whether either field is empty.
func (c Credentials) IsZero() bool {
	return c.Username == "" || c.Password == ""
}

// CredentialsFromEnv reads OFW_USERNAME (or OFW_EMAIL) and OFW_PASSWORD.
// The second return is false when the pair is incomplete.
func CredentialsFromEnv() (Credentials, bool) {
	username := os.Getenv(EnvUsername)
	if username == "" {
		username = os.Getenv(EnvEmail)
	}

	creds := Credentials{
		Username: username,
		Password: os.Getenv(EnvPassword),
	}
	return creds, !creds.IsZero()
}

// CredentialsFromFile reads a KEY=VALUE credential file (dotenv style, no
// sections) looking for the same keys as CredentialsFromEnv.
func CredentialsFromFile(path string) (Credentials, error) {
	file, err := ini.Load(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credential file %s: %w", path, err)
	}

	section := file.Section("")
	username := section.Key(EnvUsername).String()
	if username == "" {
		username = section.Key(EnvEmail).String()
	}

	creds := Credentials{
		Username: username,
		Password: section.Key(EnvPassword).String(),
	}
	if creds.IsZero() {
		return Credentials{}, fmt.Errorf("credential file %s is missing %s or %s", path, EnvUsername, EnvPassword)
	}
	return creds, nil
}

// DefaultCredentialFiles returns the credential file paths probed by
// ResolveCredentials: ./.env, then ~/.ofw/credentials.
func DefaultCredentialFiles() []string {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".ofw", "credentials"))
	}
	return paths
}

// ResolveCredentials finds credentials by precedence: environment, then the
// given files (DefaultCredentialFiles when none are passed), then the OS
// keyring. Returns ErrNoCredentials when every source comes up empty.
func ResolveCredentials(files ...string) (Credentials, error) {
	if creds, ok := CredentialsFromEnv(); ok {
		return creds, nil
	}

	if len(files) == 0 {
		files = DefaultCredentialFiles()
	}
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		creds, err := CredentialsFromFile(path)
		if err != nil {
			continue
		}
		return creds, nil
	}

	if creds, err := CredentialsFromKeyring(); err == nil {
		return creds, nil
	}

	return Credentials{}, ErrNoCredentials
}
