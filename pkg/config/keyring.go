package config

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService     = "ofw-client"
	keyringUsernameKey = "username"
)

// Indirections over the keyring so tests can stub the OS secret service.
var (
	keyringGet    = keyring.Get
	keyringSet    = keyring.Set
	keyringDelete = keyring.Delete
)

// SaveCredentialsToKeyring stores the pair in the OS keyring under the
// ofw-client service. The username is stored under a well-known key so it
// can be recovered without being supplied again.
func SaveCredentialsToKeyring(creds Credentials) error {
	if creds.IsZero() {
		return fmt.Errorf("cannot store empty credentials")
	}
	if err := keyringSet(keyringService, keyringUsernameKey, creds.Username); err != nil {
		return fmt.Errorf("failed to store username in keyring: %w", err)
	}
	if err := keyringSet(keyringService, creds.Username, creds.Password); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}
	return nil
}

// CredentialsFromKeyring recovers the stored pair.
func CredentialsFromKeyring() (Credentials, error) {
	username, err := keyringGet(keyringService, keyringUsernameKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("no username in keyring: %w", err)
	}
	password, err := keyringGet(keyringService, username)
	if err != nil {
		return Credentials{}, fmt.Errorf("no password in keyring for %s: %w", username, err)
	}
	return Credentials{Username: username, Password: password}, nil
}

// ClearKeyringCredentials removes the stored pair. Missing entries are not
// an error.
func ClearKeyringCredentials() error {
	username, err := keyringGet(keyringService, keyringUsernameKey)
	if err != nil {
		return nil
	}
	if err := keyringDelete(keyringService, username); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to remove password from keyring: %w", err)
	}
	if err := keyringDelete(keyringService, keyringUsernameKey); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to remove username from keyring: %w", err)
	}
	return nil
}
