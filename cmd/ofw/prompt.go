package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kherry/ofw-client/pkg/config"
)

// promptCredentials asks for a username and a no-echo password on the
// terminal.
func promptCredentials() (config.Credentials, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return config.Credentials{}, fmt.Errorf("no credentials available and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Username: ")
	reader := bufio.NewReader(os.Stdin)
	username, err := reader.ReadString('\n')
	if err != nil {
		return config.Credentials{}, fmt.Errorf("failed to read username: %w", err)
	}
	username = strings.TrimSpace(username)

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return config.Credentials{}, fmt.Errorf("failed to read password: %w", err)
	}

	creds := config.Credentials{Username: username, Password: string(password)}
	if creds.IsZero() {
		return config.Credentials{}, fmt.Errorf("username and password are required")
	}
	return creds, nil
}
