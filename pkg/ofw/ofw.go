// Package ofw is the top-level facade: one call wires the Playwright
// browser factory, the file token cache and the session manager into a
// ready API client.
package ofw

import (
	"context"
	"fmt"

	"github.com/kherry/ofw-client/pkg/api"
	"github.com/kherry/ofw-client/pkg/auth"
	"github.com/kherry/ofw-client/pkg/browser"
	"github.com/kherry/ofw-client/pkg/config"
)

// Client bundles the API client with the manager that authenticates it.
type Client struct {
	*api.Client

	// Manager owns the session lifecycle for the client's account.
	Manager *auth.Manager
}

// Option configures Connect.
type Option func(*options)

type options struct {
	managerOpts []auth.Option
}

// WithManagerOptions passes extra options to the session manager, e.g. a
// custom cache or credential source.
func WithManagerOptions(opts ...auth.Option) Option {
	return func(o *options) {
		o.managerOpts = append(o.managerOpts, opts...)
	}
}

// Connect builds a fully wired client for the account. A nil cfg uses the
// production defaults. No network or browser activity happens until the
// first API call.
func Connect(ctx context.Context, cfg *config.Config, account string, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	managerOpts := append([]auth.Option{
		auth.WithBrowserFactory(browser.Factory(cfg)),
	}, o.managerOpts...)

	manager, err := auth.NewManager(cfg, managerOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		Client:  api.New(cfg, manager, account),
		Manager: manager,
	}, nil
}

// Logout ends the remote session and purges the cached token.
func (c *Client) Logout(ctx context.Context) error {
	return c.Manager.Logout(ctx, c.Account())
}
