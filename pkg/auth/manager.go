package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/kherry/ofw-client/pkg/config"
	"github.com/kherry/ofw-client/pkg/logging"
)

// Manager owns the session lifecycle for its accounts: cache check, browser
// login, token exchange, validation, persistence. It is an explicit
// instance; create one per process and pass it to consumers.
type Manager struct {
	cfg       *config.Config
	cache     TokenCache
	factory   BrowserFactory
	transport http.RoundTripper
	logger    *logging.Logger
	creds     CredentialSource
	group     singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithBrowserFactory sets the factory that creates a browser for each
// login attempt. Required.
func WithBrowserFactory(f BrowserFactory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithCache replaces the default file cache.
func WithCache(c TokenCache) Option {
	return func(m *Manager) {
		m.cache = c
	}
}

// WithHTTPClient sets the client whose transport underlies all HTTP calls
// the manager makes.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.transport = client.Transport
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithCredentialSource sets where credentials come from when a GetSession
// call does not carry them. Defaults to config.ResolveCredentials.
func WithCredentialSource(s CredentialSource) Option {
	return func(m *Manager) {
		m.creds = s
	}
}

// NewManager creates a Manager for the given configuration.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg: cfg,
		creds: func() (config.Credentials, error) {
			return config.ResolveCredentials()
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.factory == nil {
		return nil, fmt.Errorf("a browser factory is required")
	}
	if m.logger == nil {
		// NewLogger degrades to stderr on its own; the error only says the
		// file could not be opened.
		m.logger, _ = logging.NewLogger("auth")
	}
	if m.cache == nil {
		dir, err := cfg.ResolveCacheDir()
		if err != nil {
			return nil, err
		}
		cache, err := NewFileCache(dir, m.logger)
		if err != nil {
			return nil, err
		}
		m.cache = cache
	}

	return m, nil
}

// callOptions configure one GetSession call.
type callOptions struct {
	creds        config.Credentials
	forceRefresh bool
}

// CallOption configures a single GetSession call.
type CallOption func(*callOptions)

// WithCredentials supplies credentials for this call instead of resolving
// them from the manager's credential source.
func WithCredentials(creds config.Credentials) CallOption {
	return func(co *callOptions) {
		co.creds = creds
	}
}

// WithForceRefresh skips the cache check and forces a fresh browser login.
func WithForceRefresh() CallOption {
	return func(co *callOptions) {
		co.forceRefresh = true
	}
}

// GetSession returns an Active session for the account.
//
// A valid cached token short-circuits to a session without launching a
// browser. Otherwise the manager logs in through a browser, bridges its
// cookies, exchanges the captured auth token for a JWT, validates it with
// one probe and persists it.
//
// Concurrent calls for the same account share a single in-flight attempt:
// at most one browser login runs per account, and every waiter receives
// the same session or the same error. The attempt runs under the
// configured login timeout on its own context; a caller whose ctx ends
// first stops waiting, but the shared attempt keeps running for the
// others.
func (m *Manager) GetSession(ctx context.Context, account string, opts ...CallOption) (*Session, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}

	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	ch := m.group.DoChan(account, func() (interface{}, error) {
		return m.establish(account, co)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	}
}

// establish is the flight body: the full lifecycle for one account,
// detached from any single caller's context.
func (m *Manager) establish(account string, co callOptions) (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LoginTimeout.Std())
	defer cancel()

	if co.forceRefresh {
		m.purge(account)
	} else {
		sess, err := m.fromCache(ctx, account)
		if err != nil {
			return nil, m.phaseError(ctx, "cache validation", err)
		}
		if sess != nil {
			return sess, nil
		}
	}

	creds := co.creds
	if creds.IsZero() {
		resolved, err := m.creds()
		if err != nil {
			return nil, fmt.Errorf("no credentials for %s: %w", account, err)
		}
		creds = resolved
	}

	m.logger.Infof("account %s: starting browser login", account)
	browser, err := m.factory(ctx)
	if err != nil {
		return nil, m.phaseError(ctx, "browser login", &LoginError{Reason: "failed to start browser", Err: err})
	}
	defer browser.Close()

	if err := browser.Login(ctx, creds); err != nil {
		var le *LoginError
		if !errors.As(err, &le) {
			err = &LoginError{Err: err}
		}
		return nil, m.phaseError(ctx, "browser login", err)
	}

	cookies, err := browser.Cookies(ctx)
	if err != nil {
		return nil, m.phaseError(ctx, "browser login", &LoginError{Reason: "failed to read cookies", Err: err})
	}
	snapshot, err := browser.LocalStorage(ctx)
	if err != nil {
		return nil, m.phaseError(ctx, "browser login", &LoginError{Reason: "failed to capture localStorage", Err: err})
	}

	// The snapshot, not the browser, feeds the exchange. Close now so the
	// auth token cannot be captured twice.
	if err := browser.Close(); err != nil {
		m.logger.Warnf("account %s: browser close failed: %v", account, err)
	}

	bridged, err := NewBridgedClient(m.cfg, cookies, m.transport)
	if err != nil {
		return nil, err
	}

	m.logger.Infof("account %s: exchanging auth token", account)
	rec, err := Exchange(ctx, bridged, m.cfg, snapshot, account)
	if err != nil {
		return nil, m.phaseError(ctx, "token exchange", &AuthError{Stage: "exchange", Err: err})
	}

	// Validate before store: only a token that passed the probe is ever
	// written to the cache.
	client := m.apiClient(bridged.Jar, rec.Encoded)
	ok, err := m.probe(ctx, client)
	if err != nil {
		return nil, m.phaseError(ctx, "token validation", &AuthError{Stage: "validate", Err: err})
	}
	if !ok {
		return nil, &AuthError{Stage: "validate", Err: fmt.Errorf("freshly claimed token failed the probe")}
	}

	if err := m.cache.Store(account, rec); err != nil {
		m.logger.Warnf("account %s: failed to cache token: %v", account, err)
	}

	m.logger.Infof("account %s: session established", account)
	return m.newSession(account, rec.Encoded, client), nil
}

// fromCache tries the fast path: load the cached record and probe it once.
// Returns (nil, nil) on a miss or a rejected token (purging the latter).
// Cache-layer errors are absorbed as misses; probe transport errors
// propagate, distinct from a rejected token.
func (m *Manager) fromCache(ctx context.Context, account string) (*Session, error) {
	rec, err := m.cache.Load(account)
	if err != nil {
		m.logger.Warnf("account %s: cache load failed, treating as miss: %v", account, err)
		return nil, nil
	}
	if rec == nil || !rec.Complete() {
		return nil, nil
	}

	client := m.apiClient(nil, rec.Encoded)
	ok, err := m.probe(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("cached token probe: %w", err)
	}
	if !ok {
		m.logger.Infof("account %s: cached token rejected, purging", account)
		m.purge(account)
		return nil, nil
	}

	m.logger.Debugf("account %s: cached token accepted", account)
	return m.newSession(account, rec.Encoded, client), nil
}

// probe issues the cheap authenticated request that decides whether a
// token is still accepted. 2xx means valid, 401/403 means invalid; any
// other outcome is an error, distinct from invalid.
func (m *Manager) probe(ctx context.Context, client *http.Client) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ProbeURL(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("probe returned unexpected status %d", resp.StatusCode)
	}
}

// Logout ends the remote session best-effort, then purges the cached
// token. Idempotent: a missing cache entry is not an error.
func (m *Manager) Logout(ctx context.Context, account string) error {
	rec, err := m.cache.Load(account)
	if err != nil {
		m.logger.Warnf("account %s: cache load during logout: %v", account, err)
	}

	if rec != nil && rec.Complete() {
		client := m.apiClient(nil, rec.Encoded)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.LogoutURL(), nil)
		if err == nil {
			if resp, err := client.Do(req); err != nil {
				m.logger.Warnf("account %s: remote logout failed: %v", account, err)
			} else {
				io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				resp.Body.Close()
			}
		}
	}

	return m.cache.Purge(account)
}

// Check reports the cached record for the account and whether the server
// still accepts it. Unlike GetSession it never launches a browser and
// never purges; it exists for status inspection.
func (m *Manager) Check(ctx context.Context, account string) (*TokenRecord, bool, error) {
	rec, err := m.cache.Load(account)
	if err != nil {
		m.logger.Warnf("account %s: cache load failed: %v", account, err)
		return nil, false, nil
	}
	if rec == nil || !rec.Complete() {
		return nil, false, nil
	}

	ok, err := m.probe(ctx, m.apiClient(nil, rec.Encoded))
	if err != nil {
		return rec, false, err
	}
	return rec, ok, nil
}

// Cache exposes the manager's token cache, for status inspection.
func (m *Manager) Cache() TokenCache {
	return m.cache
}

func (m *Manager) newSession(account, encoded string, client *http.Client) *Session {
	return newSession(account, encoded, client, func() {
		m.logger.Infof("account %s: session rejected by server, purging cached token", account)
		m.purge(account)
	})
}

func (m *Manager) apiClient(jar http.CookieJar, bearer string) *http.Client {
	return &http.Client{
		Jar:       jar,
		Timeout:   m.cfg.RequestTimeout.Std(),
		Transport: &headerTransport{cfg: m.cfg, bearer: bearer, base: m.transport},
	}
}

func (m *Manager) purge(account string) {
	if err := m.cache.Purge(account); err != nil {
		m.logger.Warnf("account %s: cache purge failed: %v", account, err)
	}
}

// phaseError maps a failure caused by the flight deadline to a
// *TimeoutError naming the phase; other failures pass through.
func (m *Manager) phaseError(ctx context.Context, phase string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Phase: phase, Limit: m.cfg.LoginTimeout.Std()}
	}
	return err
}
