// Package browser drives a real Chromium instance through Playwright to
// perform the interactive login the application requires, and captures the
// cookies and localStorage the auth package needs afterwards.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/kherry/ofw-client/pkg/auth"
	"github.com/kherry/ofw-client/pkg/config"
	"github.com/kherry/ofw-client/pkg/logging"
)

const (
	viewportWidth  = 1280
	viewportHeight = 720

	usernameSelector         = "#username"
	usernameFallbackSelector = "input[name='username']"
	passwordSelector         = "#password"
	passwordFallbackSelector = "input[name='password']"

	// Submit button candidates, tried in order.
	submitSelector = "button[type='submit'], input[type='submit'], [name='submit']"

	// Both must appear for the login to count as successful.
	greetingSelector      = "div#greeting"
	notificationsSelector = "div#notificationsSection"

	errorSelector = ".error, .alert-danger"
)

// localStorageScript captures every localStorage entry. String values that
// are JSON-encoded strings are unwrapped, matching what the application
// stores; anything else is kept raw.
const localStorageScript = `() => {
	const out = {};
	for (let i = 0; i < localStorage.length; i++) {
		const key = localStorage.key(i);
		let value = localStorage.getItem(key);
		try {
			const parsed = JSON.parse(value);
			if (typeof parsed === 'string') {
				value = parsed;
			}
		} catch (e) {
			// keep raw
		}
		out[key] = value;
	}
	return out;
}`

// Browser is a Playwright-backed auth.BrowserSession. One Browser performs
// one login; it is closed as soon as its cookies and localStorage have
// been captured.
type Browser struct {
	cfg       *config.Config
	logger    *logging.Logger
	pw        *playwright.Playwright
	browser   playwright.Browser
	context   playwright.BrowserContext
	page      playwright.Page
	closeOnce sync.Once
	closeErr  error
}

// Factory returns an auth.BrowserFactory producing Playwright browsers for
// the given configuration.
func Factory(cfg *config.Config) auth.BrowserFactory {
	return func(ctx context.Context) (auth.BrowserSession, error) {
		return New(ctx, cfg)
	}
}

// New launches Chromium and prepares a page for the login flow. The
// Playwright driver is installed on first use.
func New(ctx context.Context, cfg *config.Config) (*Browser, error) {
	logger, _ := logging.NewLogger("browser")

	// Driver chatter goes to the run log, not the terminal.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  logger.Writer(),
		Stderr:  logger.Writer(),
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b := &Browser{cfg: cfg, logger: logger, pw: pw}

	b.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b.context, err = b.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  viewportWidth,
			Height: viewportHeight,
		},
		UserAgent: playwright.String(cfg.UserAgent),
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	b.page, err = b.context.NewPage()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	b.page.SetDefaultTimeout(float64(cfg.LoginTimeout.Std().Milliseconds()))

	return b, nil
}

// Login navigates to the login page, submits the credentials and waits for
// the post-login markers. Failures come back as *auth.LoginError carrying
// any on-page error text.
func (b *Browser) Login(ctx context.Context, creds config.Credentials) error {
	if creds.IsZero() {
		return &auth.LoginError{Reason: "username and password are required"}
	}

	b.logger.Infof("navigating to %s", b.cfg.LoginURL())
	if _, err := b.page.Goto(b.cfg.LoginURL(), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return &auth.LoginError{Reason: "login page did not load", Err: err}
	}

	if err := b.fillFirst(creds.Username, usernameSelector, usernameFallbackSelector); err != nil {
		return b.loginFailure("username field not found", err)
	}
	if err := b.fillFirst(creds.Password, passwordSelector, passwordFallbackSelector); err != nil {
		return b.loginFailure("password field not found", err)
	}

	if err := b.page.Click(submitSelector); err != nil {
		return b.loginFailure("submit button not found", err)
	}

	// Both markers must be present; their appearance is the only reliable
	// signal that the JavaScript app accepted the login.
	for _, marker := range []string{greetingSelector, notificationsSelector} {
		if _, err := b.page.WaitForSelector(marker, playwright.PageWaitForSelectorOptions{
			State: playwright.WaitForSelectorStateAttached,
		}); err != nil {
			reason := "post-login markers did not appear"
			if msg := b.pageErrorText(); msg != "" {
				reason = fmt.Sprintf("login rejected: %s", msg)
			}
			return b.loginFailure(reason, err)
		}
	}

	b.logger.Infof("login markers present, login succeeded")
	return nil
}

// Cookies returns the browser context's cookies as a typed set.
func (b *Browser) Cookies(ctx context.Context) (auth.CookieSet, error) {
	raw, err := b.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read browser cookies: %w", err)
	}

	set := make(auth.CookieSet, 0, len(raw))
	for _, c := range raw {
		cookie := auth.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		// Playwright reports expiry as unix seconds, -1 for session
		// cookies.
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		set = append(set, cookie)
	}
	return set, nil
}

// LocalStorage captures the page's localStorage. The primary path runs a
// script in the page; if that fails, the storage snapshot endpoint is
// fetched directly.
func (b *Browser) LocalStorage(ctx context.Context) (auth.LocalStorageSnapshot, error) {
	result, err := b.page.Evaluate(localStorageScript)
	if err == nil {
		if snapshot := toSnapshot(result); len(snapshot) > 0 {
			return snapshot, nil
		}
	} else {
		b.logger.Warnf("localStorage script failed, trying snapshot endpoint: %v", err)
	}

	return b.localStorageFromEndpoint()
}

// localStorageFromEndpoint loads the application's own storage snapshot
// endpoint, which mirrors localStorage as JSON.
func (b *Browser) localStorageFromEndpoint() (auth.LocalStorageSnapshot, error) {
	if _, err := b.page.Goto(b.cfg.StorageURL()); err != nil {
		return nil, fmt.Errorf("failed to load storage snapshot endpoint: %w", err)
	}

	body, err := b.page.TextContent("body")
	if err != nil {
		return nil, fmt.Errorf("failed to read storage snapshot body: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &raw); err != nil {
		return nil, fmt.Errorf("storage snapshot is not valid JSON: %w", err)
	}
	return toSnapshot(raw), nil
}

// Logout navigates to the logout URL. Best effort.
func (b *Browser) Logout(ctx context.Context) error {
	if _, err := b.page.Goto(b.cfg.LogoutURL()); err != nil {
		return fmt.Errorf("failed to load logout page: %w", err)
	}
	return nil
}

// Close releases the page, context, browser and driver in order. Safe to
// call more than once; the first error wins.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		if b.page != nil {
			if err := b.page.Close(); err != nil && b.closeErr == nil {
				b.closeErr = err
			}
		}
		if b.context != nil {
			if err := b.context.Close(); err != nil && b.closeErr == nil {
				b.closeErr = err
			}
		}
		if b.browser != nil {
			if err := b.browser.Close(); err != nil && b.closeErr == nil {
				b.closeErr = err
			}
		}
		if b.pw != nil {
			if err := b.pw.Stop(); err != nil && b.closeErr == nil {
				b.closeErr = err
			}
		}
	})
	return b.closeErr
}

// fillFirst fills the first selector that matches an element on the page.
func (b *Browser) fillFirst(value string, selectors ...string) error {
	var lastErr error
	for _, selector := range selectors {
		element, err := b.page.QuerySelector(selector)
		if err != nil || element == nil {
			lastErr = err
			continue
		}
		if err := b.page.Fill(selector, value); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no selector matched: %s", strings.Join(selectors, ", "))
	}
	return lastErr
}

// pageErrorText collects visible login error text, if any.
func (b *Browser) pageErrorText() string {
	elements, err := b.page.QuerySelectorAll(errorSelector)
	if err != nil {
		return ""
	}
	var parts []string
	for _, el := range elements {
		if text, err := el.TextContent(); err == nil {
			if text = strings.TrimSpace(text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "; ")
}

// loginFailure wraps the error, taking a debug screenshot when enabled.
func (b *Browser) loginFailure(reason string, err error) error {
	if b.cfg.DebugScreenshots {
		b.screenshot("login-failure")
	}
	return &auth.LoginError{Reason: reason, Err: err}
}

func (b *Browser) screenshot(label string) {
	dir, err := b.cfg.ResolveDebugDir()
	if err != nil {
		b.logger.Warnf("no debug directory for screenshot: %v", err)
		return
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		b.logger.Warnf("failed to create debug directory: %v", err)
		return
	}

	name := fmt.Sprintf("%s-%s.png", label, uuid.New().String()[:8])
	path := filepath.Join(dir, name)
	if _, err := b.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		b.logger.Warnf("screenshot failed: %v", err)
		return
	}
	b.logger.Infof("saved screenshot %s", path)
}

// toSnapshot converts a script or JSON result into the typed snapshot,
// re-serializing non-string values.
func toSnapshot(result interface{}) auth.LocalStorageSnapshot {
	raw, ok := result.(map[string]interface{})
	if !ok {
		return nil
	}

	snapshot := make(auth.LocalStorageSnapshot, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			snapshot[key] = v
		default:
			if data, err := json.Marshal(v); err == nil {
				snapshot[key] = string(data)
			}
		}
	}
	return snapshot
}
