// Package auth manages authentication and session lifecycle for the
// OurFamilyWizard web application.
//
// The application has no public API and its login flow requires JavaScript,
// so authentication is performed by driving a real browser once, after which
// all traffic is plain HTTP. The package turns one scripted login into a
// long-lived, cached, validated bearer token.
//
// # Flow
//
// A session is established in stages:
//
//  1. CacheCheck: a previously stored token is loaded and probed with one
//     cheap authenticated request. If accepted, no browser is launched.
//  2. BrowserLogin: a BrowserSession logs in with the account credentials
//     and the browser's cookies and localStorage are captured.
//  3. Exchanging: the ephemeral auth token from localStorage is exchanged
//     at the claim endpoint for a JWT, which is base64-encoded and, once
//     validated by a probe, persisted atomically.
//  4. Active: callers receive a Session whose HTTP client injects the
//     bearer token and application headers on every request.
//
// A 401 or 403 during use purges the cached token and surfaces an
// *AuthError; the caller's retry re-enters the browser login path.
//
// # Concurrency
//
// Concurrent GetSession calls for the same account collapse into a single
// login attempt; every caller receives the same Session or the same error.
// The attempt runs on its own timeout, detached from any one caller's
// context, so an impatient caller abandoning the wait does not cancel the
// login for the others.
//
// # Example Usage
//
//	manager, err := auth.NewManager(cfg,
//	    auth.WithBrowserFactory(factory),
//	)
//	if err != nil {
//	    return err
//	}
//
//	session, err := manager.GetSession(ctx, "alice@example.com")
//	if err != nil {
//	    return err
//	}
//
//	resp, err := session.Get(ctx, cfg.APIURL("/v1/messageFolders"))
package auth
