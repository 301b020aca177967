package auth

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/kherry/ofw-client/pkg/config"
)

// sessionCookieNames are the names (lowercased) that identify the server
// session. At least one must survive the bridge for the client to carry
// the browser's authenticated identity.
var sessionCookieNames = map[string]bool{
	"jsessionid": true,
	"sessionid":  true,
	"session":    true,
	"sid":        true,
}

// headerTransport injects the application headers on every request. When
// bearer is set, requests without an explicit Authorization header get
// "Bearer <bearer>".
type headerTransport struct {
	cfg    *config.Config
	bearer string
	base   http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.cfg.UserAgent)
	req.Header.Set("ofw-client", t.cfg.ClientHeader)
	req.Header.Set("ofw-version", t.cfg.ClientVersion)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if t.bearer != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+t.bearer)
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewBridgedClient builds an HTTP client whose cookie jar holds the
// browser's cookies, so requests made through it carry the browser's
// authenticated identity. Cookie attributes (domain, path, expiry, secure,
// httpOnly, sameSite) are preserved.
//
// Returns a *BridgeError when the app URL is unusable or when, after
// installation, no session-identifying cookie is visible for the app
// origin.
func NewBridgedClient(cfg *config.Config, cookies CookieSet, base http.RoundTripper) (*http.Client, error) {
	appURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &BridgeError{Reason: "invalid base URL", Err: err}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, &BridgeError{Reason: "failed to create cookie jar", Err: err}
	}

	jar.SetCookies(appURL, cookies.HTTP())

	if !hasSessionCookie(jar.Cookies(appURL)) {
		return nil, &BridgeError{Reason: "no session cookie installed for " + appURL.Host}
	}

	return &http.Client{
		Jar:       jar,
		Timeout:   cfg.RequestTimeout.Std(),
		Transport: &headerTransport{cfg: cfg, base: base},
	}, nil
}

func hasSessionCookie(cookies []*http.Cookie) bool {
	for _, c := range cookies {
		if sessionCookieNames[strings.ToLower(c.Name)] && c.Value != "" {
			return true
		}
	}
	return false
}
