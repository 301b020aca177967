package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/kherry/ofw-client/pkg/config"
)

// State describes where an account sits in the session lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateCacheCheck
	StateBrowserLogin
	StateExchanging
	StateActive
	StateExpired
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateCacheCheck:
		return "cache-check"
	case StateBrowserLogin:
		return "browser-login"
	case StateExchanging:
		return "exchanging"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Cookie is one browser cookie with the attributes needed to reproduce it
// in an HTTP cookie jar. A zero Expires means a session cookie.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// HTTP converts the cookie for use with net/http.
func (c Cookie) HTTP() *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	switch strings.ToLower(c.SameSite) {
	case "lax":
		cookie.SameSite = http.SameSiteLaxMode
	case "strict":
		cookie.SameSite = http.SameSiteStrictMode
	case "none":
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}

// CookieSet is a snapshot of the browser's cookies after login.
type CookieSet []Cookie

// HTTP converts the whole set.
func (cs CookieSet) HTTP() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(cs))
	for _, c := range cs {
		cookies = append(cookies, c.HTTP())
	}
	return cookies
}

// Names returns the cookie names, for logging.
func (cs CookieSet) Names() []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}

// authTokenKey is the localStorage key holding the ephemeral auth token.
const authTokenKey = "auth"

// LocalStorageSnapshot is the browser's localStorage captured after login.
// Values are stored as strings; JSON-encoded string values are unwrapped by
// the capturing side.
type LocalStorageSnapshot map[string]string

// AuthToken returns the ephemeral auth token, if present.
func (s LocalStorageSnapshot) AuthToken() (string, bool) {
	token, ok := s[authTokenKey]
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// TokenRecord is the persisted unit of the token cache: the raw JWT from
// the claim exchange, its base64 form carried as the API bearer, and the
// time it was cached.
type TokenRecord struct {
	Token    string    `json:"token"`
	Encoded  string    `json:"encoded"`
	CachedAt time.Time `json:"cachedAt"`
}

// NewTokenRecord builds a record from a raw JWT, encoding it for bearer
// use and stamping the cache time.
func NewTokenRecord(jwt string) *TokenRecord {
	return &TokenRecord{
		Token:    jwt,
		Encoded:  base64.StdEncoding.EncodeToString([]byte(jwt)),
		CachedAt: time.Now().UTC(),
	}
}

// Complete reports whether all fields a cached record needs are present.
func (r *TokenRecord) Complete() bool {
	return r != nil && r.Token != "" && r.Encoded != "" && !r.CachedAt.IsZero()
}

// BrowserSession is the scripted browser used for login. Implementations
// live outside this package; the manager only needs login, capture and
// cleanup.
type BrowserSession interface {
	// Login drives the login form and waits for the post-login markers.
	Login(ctx context.Context, creds config.Credentials) error

	// Cookies returns the browser's cookies after a successful login.
	Cookies(ctx context.Context) (CookieSet, error)

	// LocalStorage captures the app's localStorage after a successful
	// login.
	LocalStorage(ctx context.Context) (LocalStorageSnapshot, error)

	// Close releases the browser. Safe to call more than once.
	Close() error
}

// BrowserFactory creates a BrowserSession for one login attempt.
type BrowserFactory func(ctx context.Context) (BrowserSession, error)

// TokenCache persists one token record per account. Load returns
// (nil, nil) when no usable record exists.
type TokenCache interface {
	Load(account string) (*TokenRecord, error)
	Store(account string, rec *TokenRecord) error
	Purge(account string) error
}

// CredentialSource supplies credentials when a GetSession call does not
// carry them.
type CredentialSource func() (config.Credentials, error)
