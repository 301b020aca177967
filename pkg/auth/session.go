package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// Session is a live authenticated handle: an HTTP client that injects the
// encoded bearer token and application headers on every request. Sessions
// are handed out by the Manager and shared by all callers of the flight
// that produced them.
//
// The first 401 or 403 observed through the Session purges the account's
// cached token and flips the state to Expired; every auth failure is
// returned as an *AuthError so the caller's retry re-enters the login
// path.
type Session struct {
	id      string
	account string
	encoded string
	client  *http.Client

	mu         sync.Mutex
	state      State
	expireOnce sync.Once
	onExpire   func()
}

func newSession(account, encoded string, client *http.Client, onExpire func()) *Session {
	return &Session{
		id:       uuid.New().String(),
		account:  account,
		encoded:  encoded,
		client:   client,
		state:    StateActive,
		onExpire: onExpire,
	}
}

// ID returns the session's unique identifier, for logging.
func (s *Session) ID() string {
	return s.id
}

// Account returns the account the session authenticates.
func (s *Session) Account() string {
	return s.account
}

// EncodedToken returns the base64-encoded bearer token carried on every
// request.
func (s *Session) EncodedToken() string {
	return s.encoded
}

// State reports whether the session is Active or Expired.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Do sends the request through the session's client. A 401 or 403 response
// expires the session and returns an *AuthError; other responses are
// returned to the caller unread.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if s.State() == StateExpired {
		return nil, &AuthError{Stage: "api", Err: fmt.Errorf("session %s is expired", s.id)}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		s.expire()
		return nil, &AuthError{Stage: "api", Status: resp.StatusCode}
	}

	return resp, nil
}

// Get issues a GET through the session.
func (s *Session) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	return s.Do(req)
}

// expire purges the cached token exactly once and marks the session
// Expired.
func (s *Session) expire() {
	s.expireOnce.Do(func() {
		s.mu.Lock()
		s.state = StateExpired
		s.mu.Unlock()
		if s.onExpire != nil {
			s.onExpire()
		}
	})
}
