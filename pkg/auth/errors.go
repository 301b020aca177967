package auth

import (
	"fmt"
	"time"
)

// LoginError reports a failed browser login: bad credentials, a missing
// success marker, or the browser itself failing.
type LoginError struct {
	Reason string
	Err    error
}

func (e *LoginError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("browser login failed: %s", e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("browser login failed: %v", e.Err)
	}
	return "browser login failed"
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// BridgeError reports that the browser's cookies could not be installed
// into the HTTP client, or that no session-identifying cookie survived the
// transfer.
type BridgeError struct {
	Reason string
	Err    error
}

func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cookie bridge failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("cookie bridge failed: %s", e.Reason)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// MissingAuthTokenError reports a localStorage snapshot without the "auth"
// key. It is raised before any network call is made.
type MissingAuthTokenError struct {
	Keys []string
}

func (e *MissingAuthTokenError) Error() string {
	return fmt.Sprintf("localStorage snapshot has no auth token (found %d keys)", len(e.Keys))
}

// ClaimFailedError reports that the claim endpoint rejected the auth token
// or returned an unusable response. The consumed auth token must not be
// retried; a fresh browser login is required.
type ClaimFailedError struct {
	Status int
	Reason string
	Err    error
}

func (e *ClaimFailedError) Error() string {
	msg := "token claim failed"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s with status %d", msg, e.Status)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	return msg
}

func (e *ClaimFailedError) Unwrap() error {
	return e.Err
}

// CacheCorruptError reports an unreadable or malformed token cache file.
// It is never returned to callers: the cache absorbs it, logs it, and
// reports a miss so the flow degrades to a fresh login.
type CacheCorruptError struct {
	Path string
	Err  error
}

func (e *CacheCorruptError) Error() string {
	return fmt.Sprintf("token cache file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CacheCorruptError) Unwrap() error {
	return e.Err
}

// AuthError reports an authentication failure: either a 401/403 observed
// during normal API use (the cached token has been purged by the time the
// caller sees this), or a failure while establishing a session. Stage names
// where it happened.
type AuthError struct {
	Stage  string
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed during %s", e.Stage)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a lifecycle phase exceeded its configured
// bound.
type TimeoutError struct {
	Phase string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not complete within %s", e.Phase, e.Limit)
}
