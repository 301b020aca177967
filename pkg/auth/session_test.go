package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionDoPassesSuccessThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	session := newSession("alice", "enc", server.Client(), nil)

	resp, err := session.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, StateActive, session.State())
}

func TestSessionExpiresOnceAcrossRepeatedFailures(t *testing.T) {
	var status int32 = http.StatusUnauthorized
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer server.Close()

	var purges int32
	session := newSession("alice", "enc", server.Client(), func() {
		atomic.AddInt32(&purges, 1)
	})

	_, err := session.Get(context.Background(), server.URL)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)

	// An expired session fails fast; the purge hook never fires again.
	_, err = session.Get(context.Background(), server.URL)
	require.True(t, errors.As(err, &authErr))

	assert.Equal(t, int32(1), atomic.LoadInt32(&purges))
	assert.Equal(t, StateExpired, session.State())
}

func TestSessionForbiddenAlsoExpires(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	session := newSession("alice", "enc", server.Client(), nil)

	_, err := session.Get(context.Background(), server.URL)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusForbidden, authErr.Status)
	assert.Equal(t, StateExpired, session.State())
}
