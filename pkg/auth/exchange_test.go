package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kherry/ofw-client/pkg/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	return cfg
}

func TestExchangeMissingAuthTokenMakesNoNetworkCalls(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	snapshots := []LocalStorageSnapshot{
		{},
		{"other": "value"},
		{"auth": ""},
		nil,
	}

	for _, snapshot := range snapshots {
		rec, err := Exchange(context.Background(), server.Client(), testConfig(server.URL), snapshot, "alice")
		require.Error(t, err)
		assert.Nil(t, rec)

		var missing *MissingAuthTokenError
		assert.True(t, errors.As(err, &missing))
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestExchangeSendsRawAuthTokenAndClaimTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pub/v1/security/claim", r.URL.Path)
		assert.Equal(t, "alice@example.com", r.URL.Query().Get("userId"))
		// The ephemeral token goes on the wire raw, never encoded.
		assert.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token": "jwtABC"}`))
	}))
	defer server.Close()

	snapshot := LocalStorageSnapshot{"auth": "tok1"}
	rec, err := Exchange(context.Background(), server.Client(), testConfig(server.URL), snapshot, "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, "jwtABC", rec.Token)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jwtABC")), rec.Encoded)
	assert.False(t, rec.CachedAt.IsZero())
}

func TestExchangeUsesConfiguredUserIDAsClaimTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-42", r.URL.Query().Get("userId"))
		w.Write([]byte(`{"token": "jwtABC"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.UserID = "user-42"

	_, err := Exchange(context.Background(), server.Client(), cfg, LocalStorageSnapshot{"auth": "tok1"}, "alice")
	require.NoError(t, err)
}

func TestExchangeClaimFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"rejected", http.StatusForbidden, `{"error": "expired"}`, http.StatusForbidden},
		{"server error", http.StatusInternalServerError, "", http.StatusInternalServerError},
		{"unparsable body", http.StatusOK, "not json", http.StatusOK},
		{"no token field", http.StatusOK, `{"something": "else"}`, http.StatusOK},
		{"empty token", http.StatusOK, `{"token": ""}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			rec, err := Exchange(context.Background(), server.Client(), testConfig(server.URL), LocalStorageSnapshot{"auth": "tok1"}, "alice")
			require.Error(t, err)
			assert.Nil(t, rec)

			var claimErr *ClaimFailedError
			require.True(t, errors.As(err, &claimErr))
			assert.Equal(t, tt.wantStatus, claimErr.Status)
		})
	}
}
