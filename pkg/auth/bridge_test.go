package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBridgedClientCarriesSessionCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := r.Cookie("JSESSIONID")
		require.NoError(t, err)
		assert.Equal(t, "abc123", session.Value)

		other, err := r.Cookie("preferences")
		require.NoError(t, err)
		assert.Equal(t, "compact", other.Value)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cookies := CookieSet{
		{Name: "JSESSIONID", Value: "abc123", Path: "/", Secure: false, HTTPOnly: true},
		{Name: "preferences", Value: "compact", Path: "/", Expires: time.Now().Add(time.Hour)},
	}

	client, err := NewBridgedClient(testConfig(server.URL), cookies, nil)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/pub/v1/check", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestNewBridgedClientSessionCookieVariants(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
	}{
		{"JSESSIONID", "JSESSIONID"},
		{"lowercase jsessionid", "jsessionid"},
		{"sessionid", "sessionid"},
		{"session", "session"},
		{"sid", "sid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookies := CookieSet{{Name: tt.cookie, Value: "v", Path: "/"}}
			_, err := NewBridgedClient(testConfig("https://ofw.example.com"), cookies, nil)
			assert.NoError(t, err)
		})
	}
}

func TestNewBridgedClientRejectsJarWithoutSessionCookie(t *testing.T) {
	cookies := CookieSet{
		{Name: "preferences", Value: "compact", Path: "/"},
		{Name: "tracking", Value: "x", Path: "/"},
	}

	client, err := NewBridgedClient(testConfig("https://ofw.example.com"), cookies, nil)
	require.Error(t, err)
	assert.Nil(t, client)

	var bridgeErr *BridgeError
	assert.True(t, errors.As(err, &bridgeErr))
}

func TestHeaderTransportInjectsAppHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "WebApplication", r.Header.Get("ofw-client"))
		assert.Equal(t, "1.0.0", r.Header.Get("ofw-version"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Chrome")
		assert.Equal(t, "Bearer enc-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{
		Transport: &headerTransport{cfg: testConfig(server.URL), bearer: "enc-token"},
	}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestHeaderTransportKeepsExplicitAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A request that sets its own bearer, like the claim call, wins
		// over the transport's.
		assert.Equal(t, "Bearer raw-auth-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{
		Transport: &headerTransport{cfg: testConfig(server.URL), bearer: "enc-token"},
	}

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer raw-auth-token")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
}
