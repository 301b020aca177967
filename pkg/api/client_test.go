package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kherry/ofw-client/pkg/auth"
	"github.com/kherry/ofw-client/pkg/config"
)

const testAccount = "alice@example.com"

// stubBrowser lets the manager re-login without a real browser when a test
// expires the session mid-flight.
type stubBrowser struct {
	logins *int32
}

func (b *stubBrowser) Login(ctx context.Context, creds config.Credentials) error {
	atomic.AddInt32(b.logins, 1)
	return nil
}

func (b *stubBrowser) Cookies(ctx context.Context) (auth.CookieSet, error) {
	return auth.CookieSet{{Name: "JSESSIONID", Value: "s", Path: "/"}}, nil
}

func (b *stubBrowser) LocalStorage(ctx context.Context) (auth.LocalStorageSnapshot, error) {
	return auth.LocalStorageSnapshot{"auth": "tok1"}, nil
}

func (b *stubBrowser) Close() error { return nil }

type apiFixture struct {
	server *httptest.Server
	cfg    *config.Config
	cache  *auth.FileCache
	client *Client

	logins        int32
	rejectFolders int32 // 401 the next N folder listings (not probes)
	lastMessagesQ atomic.Value
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	fx := &apiFixture{}
	bearer := "Bearer " + base64.StdEncoding.EncodeToString([]byte("jwtABC"))

	mux := http.NewServeMux()
	mux.HandleFunc("/pub/v1/security/claim", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "jwtABC"})
	})
	mux.HandleFunc("/pub/v1/messageFolders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != bearer {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Probes ask for includeFolderCounts=false; only real folder
		// listings are rejected by the rejectFolders counter.
		if r.URL.Query().Get("includeFolderCounts") == "true" &&
			atomic.AddInt32(&fx.rejectFolders, -1) >= 0 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{
			"systemFolders": [
				{"folderId": 1, "folderName": "Inbox", "folderType": "INBOX", "unreadMessageCount": 3, "totalMessageCount": 12},
				{"folderId": 2, "folderName": "Sent", "folderType": "SENT", "totalMessageCount": 8}
			],
			"userFolders": [
				{"id": 7, "name": "School"}
			]
		}`))
	})
	mux.HandleFunc("/pub/v3/messages/42", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != bearer {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{
			"id": 42,
			"author": {"name": "Bob"},
			"recipients": [{"name": "Alice"}],
			"subject": "Pickup time",
			"message": "Can we move pickup to 5pm?",
			"sentDate": "2026-08-20T14:05:00Z",
			"read": false,
			"files": [{"id": 9, "name": "schedule.pdf", "size": 12345}]
		}`))
	})
	mux.HandleFunc("/pub/v3/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != bearer {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fx.lastMessagesQ.Store(r.URL.Query())
		w.Write([]byte(`{
			"metadata": {"page": 1, "first": true, "last": true},
			"data": [
				{"id": 42, "author": {"name": "Bob"}, "subject": "Pickup time", "sentDate": "2026-08-20T14:05:00Z", "read": false},
				{"id": 43, "author": {"name": "Bob"}, "subject": "June expenses invoice", "sentDate": "2026-08-19T09:00:00Z", "read": true}
			]
		}`))
	})

	fx.server = httptest.NewServer(mux)
	t.Cleanup(fx.server.Close)

	fx.cfg = config.DefaultConfig()
	fx.cfg.BaseURL = fx.server.URL

	cache, err := auth.NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)
	fx.cache = cache
	require.NoError(t, cache.Store(testAccount, auth.NewTokenRecord("jwtABC")))

	manager, err := auth.NewManager(fx.cfg,
		auth.WithBrowserFactory(func(ctx context.Context) (auth.BrowserSession, error) {
			return &stubBrowser{logins: &fx.logins}, nil
		}),
		auth.WithCache(cache),
		auth.WithCredentialSource(func() (config.Credentials, error) {
			return config.Credentials{Username: testAccount, Password: "secret"}, nil
		}),
	)
	require.NoError(t, err)

	fx.client = New(fx.cfg, manager, testAccount)
	return fx
}

func TestFoldersAndInbox(t *testing.T) {
	fx := newAPIFixture(t)

	folders, err := fx.client.Folders(context.Background())
	require.NoError(t, err)
	assert.Len(t, folders.All(), 3)

	inbox := folders.Inbox()
	require.NotNil(t, inbox)
	assert.Equal(t, 1, inbox.ID())
	assert.Equal(t, "Inbox", inbox.Name())

	// Legacy id/name fields still resolve.
	school := folders.UserFolders[0]
	assert.Equal(t, 7, school.ID())
	assert.Equal(t, "School", school.Name())

	unread, err := fx.client.Unread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, unread)
}

func TestMessagesQueryShape(t *testing.T) {
	fx := newAPIFixture(t)

	page, err := fx.client.Messages(context.Background(), ListMessagesOptions{
		FolderID: 1,
		Page:     2,
		Size:     500, // clamped
	})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.Metadata.Last)

	query := fx.lastMessagesQ.Load().(url.Values)
	assert.Equal(t, "1", query.Get("folders"))
	assert.Equal(t, "2", query.Get("page"))
	assert.Equal(t, "50", query.Get("size"), "page size is clamped to 50")
	assert.Equal(t, "date", query.Get("sort"))
	assert.Equal(t, "desc", query.Get("sortDirection"))
}

func TestMessagesDefaultsToInbox(t *testing.T) {
	fx := newAPIFixture(t)

	_, err := fx.client.Messages(context.Background(), ListMessagesOptions{})
	require.NoError(t, err)

	query := fx.lastMessagesQ.Load().(url.Values)
	assert.Equal(t, "1", query.Get("folders"), "inbox folder ID resolved from the folder list")
}

func TestMessagesMatchFiltersClientSide(t *testing.T) {
	fx := newAPIFixture(t)

	page, err := fx.client.Messages(context.Background(), ListMessagesOptions{
		FolderID: 1,
		Match:    "*invoice*",
	})
	require.NoError(t, err)

	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(43), page.Data[0].ID)
}

func TestMessagesMatchRejectsBadPattern(t *testing.T) {
	fx := newAPIFixture(t)

	_, err := fx.client.Messages(context.Background(), ListMessagesOptions{
		FolderID: 1,
		Match:    "[unclosed",
	})
	require.Error(t, err)
}

func TestMessageDetail(t *testing.T) {
	fx := newAPIFixture(t)

	msg, err := fx.client.Message(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), msg.ID)
	assert.Equal(t, "Bob", msg.Author.Name)
	assert.Equal(t, "Can we move pickup to 5pm?", msg.Body)
	require.Len(t, msg.Files, 1)
	assert.Equal(t, "schedule.pdf", msg.Files[0].Name)
}

func TestAuthFailureRetriesOnceWithFreshSession(t *testing.T) {
	fx := newAPIFixture(t)
	atomic.StoreInt32(&fx.rejectFolders, 1)

	folders, err := fx.client.Folders(context.Background())
	require.NoError(t, err)
	assert.Len(t, folders.All(), 3)

	// The 401 purged the cache, so the retry re-entered the browser login.
	assert.Equal(t, int32(1), atomic.LoadInt32(&fx.logins))
}
