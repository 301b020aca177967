// Package api is the message and folder client built on authenticated
// sessions. Every call obtains its session from the auth manager, so an
// expired token transparently re-enters the login path on retry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/kherry/ofw-client/pkg/auth"
	"github.com/kherry/ofw-client/pkg/config"
	"github.com/kherry/ofw-client/pkg/logging"
)

// maxPageSize is the largest page the messages endpoint accepts.
const maxPageSize = 50

// Client calls the message API for one account.
type Client struct {
	cfg     *config.Config
	manager *auth.Manager
	account string
	logger  *logging.Logger
}

// New creates a client for the account. Sessions are obtained lazily from
// the manager on each call.
func New(cfg *config.Config, manager *auth.Manager, account string) *Client {
	logger, _ := logging.NewLogger("api")
	return &Client{
		cfg:     cfg,
		manager: manager,
		account: account,
		logger:  logger,
	}
}

// Account returns the account this client acts for.
func (c *Client) Account() string {
	return c.account
}

// Folders lists system and user folders with their message counts.
func (c *Client) Folders(ctx context.Context) (*FolderList, error) {
	var folders FolderList
	endpoint := c.cfg.APIURL("/v1/messageFolders") + "?includeFolderCounts=true"
	if err := c.getJSON(ctx, endpoint, &folders); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return &folders, nil
}

// Inbox returns the inbox folder.
func (c *Client) Inbox(ctx context.Context) (*Folder, error) {
	folders, err := c.Folders(ctx)
	if err != nil {
		return nil, err
	}
	inbox := folders.Inbox()
	if inbox == nil {
		return nil, fmt.Errorf("no inbox folder found among %d folders", len(folders.All()))
	}
	return inbox, nil
}

// ListMessagesOptions select which messages to fetch.
type ListMessagesOptions struct {
	// FolderID is the folder to read. Zero means the inbox.
	FolderID int

	// Page is 1-based; zero means the first page.
	Page int

	// Size is the page size, clamped to the endpoint's maximum of 50.
	Size int

	// Match filters the returned page client-side with a glob pattern
	// applied to subject and author name, case-insensitively.
	Match string
}

// Messages fetches one page of messages from a folder, newest first.
func (c *Client) Messages(ctx context.Context, opts ListMessagesOptions) (*MessagePage, error) {
	folderID := opts.FolderID
	if folderID == 0 {
		inbox, err := c.Inbox(ctx)
		if err != nil {
			return nil, err
		}
		folderID = inbox.ID()
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.Size
	if size < 1 || size > maxPageSize {
		size = maxPageSize
	}

	query := url.Values{}
	query.Set("folders", strconv.Itoa(folderID))
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))
	query.Set("sort", "date")
	query.Set("sortDirection", "desc")

	var result MessagePage
	endpoint := c.cfg.APIURL("/v3/messages") + "?" + query.Encode()
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	if opts.Match != "" {
		matcher, err := glob.Compile(strings.ToLower(opts.Match))
		if err != nil {
			return nil, fmt.Errorf("invalid match pattern %q: %w", opts.Match, err)
		}
		filtered := result.Data[:0]
		for _, msg := range result.Data {
			if matcher.Match(strings.ToLower(msg.Subject)) || matcher.Match(strings.ToLower(msg.Author.Name)) {
				filtered = append(filtered, msg)
			}
		}
		result.Data = filtered
	}

	return &result, nil
}

// Message fetches one message by ID, including its body.
func (c *Client) Message(ctx context.Context, id int64) (*MessageDetail, error) {
	var detail MessageDetail
	endpoint := c.cfg.APIURL("/v3/messages/" + strconv.FormatInt(id, 10))
	if err := c.getJSON(ctx, endpoint, &detail); err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", id, err)
	}
	return &detail, nil
}

// Unread returns the inbox unread count.
func (c *Client) Unread(ctx context.Context) (int, error) {
	inbox, err := c.Inbox(ctx)
	if err != nil {
		return 0, err
	}
	return inbox.UnreadMessageCount, nil
}

// getJSON performs an authenticated GET and decodes the JSON response. An
// auth failure purges the cache inside the session; one retry with a fresh
// session re-enters the login path, never more.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		session, err := c.manager.GetSession(ctx, c.account)
		if err != nil {
			return err
		}

		resp, err := session.Get(ctx, endpoint)
		if err != nil {
			var authErr *auth.AuthError
			if errors.As(err, &authErr) && attempt == 0 {
				c.logger.Infof("session rejected on %s, retrying once with a fresh session", endpoint)
				lastErr = err
				continue
			}
			return err
		}

		func() {
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				err = fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
				return
			}
			err = json.NewDecoder(resp.Body).Decode(out)
			if err != nil {
				err = fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
			}
		}()
		return err
	}
	return lastErr
}
