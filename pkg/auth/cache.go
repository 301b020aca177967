package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kherry/ofw-client/pkg/logging"
)

// FileCache persists one token record per account as a JSON file under its
// root directory. Writes go through a temp file and an atomic rename so a
// concurrent reader never observes a partial record.
//
// Corrupt or unreadable files are absorbed: Load logs the problem and
// reports a miss, so the caller degrades to a fresh login instead of
// failing on stale state.
type FileCache struct {
	dir    string
	mu     sync.Mutex
	logger *logging.Logger
}

// NewFileCache creates a cache rooted at dir, creating it if needed.
func NewFileCache(dir string, logger *logging.Logger) (*FileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{dir: dir, logger: logger}, nil
}

// Path returns the cache file path for an account.
func (c *FileCache) Path(account string) string {
	return filepath.Join(c.dir, "token-"+sanitizeAccount(account)+".json")
}

// Load returns the stored record for the account, or (nil, nil) when no
// usable record exists. Corruption never propagates.
func (c *FileCache) Load(account string) (*TokenRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(account)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		c.absorb(&CacheCorruptError{Path: path, Err: err})
		return nil, nil
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.absorb(&CacheCorruptError{Path: path, Err: err})
		return nil, nil
	}
	if !rec.Complete() {
		c.absorb(&CacheCorruptError{Path: path, Err: fmt.Errorf("record is missing fields")})
		return nil, nil
	}

	return &rec, nil
}

// Store writes the record for the account. The write is atomic: a temp
// file in the same directory is renamed over the final path, and every
// failure branch removes the temp file.
func (c *FileCache) Store(account string, rec *TokenRecord) error {
	if !rec.Complete() {
		return fmt.Errorf("refusing to cache incomplete token record for %s", account)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(account)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rec); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode token record: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	return nil
}

// Purge removes the account's record. A missing file is success, so Purge
// is idempotent.
func (c *FileCache) Purge(account string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.Path(account)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

func (c *FileCache) absorb(err *CacheCorruptError) {
	if c.logger != nil {
		c.logger.Warnf("treating cache as empty: %v", err)
	}
}

// sanitizeAccount maps an account identifier to a safe file name fragment.
func sanitizeAccount(account string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(account) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
