// Package uploadcache uploads page images at most once. It remembers the
// remote URL obtained for each image key and persists the whole mapping after
// every successful upload, so interrupted runs resume without re-uploading.
package uploadcache

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billrecon/internal/resilience"
)

// ErrUploadFailed is returned by Upload when every attempt failed. Nothing is
// recorded for the key, so a later run retries it from scratch.
var ErrUploadFailed = eris.New("uploadcache: upload failed after all attempts")

// Uploader sends the image identified by key to the remote host and returns
// its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string) (string, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, key string) (string, error)

// Upload calls f.
func (f UploaderFunc) Upload(ctx context.Context, key string) (string, error) {
	return f(ctx, key)
}

// Entry is one cached upload.
type Entry struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Cache maps image keys to previously obtained URLs. Open it once per run
// and Close it when done.
type Cache struct {
	mu       sync.Mutex
	store    Store
	uploader Uploader
	policy   resilience.Policy
	entries  map[string]string
}

// Open loads the persisted mapping from store.
func Open(ctx context.Context, store Store, uploader Uploader, policy resilience.Policy) (*Cache, error) {
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "uploadcache: load")
	}
	if entries == nil {
		entries = map[string]string{}
	}
	zap.L().Debug("upload cache loaded", zap.Int("entries", len(entries)))
	return &Cache{
		store:    store,
		uploader: uploader,
		policy:   policy,
		entries:  entries,
	}, nil
}

// Get returns the cached URL for key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	url, ok := c.entries[key]
	return url, ok
}

// Put records url for key and persists the full mapping. If persisting
// fails the entry is dropped again so memory matches storage.
func (c *Cache) Put(ctx context.Context, key, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putLocked(ctx, key, url)
}

func (c *Cache) putLocked(ctx context.Context, key, url string) error {
	prev, had := c.entries[key]
	c.entries[key] = url
	if err := c.store.Save(ctx, c.entries); err != nil {
		if had {
			c.entries[key] = prev
		} else {
			delete(c.entries, key)
		}
		return eris.Wrapf(err, "uploadcache: persist %s", key)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a copy of the cache sorted by key.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for k, v := range c.entries {
		out = append(out, Entry{Key: k, URL: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Upload returns the URL for key, uploading it first if it is not cached.
// Every failure is retried identically up to the policy's attempt limit.
// When all attempts fail the returned error wraps ErrUploadFailed and the
// cache is unchanged.
func (c *Cache) Upload(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if url, ok := c.entries[key]; ok {
		zap.L().Info("skipping upload, found cached URL", zap.String("key", key), zap.String("url", url))
		return url, nil
	}

	policy := c.policy
	policy.ShouldRetry = nil
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger("upload", zap.String("key", key))
	}

	url, attempts, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (string, error) {
		return c.uploader.Upload(ctx, key)
	})
	if err != nil {
		zap.L().Error("failed to upload after multiple attempts",
			zap.String("key", key),
			zap.Int("attempts", attempts),
			zap.String("failure", resilience.Classify(err).String()),
			zap.Error(err),
		)
		return "", eris.Wrapf(ErrUploadFailed, "%s after %d attempts: %v", key, attempts, err)
	}

	if err := c.putLocked(ctx, key, url); err != nil {
		return "", err
	}
	zap.L().Info("uploaded image", zap.String("key", key), zap.String("url", url), zap.Int("attempts", attempts))
	return url, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
