// Package cache stores fetched cover art on disk with LRU eviction
// tracked in the database, so repeated views of a playlist do not
// re-download the same images.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/repository"
	"github.com/meloplay/meloplay/internal/utils"
)

type FileCache struct {
	cfg  *config.Config
	repo *repository.Repo
	mu   sync.Mutex
}

func NewFileCache(cfg *config.Config, repo *repository.Repo) *FileCache {
	return &FileCache{cfg: cfg, repo: repo}
}

func (c *FileCache) HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *FileCache) PathFor(hash string) string {
	return filepath.Join(c.cfg.CacheDir, hash)
}

// Get returns the cached path when the asset is on disk. A row whose
// file has vanished is dropped so it gets refetched.
func (c *FileCache) Get(ctx context.Context, hash string) (string, bool) {
	p := c.PathFor(hash)
	if _, err := os.Stat(p); err == nil {
		_ = c.repo.CacheTouch(ctx, hash, 0, false)
		return p, true
	}
	_ = c.repo.CacheRemove(ctx, hash)
	return "", false
}

func (c *FileCache) createTemp(hash string) (*os.File, string, error) {
	tmp := filepath.Join(c.cfg.CacheDir, "tmp", hash)
	f, err := os.Create(tmp)
	return f, tmp, err
}

func (c *FileCache) commit(ctx context.Context, tmp, finalPath, hash string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return nil
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		return err
	}
	_ = c.repo.CacheTouch(ctx, hash, info.Size(), true)
	return c.evictIfNeeded(ctx)
}

func (c *FileCache) evictIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	total, err := c.repo.CacheTotalBytes(ctx)
	if err != nil {
		return err
	}
	for total > c.cfg.CacheLimitBytes {
		oldest, err := c.repo.CacheOldest(ctx)
		if err != nil {
			return err
		}
		_ = os.Remove(c.PathFor(oldest))
		_ = c.repo.CacheRemove(ctx, oldest)
		total, err = c.repo.CacheTotalBytes(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteStream caches the reader's contents under the key and returns
// the on-disk path.
func (c *FileCache) WriteStream(ctx context.Context, key string, src io.Reader) (string, error) {
	hash := c.HashKey(key)
	final := c.PathFor(hash)
	if _, ok := c.Get(ctx, hash); ok {
		return final, nil
	}
	f, tmp, err := c.createTemp(hash)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := c.commit(ctx, tmp, final, hash); err != nil {
		return "", err
	}
	return final, nil
}

// FetchCover downloads a cover image through the shared client unless
// it is already cached, returning the local path.
func (c *FileCache) FetchCover(ctx context.Context, client *http.Client, coverURL string) (string, error) {
	hash := c.HashKey(coverURL)
	if p, ok := c.Get(ctx, hash); ok {
		return p, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover fetch: HTTP %d", resp.StatusCode)
	}
	return c.WriteStream(ctx, coverURL, resp.Body)
}
