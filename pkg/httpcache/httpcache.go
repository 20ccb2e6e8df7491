// Package httpcache provides cached, rate-limited HTTP fetching with retry on rate-limit responses.
package httpcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
)

// UserAgent identifies the pipeline to the archive API.
const UserAgent = "cohortmatch/1.0 (research; +https://github.com/codeGROOVE-dev/cohortmatch)"

// Retry defaults: five retries after the first attempt, backoff doubling from one second.
const (
	DefaultRetries = 5
	DefaultBackoff = time.Second
)

// maxBodySize bounds a single response body.
const maxBodySize = 64 << 20

// Stats tracks cache hit/miss statistics.
type Stats struct {
	Hits   int64
	Misses int64
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

var hits, misses atomic.Int64

// CacheStats returns the current cache statistics.
func CacheStats() Stats {
	return Stats{Hits: hits.Load(), Misses: misses.Load()}
}

// ResetStats resets the cache statistics.
func ResetStats() {
	hits.Store(0)
	misses.Store(0)
}

// Cacher allows external cache implementations for sharing across packages.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	TTL() time.Duration
}

// Cache wraps sfcache for HTTP response caching.
type Cache struct {
	*sfcache.TieredCache[string, []byte]

	ttl time.Duration
}

// New creates a new Cache with disk persistence at ~/.cache/cohortmatch.
func New(ttl time.Duration) (*Cache, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewWithPath(ttl, filepath.Join(cacheDir, "cohortmatch"))
}

// NewWithPath creates a new Cache with disk persistence at the specified path.
func NewWithPath(ttl time.Duration, cachePath string) (*Cache, error) {
	if err := os.MkdirAll(cachePath, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	persist, err := localfs.New[string, []byte]("cohortmatch", cachePath)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}

	tc, err := sfcache.NewTiered[string, []byte](persist, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Cache{TieredCache: tc, ttl: ttl}, nil
}

// TTL returns the default TTL for cache entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// URLToKey converts a URL to a cache key using SHA256 hash.
func URLToKey(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(hash[:])
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// IsRateLimited reports whether err is (or wraps) an HTTP 429 response.
func IsRateLimited(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests
}

// FetchOption tunes a single FetchURL call.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	limiter *Limiter
	retries uint
	backoff time.Duration
}

// WithLimiter sets the rate limiter consulted before every attempt.
func WithLimiter(l *Limiter) FetchOption {
	return func(c *fetchConfig) { c.limiter = l }
}

// WithRetries sets how many times a rate-limited request is retried.
func WithRetries(n uint) FetchOption {
	return func(c *fetchConfig) { c.retries = n }
}

// WithBackoff sets the delay before the first retry; each later retry doubles it.
func WithBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.backoff = d }
}

// FetchURL fetches a URL, returning the body of a 200 response.
// If cache is non-nil, concurrent callers for the same URL share one request and
// successful bodies are stored. Failures are never cached.
func FetchURL(
	ctx context.Context,
	cache Cacher,
	client *http.Client,
	req *http.Request,
	logger *slog.Logger,
	opts ...FetchOption,
) ([]byte, error) {
	cfg := &fetchConfig{limiter: defaultLimiter, retries: DefaultRetries, backoff: DefaultBackoff}
	for _, opt := range opts {
		opt(cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cache == nil {
		misses.Add(1)
		return doFetch(ctx, client, req, logger, cfg)
	}

	var wasFetched bool
	data, err := cache.GetSet(ctx, URLToKey(req.URL.String()), func(ctx context.Context) ([]byte, error) {
		wasFetched = true
		misses.Add(1)
		logger.DebugContext(ctx, "cache miss", "url", req.URL.String())
		return doFetch(ctx, client, req, logger, cfg)
	}, cache.TTL())
	if err != nil {
		return nil, err
	}

	if !wasFetched {
		hits.Add(1)
		logger.DebugContext(ctx, "cache hit", "url", req.URL.String())
	}
	return data, nil
}

func doFetch(ctx context.Context, client *http.Client, req *http.Request, logger *slog.Logger, cfg *fetchConfig) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			if cfg.limiter != nil {
				if err := cfg.limiter.Wait(ctx, req.URL.String(), logger); err != nil {
					return nil, retry.Unrecoverable(err)
				}
			}

			resp, err := client.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // intentional

			if resp.StatusCode != http.StatusOK {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck // draining for reuse
				return nil, &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String()}
			}

			return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		},
		retry.Context(ctx),
		retry.Attempts(cfg.retries+1),
		retry.Delay(cfg.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRateLimited), // only 429 is retried; everything else fails fast
		retry.OnRetry(func(n uint, err error) {
			logger.InfoContext(ctx, "rate limited, backing off",
				"attempt", n+1, "delay", cfg.backoff<<n, "url", req.URL.String(), "error", err)
		}),
	)
}
