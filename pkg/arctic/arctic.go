// Package arctic fetches Reddit submissions from the Arctic Shift archive API.
package arctic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/httpcache"
)

// DefaultBaseURL is the public Arctic Shift endpoint.
const DefaultBaseURL = "https://arctic-shift.photon-reddit.com"

// Client handles Arctic Shift requests.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	baseURL    string
	fetchOpts  []httpcache.FetchOption
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache      httpcache.Cacher
	logger     *slog.Logger
	httpClient *http.Client
	limiter    *httpcache.Limiter
	baseURL    string
	backoff    time.Duration
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithRateLimit caps requests per second to the API host. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *config) { c.limiter = httpcache.NewLimiter(rps, 1) }
}

// WithRetryBackoff sets the initial delay after a rate-limit response.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *config) { c.backoff = d }
}

// New creates an Arctic Shift client.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{logger: slog.Default(), baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(cfg)
	}
	if _, err := url.Parse(cfg.baseURL); err != nil || cfg.baseURL == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}

	var fetchOpts []httpcache.FetchOption
	if cfg.limiter != nil {
		fetchOpts = append(fetchOpts, httpcache.WithLimiter(cfg.limiter))
	}
	if cfg.backoff > 0 {
		fetchOpts = append(fetchOpts, httpcache.WithBackoff(cfg.backoff))
	}

	return &Client{
		httpClient: hc,
		cache:      cfg.cache,
		logger:     cfg.logger,
		baseURL:    cfg.baseURL,
		fetchOpts:  fetchOpts,
	}, nil
}

// item is the subset of an archive record we keep. Posts carry selftext,
// comments carry body.
type item struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Selftext   *string         `json:"selftext"`
	Body       *string         `json:"body"`
	Author     string          `json:"author"`
	Subreddit  string          `json:"subreddit"`
	CreatedUTC json.Number     `json:"created_utc"`
	Score      json.RawMessage `json:"score"`
}

type response struct {
	Error string `json:"error"`
	Data  []item `json:"data"`
}

// Submissions returns a user's posts followed by their comments, with comments
// normalized to the post schema. A failure on either request fails the whole call.
func (c *Client) Submissions(ctx context.Context, username string) ([]cohort.Post, error) {
	c.logger.DebugContext(ctx, "fetching submissions", "username", username)

	q := url.Values{"author": {username}, "limit": {"auto"}}
	posts, err := c.search(ctx, "/api/posts/search", q)
	if err != nil {
		return nil, fmt.Errorf("posts for %s: %w", username, err)
	}
	comments, err := c.search(ctx, "/api/comments/search", q)
	if err != nil {
		return nil, fmt.Errorf("comments for %s: %w", username, err)
	}

	c.logger.DebugContext(ctx, "fetched submissions", "username", username, "posts", len(posts), "comments", len(comments))
	return append(posts, comments...), nil
}

// SubredditPosts returns up to limit recent posts from a subreddit.
func (c *Client) SubredditPosts(ctx context.Context, subreddit string, limit int) ([]cohort.Post, error) {
	q := url.Values{"subreddit": {subreddit}, "limit": {strconv.Itoa(limit)}}
	posts, err := c.search(ctx, "/api/posts/search", q)
	if err != nil {
		return nil, fmt.Errorf("posts in r/%s: %w", subreddit, err)
	}
	return posts, nil
}

func (c *Client) search(ctx context.Context, path string, q url.Values) ([]cohort.Post, error) {
	u := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept", "application/json")

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger, c.fetchOpts...)
	if httpcache.IsRateLimited(err) {
		return nil, fmt.Errorf("%w: %w", cohort.ErrRateLimited, err)
	}
	if err != nil {
		return nil, err
	}
	return parseResponse(body)
}

func parseResponse(body []byte) ([]cohort.Post, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("api error: %s", resp.Error)
	}

	posts := make([]cohort.Post, 0, len(resp.Data))
	for _, it := range resp.Data {
		posts = append(posts, it.post())
	}
	return posts, nil
}

func (it item) post() cohort.Post {
	p := cohort.Post{
		ID:        it.ID,
		Title:     it.Title,
		Author:    it.Author,
		Subreddit: it.Subreddit,
		Score:     parseScore(it.Score),
	}
	switch {
	case it.Selftext != nil:
		p.Selftext = *it.Selftext
	case it.Body != nil:
		p.Selftext = *it.Body
	}
	if ts, err := it.CreatedUTC.Float64(); err == nil {
		p.CreatedUTC = int64(ts)
	}
	return p
}

// parseScore accepts numeric or quoted scores; anything else is zero.
func parseScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
