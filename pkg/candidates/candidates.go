// Package candidates builds each diagnosed user's pool of potential controls
// from the recent authors of the subreddits that user posts in.
package candidates

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	"golang.org/x/sync/errgroup"
)

// Defaults used when no option overrides them.
const (
	DefaultWorkers = 10
	DefaultLimit   = 100
)

// Source lists recent posts in a subreddit.
type Source interface {
	SubredditPosts(ctx context.Context, subreddit string, limit int) ([]cohort.Post, error)
}

// skipAuthors are never useful as controls.
var skipAuthors = map[string]bool{
	"":              true,
	"[deleted]":     true,
	"AutoModerator": true,
}

type config struct {
	logger   *slog.Logger
	workers  int
	limit    int
	minPosts int
}

// Option configures Expand.
type Option func(*config)

// WithWorkers sets how many subreddits are fetched concurrently.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithLimit sets how many posts are read per subreddit.
func WithLimit(n int) Option {
	return func(c *config) { c.limit = n }
}

// WithMinDiagnosedPosts drops diagnosed users with fewer than n posts.
func WithMinDiagnosedPosts(n int) Option {
	return func(c *config) { c.minPosts = n }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Expand returns a copy of users with CandidateUsernames set to the sorted,
// de-duplicated authors of each user's non-mental-health subreddits. A
// subreddit that fails to load contributes no authors.
func Expand(ctx context.Context, src Source, users []cohort.DiagnosedUser, opts ...Option) ([]cohort.DiagnosedUser, error) {
	cfg := &config{logger: slog.Default(), workers: DefaultWorkers, limit: DefaultLimit}
	for _, opt := range opts {
		opt(cfg)
	}

	out := make([]cohort.DiagnosedUser, 0, len(users))
	total := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if u.PostCount < cfg.minPosts {
			cfg.logger.InfoContext(ctx, "dropping diagnosed user with too few posts",
				"username", u.Username, "posts", u.PostCount, "min", cfg.minPosts)
			continue
		}

		authors := collectAuthors(ctx, src, u.NonMentalHealthSubreddits, cfg)
		delete(authors, u.Username)
		u.CandidateUsernames = slices.Sorted(maps.Keys(authors))
		if u.CandidateUsernames == nil {
			u.CandidateUsernames = []string{}
		}

		total += len(u.CandidateUsernames)
		cfg.logger.InfoContext(ctx, "expanded diagnosed user",
			"username", u.Username, "subreddits", len(u.NonMentalHealthSubreddits), "candidates", len(u.CandidateUsernames))
		out = append(out, u)
	}

	if len(out) > 0 {
		cfg.logger.InfoContext(ctx, "candidate expansion complete",
			"users", len(out), "dropped", len(users)-len(out), "avg_candidates", float64(total)/float64(len(out)))
	}
	return out, ctx.Err()
}

func collectAuthors(ctx context.Context, src Source, subreddits []string, cfg *config) map[string]bool {
	var mu sync.Mutex
	authors := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.workers))
	for _, sub := range subreddits {
		g.Go(func() error {
			posts, err := src.SubredditPosts(gctx, sub, cfg.limit)
			if err != nil {
				cfg.logger.InfoContext(gctx, "subreddit fetch failed", "subreddit", sub, "error", err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, p := range posts {
				if !skipAuthors[p.Author] {
					authors[p.Author] = true
				}
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // per-subreddit failures are logged, never returned
	return authors
}
