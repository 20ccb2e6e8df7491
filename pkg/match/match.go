// Package match greedily pairs each diagnosed user with a bounded number of control users.
//
// For every diagnosed user, candidates are evaluated in order: already-used
// names are skipped without a fetch, the rest are fetched and filtered, and a
// candidate is accepted when its cleaned post count is at least the minimum and
// lies strictly inside the window derived from the diagnosed user's post count.
// A username is accepted for at most one diagnosed user per run.
package match

import (
	"context"
	"errors"
	"log/slog"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/filter"
	"golang.org/x/sync/errgroup"
)

// Defaults used when no option overrides them.
const (
	DefaultMinControls = 9
	DefaultMinPosts    = 50
)

// Fetcher returns a user's combined posts and comments.
type Fetcher interface {
	Submissions(ctx context.Context, username string) ([]cohort.Post, error)
}

// Sink receives one result per diagnosed user, in input order.
type Sink interface {
	Add(ctx context.Context, result cohort.MatchResult) error
}

// Stats counts candidate outcomes across a run.
type Stats struct {
	Diagnosed     int // diagnosed users processed
	FullyMatched  int // diagnosed users that reached the control quota
	Invalid       int // diagnosed users skipped as malformed
	Accepted      int
	AlreadyUsed   int
	Excluded      int // vetoed, or no usable text left after cleaning
	TooFewPosts   int
	OutsideWindow int
	FetchFailures int
	RateLimited   int // subset of FetchFailures
}

func (s *Stats) add(o Stats) {
	s.Diagnosed += o.Diagnosed
	s.FullyMatched += o.FullyMatched
	s.Invalid += o.Invalid
	s.Accepted += o.Accepted
	s.AlreadyUsed += o.AlreadyUsed
	s.Excluded += o.Excluded
	s.TooFewPosts += o.TooFewPosts
	s.OutsideWindow += o.OutsideWindow
	s.FetchFailures += o.FetchFailures
	s.RateLimited += o.RateLimited
}

// Matcher selects controls for diagnosed users.
type Matcher struct {
	fetcher     Fetcher
	filter      *filter.Filter
	used        *Used
	logger      *slog.Logger
	minControls int
	minPosts    int
	workers     int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMinControls sets how many controls each diagnosed user should receive.
func WithMinControls(n int) Option {
	return func(m *Matcher) { m.minControls = n }
}

// WithMinPosts sets the minimum cleaned post count for a control.
func WithMinPosts(n int) Option {
	return func(m *Matcher) { m.minPosts = n }
}

// WithWorkers sets how many candidates are fetched concurrently. One means sequential.
func WithWorkers(n int) Option {
	return func(m *Matcher) { m.workers = n }
}

// WithUsed shares a used-controls set, e.g. one seeded from an earlier run.
func WithUsed(u *Used) Option {
	return func(m *Matcher) { m.used = u }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) { m.logger = logger }
}

// New creates a Matcher.
func New(fetcher Fetcher, f *filter.Filter, opts ...Option) *Matcher {
	m := &Matcher{
		fetcher:     fetcher,
		filter:      f,
		logger:      slog.Default(),
		minControls: DefaultMinControls,
		minPosts:    DefaultMinPosts,
		workers:     1,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.used == nil {
		m.used = NewUsed()
	}
	m.workers = max(1, m.workers)
	m.minControls = max(1, m.minControls)
	return m
}

// Used returns the matcher's used-controls set.
func (m *Matcher) Used() *Used { return m.used }

// Run matches every diagnosed user in order and hands each result to sink.
// Diagnosed usernames are never accepted as controls. A sink error or context
// cancellation stops the run.
func (m *Matcher) Run(ctx context.Context, users []cohort.DiagnosedUser, sink Sink) (Stats, error) {
	var total Stats
	diagnosed := make(map[string]bool, len(users))
	for _, u := range users {
		diagnosed[u.Username] = true
	}

	for i, u := range users {
		if err := u.Validate(); err != nil {
			m.logger.WarnContext(ctx, "skipping diagnosed user", "index", i, "error", err)
			total.Invalid++
			continue
		}

		result, stats, err := m.match(ctx, u, diagnosed)
		total.add(stats)
		if err != nil {
			return total, err
		}
		if err := sink.Add(ctx, result); err != nil {
			return total, err
		}
		m.logger.InfoContext(ctx, "matched diagnosed user",
			"username", u.Username, "controls", len(result.Controls),
			"progress", i+1, "total", len(users))
	}
	return total, nil
}

// MatchUser selects controls for a single diagnosed user.
func (m *Matcher) MatchUser(ctx context.Context, u cohort.DiagnosedUser) (cohort.MatchResult, Stats, error) {
	if err := u.Validate(); err != nil {
		return cohort.MatchResult{}, Stats{Invalid: 1}, err
	}
	return m.match(ctx, u, map[string]bool{u.Username: true})
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeFetchFailed
	outcomeExcluded
	outcomeTooFew
)

type evaluation struct {
	err      error
	username string
	reason   string
	posts    []cohort.Post
	outcome  outcome
}

func (m *Matcher) match(ctx context.Context, u cohort.DiagnosedUser, diagnosed map[string]bool) (cohort.MatchResult, Stats, error) {
	stats := Stats{Diagnosed: 1}
	result := cohort.MatchResult{
		DiagnosedUser:      u.Username,
		DiagnosedPostCount: u.PostCount,
		Controls:           []cohort.ControlCandidate{},
	}

	seen := make(map[string]bool, len(u.CandidateUsernames))
	next := 0
	for next < len(u.CandidateUsernames) && len(result.Controls) < m.minControls {
		if err := ctx.Err(); err != nil {
			return result, stats, err
		}

		var wave []string
		for next < len(u.CandidateUsernames) && len(wave) < m.workers {
			name := u.CandidateUsernames[next]
			next++
			if name == "" || name == "[deleted]" || seen[name] || diagnosed[name] {
				continue
			}
			seen[name] = true
			if m.used.Contains(name) {
				stats.AlreadyUsed++
				continue
			}
			wave = append(wave, name)
		}

		evals, err := m.evaluateWave(ctx, wave)
		if err != nil {
			return result, stats, err
		}
		for _, ev := range evals {
			if len(result.Controls) >= m.minControls {
				break
			}
			if c, ok := m.accept(ctx, u, ev, &stats); ok {
				result.Controls = append(result.Controls, c)
			}
		}
	}

	if len(result.Controls) >= m.minControls {
		stats.FullyMatched++
	}
	return result, stats, nil
}

// evaluateWave fetches and filters candidates concurrently, returning
// evaluations in the same order as names.
func (m *Matcher) evaluateWave(ctx context.Context, names []string) ([]evaluation, error) {
	evals := make([]evaluation, len(names))
	if len(names) == 1 {
		evals[0] = m.evaluate(ctx, names[0])
		return evals, ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, name := range names {
		g.Go(func() error {
			evals[i] = m.evaluate(gctx, name)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // evaluate is fail-soft and never returns an error
	return evals, ctx.Err()
}

func (m *Matcher) evaluate(ctx context.Context, username string) evaluation {
	posts, err := m.fetcher.Submissions(ctx, username)
	if err != nil {
		return evaluation{username: username, outcome: outcomeFetchFailed, err: err}
	}

	res := m.filter.Apply(posts)
	switch {
	case res.Excluded:
		return evaluation{username: username, outcome: outcomeExcluded, reason: res.Reason}
	case len(res.Posts) == 0:
		return evaluation{username: username, outcome: outcomeExcluded, reason: "no usable posts"}
	case len(res.Posts) < m.minPosts:
		return evaluation{username: username, outcome: outcomeTooFew, posts: res.Posts}
	}
	return evaluation{username: username, outcome: outcomeOK, posts: res.Posts}
}

func (m *Matcher) accept(ctx context.Context, u cohort.DiagnosedUser, ev evaluation, stats *Stats) (cohort.ControlCandidate, bool) {
	log := m.logger.With("diagnosed", u.Username, "candidate", ev.username)

	switch ev.outcome {
	case outcomeFetchFailed:
		stats.FetchFailures++
		if errors.Is(ev.err, cohort.ErrRateLimited) {
			stats.RateLimited++
		}
		log.InfoContext(ctx, "candidate fetch failed", "error", ev.err)
		return cohort.ControlCandidate{}, false
	case outcomeExcluded:
		stats.Excluded++
		log.DebugContext(ctx, "candidate excluded", "reason", ev.reason)
		return cohort.ControlCandidate{}, false
	case outcomeTooFew:
		stats.TooFewPosts++
		log.DebugContext(ctx, "candidate has too few posts", "posts", len(ev.posts), "min", m.minPosts)
		return cohort.ControlCandidate{}, false
	case outcomeOK:
	}

	n := len(ev.posts)
	if !cohort.InWindow(u.PostCount, n) {
		stats.OutsideWindow++
		lo, hi := u.Window()
		log.DebugContext(ctx, "candidate outside post window", "posts", n, "min", lo, "max", hi)
		return cohort.ControlCandidate{}, false
	}
	if !m.used.Claim(ev.username) {
		stats.AlreadyUsed++
		return cohort.ControlCandidate{}, false
	}

	stats.Accepted++
	log.DebugContext(ctx, "candidate accepted", "posts", n)
	return cohort.ControlCandidate{
		Username:  ev.username,
		PostCount: n,
		Posts:     ev.posts,
	}, true
}
