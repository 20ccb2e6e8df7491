// Package filter applies exclusion criteria and text-validity cleaning to a user's submissions.
//
// Exclusion is all-or-nothing: a single submission in a banned subreddit, or a
// single body matching a banned pattern, rejects the user's entire history.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/textutil"
)

// DefaultMinWords is the word count the longest sentence of a post must exceed.
const DefaultMinWords = 10

var (
	deletionMarkers = []string{"[deleted]", "[removed]"}
	pollPattern     = regexp.MustCompile(`(?i)\[view poll\]\(https?://(?:www\.)?reddit\.com/poll/[^)]*\)`)
)

// Filter holds the exclusion lists. It is safe for concurrent use.
type Filter struct {
	subreddits map[string]bool
	patterns   []*regexp.Regexp
	minWords   int
}

// Option configures a Filter.
type Option func(*Filter)

// WithMinWords sets the sentence length a post must exceed to count as content.
func WithMinWords(n int) Option {
	return func(f *Filter) { f.minWords = n }
}

// New creates a Filter. Subreddit names are compared lowercased.
func New(subreddits map[string]bool, patterns []*regexp.Regexp, opts ...Option) *Filter {
	subs := make(map[string]bool, len(subreddits))
	for s, ok := range subreddits {
		if ok {
			subs[strings.ToLower(s)] = true
		}
	}
	f := &Filter{subreddits: subs, patterns: patterns, minWords: DefaultMinWords}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result is the outcome of filtering one user's submissions.
type Result struct {
	Reason   string        // why the user was excluded, empty otherwise
	Posts    []cohort.Post // cleaned posts; nil when excluded
	Excluded bool
}

// Apply vetoes or cleans a user's submissions. When not excluded, valid posts
// are kept in order with exact-duplicate bodies removed.
func (f *Filter) Apply(posts []cohort.Post) Result {
	if reason := f.Veto(posts); reason != "" {
		return Result{Excluded: true, Reason: reason}
	}

	var cleaned []cohort.Post
	seen := make(map[string]bool)
	for _, p := range posts {
		if seen[p.Selftext] || !ValidText(p.Selftext, f.minWords) {
			continue
		}
		seen[p.Selftext] = true
		cleaned = append(cleaned, p)
	}
	return Result{Posts: cleaned}
}

// Veto returns a non-empty reason if any submission is in a banned subreddit or
// matches a banned pattern. Every submission is checked, valid or not.
func (f *Filter) Veto(posts []cohort.Post) string {
	for _, p := range posts {
		if sub := strings.ToLower(p.Subreddit); sub != "" && f.subreddits[sub] {
			return fmt.Sprintf("subreddit %s", sub)
		}
		if p.Selftext == "" {
			continue
		}
		for _, re := range f.patterns {
			if re.MatchString(p.Selftext) {
				return fmt.Sprintf("pattern %q", re.String())
			}
		}
	}
	return ""
}

// ValidText reports whether a post body is usable content: not blank, not
// deleted or removed, not a poll stub, containing sentence-ending punctuation,
// and with at least one sentence longer than minWords words.
func ValidText(s string, minWords int) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, m := range deletionMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	if pollPattern.MatchString(s) {
		return false
	}
	if !textutil.HasTerminal(s) {
		return false
	}
	return textutil.LongestSentence(s) > minWords
}
