// Package cohort defines the common types for building diagnosed/control cohorts.
package cohort

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by pipeline packages.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrInvalidUser = errors.New("invalid diagnosed user")
)

// Post is a Reddit submission or comment, normalized to the submission schema.
// Comments carry their body in Selftext and have no Title.
type Post struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Selftext   string `json:"selftext"`
	Author     string `json:"author"`
	CreatedUTC int64  `json:"created_utc"`
	Subreddit  string `json:"subreddit"`
	Score      int    `json:"score"`
}

// DiagnosedUser is an account inferred to self-report a diagnosis, along with
// the usernames that may be matched to it as controls.
type DiagnosedUser struct {
	Username                  string   `json:"username"`
	PostCount                 int      `json:"post_count"`
	NonMentalHealthSubreddits []string `json:"non_mental_health_subreddits,omitempty"`
	CandidateUsernames        []string `json:"candidate_usernames"`
}

// Validate reports whether the user can be matched.
func (u DiagnosedUser) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidUser)
	}
	if u.PostCount < 1 {
		return fmt.Errorf("%w: %s has post_count %d", ErrInvalidUser, u.Username, u.PostCount)
	}
	return nil
}

// Window returns the exclusive bounds a control's cleaned post count must fall between.
func (u DiagnosedUser) Window() (lo, hi int) {
	return Window(u.PostCount)
}

// ControlCandidate is an account accepted (or evaluated) as a control.
type ControlCandidate struct {
	Username  string `json:"username"`
	PostCount int    `json:"post_count"`
	Posts     []Post `json:"posts"`
}

// MatchResult holds the controls selected for one diagnosed user.
type MatchResult struct {
	DiagnosedUser      string             `json:"diagnosed_user"`
	DiagnosedPostCount int                `json:"diagnosed_post_count"`
	Controls           []ControlCandidate `json:"controls"`
}

// Window returns the exclusive post-count bounds derived from a diagnosed
// user's post count: (max(1, n/2), n*2).
func Window(postCount int) (lo, hi int) {
	return max(1, postCount/2), postCount * 2
}

// InWindow reports whether n lies strictly inside the window for postCount.
func InWindow(postCount, n int) bool {
	lo, hi := Window(postCount)
	return lo < n && n < hi
}
