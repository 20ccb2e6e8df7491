// Package export flattens match results into a TID,text CSV of cleaned control posts.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/batch"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/textutil"
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	mentionPattern  = regexp.MustCompile(`@[\p{L}\p{N}_]+`)
	hashtagPattern  = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	disallowedChars = regexp.MustCompile(`[^a-z0-9\s.'!?,;-]`)
)

// Header is the first CSV row.
var Header = []string{"TID", "text"}

// TID identifies one control post as subreddit_diagnosed_control_postid.
func TID(subreddit, diagnosed, control, postID string) string {
	return subreddit + "_" + diagnosed + "_" + control + "_" + postID
}

// WriteCSV writes one row per control post across all results.
func WriteCSV(w io.Writer, results []cohort.MatchResult) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, err
	}

	rows := 0
	for _, r := range results {
		for _, c := range r.Controls {
			for _, p := range c.Posts {
				if err := cw.Write([]string{TID(p.Subreddit, r.DiagnosedUser, c.Username, p.ID), Clean(p.Selftext)}); err != nil {
					return rows, err
				}
				rows++
			}
		}
	}
	cw.Flush()
	return rows, cw.Error()
}

// ReadBatches loads and concatenates the results in each batch file, in order.
func ReadBatches(paths []string) ([]cohort.MatchResult, error) {
	var all []cohort.MatchResult
	for _, p := range paths {
		results, err := batch.ReadResults(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		all = append(all, results...)
	}
	return all, nil
}

// Clean normalizes a post body for model input: lowercase ASCII words and a
// small set of punctuation, single-spaced, ending in '.', '!' or '?'.
func Clean(text string) string {
	s := strings.ToLower(text)
	s = urlPattern.ReplaceAllString(s, "")
	s = textutil.StripTags(s)
	s = mentionPattern.ReplaceAllString(s, "")
	s = hashtagPattern.ReplaceAllString(s, "$1")
	s = textutil.Fold(s)
	s = disallowedChars.ReplaceAllString(s, " ")
	s = dedupePunct(s)
	s = spaceAfterPunct(s)
	s = textutil.CollapseSpace(s)
	if s == "" || !strings.ContainsRune(".!?", rune(s[len(s)-1])) {
		s += "."
	}
	return s
}

func isPunct(b byte) bool {
	switch b {
	case '.', '!', '?', ',', ';':
		return true
	}
	return false
}

// dedupePunct collapses runs of the same punctuation mark, so "wow!!!" and
// "wait..." become "wow!" and "wait.".
func dedupePunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if i > 0 && isPunct(s[i]) && s[i] == s[i-1] {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// spaceAfterPunct inserts a space after punctuation directly followed by
// another character. Digits around a '.' or ',' are left alone.
func spaceAfterPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for i := 0; i < len(s); i++ {
		b.WriteByte(s[i])
		if !isPunct(s[i]) || i+1 >= len(s) || isSpace(s[i+1]) {
			continue
		}
		if (s[i] == '.' || s[i] == ',') && i > 0 && isDigit(s[i-1]) && isDigit(s[i+1]) {
			continue
		}
		b.WriteByte(' ')
	}
	return b.String()
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}
