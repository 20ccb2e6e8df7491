// Package patterns loads exclusion lists (banned subreddits, mental-health keyword patterns) from text files.
package patterns

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Load reads newline-separated entries from path. Entries are trimmed and
// lowercased; blank lines and lines starting with '#' are skipped. File order is kept.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

// Parse reads entries from r using the same rules as Load.
func Parse(r io.Reader) ([]string, error) {
	var entries []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries, sc.Err()
}

// LoadSet reads entries from path into a membership set.
func LoadSet(path string) (map[string]bool, error) {
	entries, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Set(entries), nil
}

// Set builds a membership set from entries, lowercasing each.
func Set(entries []string) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[strings.ToLower(e)] = true
	}
	return set
}

// Compile turns entries into case-insensitive regular expressions.
// An entry that is not a valid expression is matched literally.
func Compile(entries []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(entries))
	for _, e := range entries {
		re, err := regexp.Compile("(?i)" + e)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(e))
		}
		res = append(res, re)
	}
	return res
}
