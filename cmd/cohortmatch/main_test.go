package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/batch"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/store"
	"github.com/google/go-cmp/cmp"
)

// archiveServer serves n distinct valid posts for any author, and the given
// authors for any subreddit listing.
func archiveServer(t *testing.T, n int, authors []string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var data []map[string]any
		switch {
		case q.Get("subreddit") != "":
			for i, a := range authors {
				data = append(data, map[string]any{"id": fmt.Sprint(i), "author": a, "subreddit": q.Get("subreddit")})
			}
		case r.URL.Path == "/api/posts/search":
			for i := range n {
				data = append(data, map[string]any{
					"id":        fmt.Sprintf("%s%d", q.Get("author"), i),
					"author":    q.Get("author"),
					"subreddit": "gardening",
					"selftext":  fmt.Sprintf("Day %d of planting tomatoes along the back fence with my neighbors.", i),
				})
			}
		}
		if err := json.NewEncoder(w).Encode(map[string]any{"data": data}); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writeSettings(t *testing.T, dir, baseURL string) string {
	t.Helper()
	subs := filepath.Join(dir, "subs.txt")
	pats := filepath.Join(dir, "patterns.txt")
	settings := filepath.Join(dir, "settings.yaml")
	files := map[string]string{
		subs: "depression\nanxiety\n",
		pats: "# diagnosis phrases\ndiagnosed with\n",
		settings: fmt.Sprintf("api_base_url: %s\nrequests_per_second: 0\ncontrol_batch_size: 1\n"+
			"mh_subreddits_file: %s\nmh_patterns_file: %s\n", baseURL, subs, pats),
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return settings
}

func writeUsers(t *testing.T, path string, users []cohort.DiagnosedUser) {
	t.Helper()
	if err := batch.WriteJSON(path, users); err != nil {
		t.Fatal(err)
	}
}

func TestRunUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"bogus"}, {"match", "only-one-arg"}, {"export", "out.csv"}} {
		if err := run(context.Background(), args); !errors.Is(err, errUsage) {
			t.Errorf("run(%q) error = %v, want usage error", args, err)
		}
	}
}

func TestRunCandidates(t *testing.T) {
	dir := t.TempDir()
	server := archiveServer(t, 0, []string{"zoe", "AutoModerator", "d1", "adam"})
	settings := writeSettings(t, dir, server.URL)

	in := filepath.Join(dir, "diagnosed.json")
	out := filepath.Join(dir, "out", "expanded.json")
	writeUsers(t, in, []cohort.DiagnosedUser{
		{Username: "d1", PostCount: 40, NonMentalHealthSubreddits: []string{"gardening"}},
	})

	if err := run(context.Background(), []string{"candidates", "-no-cache", "-config", settings, in, out}); err != nil {
		t.Fatalf("run(candidates) error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var got []cohort.DiagnosedUser
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d users, want 1", len(got))
	}
	if diff := cmp.Diff([]string{"adam", "zoe"}, got[0].CandidateUsernames); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMatchAndExport(t *testing.T) {
	dir := t.TempDir()
	server := archiveServer(t, 60, nil)
	settings := writeSettings(t, dir, server.URL)

	in := filepath.Join(dir, "candidates.json")
	outDir := filepath.Join(dir, "batches")
	db := filepath.Join(dir, "matches.db")
	writeUsers(t, in, []cohort.DiagnosedUser{
		{Username: "d1", PostCount: 100, CandidateUsernames: []string{"c1", "c2", "c3"}},
		{Username: "d2", PostCount: 100, CandidateUsernames: []string{"c2", "c4"}},
	})

	args := []string{"match", "-no-cache", "-config", settings, "-min-controls", "2", "-workers", "2", "-db", db, in, outDir}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run(match) error = %v", err)
	}

	first, err := batch.ReadResults(filepath.Join(outDir, "control_batch_1.json"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := batch.ReadResults(filepath.Join(outDir, "control_batch_2.json"))
	if err != nil {
		t.Fatal(err)
	}
	names := func(r cohort.MatchResult) []string {
		var out []string
		for _, c := range r.Controls {
			out = append(out, c.Username)
		}
		return out
	}
	if diff := cmp.Diff([]string{"c1", "c2"}, names(first[0])); diff != "" {
		t.Errorf("d1 controls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c4"}, names(second[0])); diff != "" {
		t.Errorf("d2 controls mismatch (-want +got):\n%s", diff)
	}

	st, err := store.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	used, err := st.UsedControls(context.Background())
	_ = st.Close(context.Background()) //nolint:errcheck // test cleanup
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c1", "c2", "c4"}, used); diff != "" {
		t.Errorf("stored controls mismatch (-want +got):\n%s", diff)
	}

	csvPath := filepath.Join(dir, "controls.csv")
	exportArgs := []string{"export", csvPath, filepath.Join(outDir, "control_batch_1.json"), filepath.Join(outDir, "control_batch_2.json")}
	if err := run(context.Background(), exportArgs); err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close() //nolint:errcheck // read-only
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1+3*60 {
		t.Errorf("CSV rows = %d, want %d", len(rows), 1+3*60)
	}
	if rows[1][0] != "gardening_d1_c1_c10" {
		t.Errorf("first TID = %q, want gardening_d1_c1_c10", rows[1][0])
	}
}
