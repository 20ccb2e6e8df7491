package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/batch"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	"github.com/google/go-cmp/cmp"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "mixed markup",
			in:   "Check THIS out: https://x.com/a?b=1 <b>bold</b> @someone #Hashtag café!!!",
			want: "check this out bold hashtag cafe!",
		},
		{name: "empty", in: "", want: "."},
		{name: "adds terminal", in: "just words", want: "just words."},
		{name: "keeps question", in: "really?", want: "really?"},
		{name: "ellipsis", in: "wait...what", want: "wait. what."},
		{name: "space after punctuation", in: "a,b;c", want: "a, b; c."},
		{name: "decimal kept", in: "It costs 3.50, ok", want: "it costs 3.50, ok."},
		{name: "entities", in: "fish &amp; chips &lt;3", want: "fish chips 3."},
		{name: "apostrophe and hyphen", in: "Don't over-think it!", want: "don't over-think it!"},
		{name: "newlines", in: "line one.\n\nline two", want: "line one. line two."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	results := []cohort.MatchResult{
		{
			DiagnosedUser: "d1",
			Controls: []cohort.ControlCandidate{
				{Username: "c1", Posts: []cohort.Post{
					{ID: "p1", Subreddit: "DIY", Selftext: "Built a shed, finally"},
					{ID: "p2", Subreddit: "pics", Selftext: "Look at \"this\""},
				}},
			},
		},
		{DiagnosedUser: "d2", Controls: []cohort.ControlCandidate{}},
	}

	var buf bytes.Buffer
	n, err := WriteCSV(&buf, results)
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if n != 2 {
		t.Errorf("WriteCSV() rows = %d, want 2", n)
	}

	got, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	want := [][]string{
		{"TID", "text"},
		{"DIY_d1_c1_p1", "built a shed, finally."},
		{"pics_d1_c1_p2", "look at this."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}
}

func TestReadBatches(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a_batch_1.json")
	second := filepath.Join(dir, "a_batch_2.json")
	if err := batch.WriteJSON(first, []cohort.MatchResult{{DiagnosedUser: "d1", Controls: []cohort.ControlCandidate{}}}); err != nil {
		t.Fatal(err)
	}
	if err := batch.WriteJSON(second, []cohort.MatchResult{{DiagnosedUser: "d2", Controls: []cohort.ControlCandidate{}}}); err != nil {
		t.Fatal(err)
	}

	got, err := ReadBatches([]string{first, second})
	if err != nil {
		t.Fatalf("ReadBatches() error = %v", err)
	}
	if len(got) != 2 || got[0].DiagnosedUser != "d1" || got[1].DiagnosedUser != "d2" {
		t.Errorf("ReadBatches() = %+v", got)
	}

	if _, err := ReadBatches([]string{filepath.Join(dir, "missing.json")}); err == nil {
		t.Error("ReadBatches() error = nil for missing file")
	}
}
