package patterns

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	input := "  Depression \n\n# comment\nAnxiety\r\nbipolar  \n"
	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []string{"depression", "anxiety", "bipolar"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.txt")
	if err := os.WriteFile(path, []byte("depression\nADHD\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	set, err := LoadSet(path)
	if err != nil {
		t.Fatalf("LoadSet() error = %v", err)
	}
	if !set["depression"] || !set["adhd"] {
		t.Errorf("LoadSet() = %v, missing entries", set)
	}
	if set["golang"] {
		t.Error("LoadSet() contains unexpected entry")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}

func TestCompile(t *testing.T) {
	res := Compile([]string{`diagnosed with (adhd|add)`, `i have [`, "therapist"})
	if len(res) != 3 {
		t.Fatalf("Compile() returned %d expressions, want 3", len(res))
	}

	tests := []struct {
		name string
		idx  int
		text string
		want bool
	}{
		{"regex alternation", 0, "I was Diagnosed with ADHD last year", true},
		{"regex no match", 0, "diagnosed with flu", false},
		{"invalid falls back to literal", 1, "well i have [ bracket", true},
		{"literal no match", 1, "i have a dog", false},
		{"case insensitive", 2, "My THERAPIST said", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := res[tt.idx].MatchString(tt.text); got != tt.want {
				t.Errorf("MatchString(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
