package textutil

import "testing"

func TestStripTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"simple tag", "<p>Hello</p>", "Hello"},
		{"entities", "Tom &amp; Jerry", "Tom & Jerry"},
		{"nested with spaces", "<div>  a <b>b</b>\n c </div>", "a b c"},
		{"not a tag", "I <3 this &lt;b&gt;", "I <3 this <b>"},
		{"comment", "before<!-- hidden -->after", "before after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTags(tt.in); got != tt.want {
				t.Errorf("StripTags(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"café", "cafe"},
		{"naïve résumé", "naive resume"},
		{"plain", "plain"},
		{"日本", "日本"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Fold(tt.in); got != tt.want {
				t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLongestSentence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"one sentence", "one two three.", 3},
		{"picks longest", "Hi. This one has five words! Ok?", 5},
		{"no terminator", "four words right here", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LongestSentence(tt.in); got != tt.want {
				t.Errorf("LongestSentence(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestHasTerminal(t *testing.T) {
	if HasTerminal("no punctuation here") {
		t.Error("HasTerminal() = true for text without terminator")
	}
	if !HasTerminal("really?") {
		t.Error("HasTerminal() = false for question")
	}
}
