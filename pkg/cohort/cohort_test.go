package cohort

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestWindow(t *testing.T) {
	tests := []struct {
		name      string
		postCount int
		wantLo    int
		wantHi    int
	}{
		{"even", 100, 50, 200},
		{"odd rounds down", 101, 50, 202},
		{"one", 1, 1, 2},
		{"small floors at one", 2, 1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := Window(tt.postCount)
			if lo != tt.wantLo || hi != tt.wantHi {
				t.Errorf("Window(%d) = (%d, %d), want (%d, %d)", tt.postCount, lo, hi, tt.wantLo, tt.wantHi)
			}
		})
	}
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		name      string
		postCount int
		n         int
		want      bool
	}{
		{"inside", 100, 120, true},
		{"lower bound excluded", 100, 50, false},
		{"upper bound excluded", 100, 200, false},
		{"just above lower", 100, 51, true},
		{"just below upper", 100, 199, true},
		{"far below", 100, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InWindow(tt.postCount, tt.n); got != tt.want {
				t.Errorf("InWindow(%d, %d) = %v, want %v", tt.postCount, tt.n, got, tt.want)
			}
		})
	}
}

func TestDiagnosedUserValidate(t *testing.T) {
	tests := []struct {
		name    string
		user    DiagnosedUser
		wantErr bool
	}{
		{"valid", DiagnosedUser{Username: "alice", PostCount: 80}, false},
		{"empty username", DiagnosedUser{Username: "  ", PostCount: 80}, true},
		{"zero posts", DiagnosedUser{Username: "alice"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidUser) {
				t.Errorf("Validate() error = %v, want ErrInvalidUser", err)
			}
		})
	}
}

func TestDiagnosedUserJSON(t *testing.T) {
	input := `{"username":"alice","post_count":120,"non_mental_health_subreddits":["golang"],"candidate_usernames":["bob","carol"]}`

	var u DiagnosedUser
	if err := json.Unmarshal([]byte(input), &u); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if u.Username != "alice" || u.PostCount != 120 {
		t.Errorf("got username=%q post_count=%d", u.Username, u.PostCount)
	}
	if len(u.CandidateUsernames) != 2 || u.CandidateUsernames[1] != "carol" {
		t.Errorf("CandidateUsernames = %v", u.CandidateUsernames)
	}
	if len(u.NonMentalHealthSubreddits) != 1 {
		t.Errorf("NonMentalHealthSubreddits = %v", u.NonMentalHealthSubreddits)
	}
}
