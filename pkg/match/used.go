package match

import "sync"

// Used is the set of usernames already accepted as controls in a run.
// It is safe for concurrent use.
type Used struct {
	names map[string]bool
	mu    sync.Mutex
}

// NewUsed returns a set seeded with names, e.g. controls from a previous run.
func NewUsed(names ...string) *Used {
	u := &Used{names: make(map[string]bool, len(names))}
	for _, n := range names {
		u.names[n] = true
	}
	return u
}

// Claim marks name as used. It returns false if name was already taken.
func (u *Used) Claim(name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.names[name] {
		return false
	}
	u.names[name] = true
	return true
}

// Contains reports whether name has been claimed.
func (u *Used) Contains(name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.names[name]
}

// Len returns the number of claimed names.
func (u *Used) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.names)
}
