package rules

import (
	"fmt"
	"sync"
)

// Snapshot is a consistent view of the active rule set.
type Snapshot struct {
	Set      *Set
	Compiled *Compiled
	Hash     string
}

// Active holds the in-effect rule set. Readers take snapshots; Replace swaps
// the whole set so no reader sees a partial update.
type Active struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewActive compiles s and wraps it.
func NewActive(s *Set) (*Active, error) {
	snap, err := snapshotOf(s)
	if err != nil {
		return nil, err
	}
	return &Active{snap: snap}, nil
}

// LoadActive reads and compiles the rule file at path.
func LoadActive(path string) (*Active, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewActive(s)
}

func snapshotOf(s *Set) (Snapshot, error) {
	c, err := Compile(s)
	if err != nil {
		return Snapshot{}, fmt.Errorf("compile rules: %w", err)
	}
	return Snapshot{Set: s, Compiled: c, Hash: s.Hash()}, nil
}

// Snapshot returns the current view. Callers must treat it as read-only.
func (a *Active) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Update runs fn as the exclusive section over the active set. fn receives
// the current snapshot and returns the replacement, or nil to keep it.
func (a *Active) Update(fn func(cur Snapshot) (*Snapshot, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next, err := fn(a.snap)
	if err != nil {
		return err
	}
	if next != nil {
		a.snap = *next
	}
	return nil
}
