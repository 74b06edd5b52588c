// Package state provides a thread-safe variable store for player- and
// machine-scoped values. A Store hands out copies through Snapshot so callers
// can evaluate conditions against a frozen view, and reports every mutation
// to an optional change hook so the owning engine can turn variable changes
// into events.
package state

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// ErrNotNumeric is returned by Add when the stored value cannot be incremented.
var ErrNotNumeric = errors.New("state: value is not numeric")

// Change describes one mutation of a Store.
type Change struct {
	Key   string
	Value any // nil when the key was deleted
	Prev  any // nil when the key did not exist
	// Change is the numeric difference for numeric values and true otherwise.
	Change any
}

// Store is a thread-safe key-value store. The zero value is ready to use.
type Store struct {
	mu       sync.RWMutex
	once     sync.Once
	data     map[string]any
	onChange func(Change)
}

// New creates a Store seeded with a copy of initial.
func New(initial map[string]any) *Store {
	s := &Store{}
	s.init()
	maps.Copy(s.data, initial)

	return s
}

// init ensures internal structures are allocated.
func (s *Store) init() {
	s.once.Do(func() {
		s.data = make(map[string]any)
	})
}

// OnChange registers fn to be called after every Set, Add and Delete. The hook
// runs outside the store lock, so it may read the store again.
func (s *Store) OnChange(fn func(Change)) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onChange = fn
}

// Get returns the value for key and whether it was found.
func (s *Store) Get(key string) (any, bool) {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false
	}

	return copyValue(v), true
}

// Set stores a value under key.
func (s *Store) Set(key string, value any) {
	s.init()
	s.mu.Lock()
	prev, existed := s.data[key]
	s.data[key] = value
	hook := s.onChange
	s.mu.Unlock()

	if hook == nil {
		return
	}
	if !existed {
		prev = nil
	}
	hook(Change{Key: key, Value: value, Prev: prev, Change: diff(prev, value)})
}

// Add increments the numeric value under key by delta and returns the new
// value. A missing key counts as zero.
func (s *Store) Add(key string, delta int) (any, error) {
	s.init()
	s.mu.Lock()
	prev, existed := s.data[key]

	var next any
	switch v := prev.(type) {
	case nil:
		next = delta
	case int:
		next = v + delta
	case int64:
		next = v + int64(delta)
	case float64:
		next = v + float64(delta)
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q holds %T", ErrNotNumeric, key, prev)
	}

	s.data[key] = next
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		if !existed {
			prev = nil
		}
		hook(Change{Key: key, Value: next, Prev: prev, Change: delta})
	}

	return next, nil
}

// Delete removes a key. The change hook only runs when the key existed.
func (s *Store) Delete(key string) {
	s.init()
	s.mu.Lock()
	prev, existed := s.data[key]
	delete(s.data, key)
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil && existed {
		hook(Change{Key: key, Prev: prev, Change: true})
	}
}

// Snapshot returns a copy of the entire store.
func (s *Store) Snapshot() map[string]any {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make(map[string]any, len(s.data))
	for k, v := range s.data {
		cp[k] = copyValue(v)
	}

	return cp
}

// copyValue returns a deep copy of byte slices and string lists, otherwise v
// unchanged. Maps and pointers stay shared.
func copyValue(v any) any {
	switch raw := v.(type) {
	case []byte:
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return cp
	case []string:
		cp := make([]string, len(raw))
		copy(cp, raw)
		return cp
	default:
		return v
	}
}

// diff reports the numeric difference between prev and next, or true when
// either side is not a number.
func diff(prev, next any) any {
	p, okPrev := toFloat(prev)
	n, okNext := toFloat(next)
	if prev == nil {
		p, okPrev = 0, true
	}
	if !okPrev || !okNext {
		return true
	}

	return n - p
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
