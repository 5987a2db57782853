package ratelimit

import (
	"sync"
	"time"
)

// Clock supplies the current time. Tests substitute a fixed or stepped clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Entry is the fixed-window counter for one client key.
// ResetAt always equals WindowStart + Window.
type Entry struct {
	Count       int           `json:"count"`
	WindowStart time.Time     `json:"window_start"`
	ResetAt     time.Time     `json:"reset_at"`
	Window      time.Duration `json:"window"`
}

// Outcome is the result of one admission decision.
type Outcome struct {
	Admitted bool
	Count    int
	Limit    int
	ResetAt  time.Time
}

// Remaining returns how many requests are left in the window, never negative.
func (o Outcome) Remaining() int {
	if !o.Admitted {
		return 0
	}
	if r := o.Limit - o.Count; r > 0 {
		return r
	}
	return 0
}

// RetryAfter returns the whole seconds until the window resets, rounded up
// and never negative.
func (o Outcome) RetryAfter(now time.Time) int {
	return ceilSeconds(o.ResetAt.Sub(now))
}

// Decide applies one hit to entry at now. A nil entry starts a new window.
// It has no side effects; the returned Entry replaces the stored one.
func Decide(entry *Entry, now time.Time, window time.Duration, max int) (Entry, Outcome) {
	var e Entry
	if entry == nil {
		e = Entry{WindowStart: now, ResetAt: now.Add(window), Window: window}
	} else {
		e = *entry
	}

	if now.After(e.ResetAt) {
		e.Count = 0
		e.WindowStart = now
		e.ResetAt = now.Add(window)
		e.Window = window
	}

	e.Count++

	return e, Outcome{
		Admitted: e.Count <= max,
		Count:    e.Count,
		Limit:    max,
		ResetAt:  e.ResetAt,
	}
}

// Store holds fixed-window entries keyed by client key. It is safe for
// concurrent use; each Hit is an atomic read-modify-write on its key. The
// clock only drives Sweep; callers pass the decision time to Hit.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	clock   Clock
}

// NewStore creates an empty store. A nil clock uses SystemClock.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = SystemClock
	}
	return &Store{
		entries: make(map[string]*Entry),
		clock:   clock,
	}
}

// Hit records one request for key at now and returns the decision.
func (s *Store) Hit(key string, now time.Time, window time.Duration, max int) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, out := Decide(s.entries[key], now, window, max)
	if cur, ok := s.entries[key]; ok {
		*cur = next
	} else {
		s.entries[key] = &next
	}
	return out
}

// Get returns a copy of the entry for key.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Sweep deletes entries whose window has fully elapsed and returns how many
// were removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.WindowStart) > e.Window {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reset drops every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
