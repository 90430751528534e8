package chatview

import (
	"sort"
	"sync"
	"time"
)

// typingExpiry clears a typing user after this long without a fresh signal,
// even when no explicit stop event arrives.
const typingExpiry = 3 * time.Second

type typingEntry struct {
	name     string
	deadline time.Time
}

// TypingTracker maintains the "currently typing" set from relayed typing
// events. Entries expire lazily on read; no background timer runs.
type TypingTracker struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]typingEntry
}

// NewTypingTracker builds a tracker using the wall clock.
func NewTypingTracker() *TypingTracker {
	return NewTypingTrackerWithClock(time.Now)
}

// NewTypingTrackerWithClock builds a tracker with an injectable clock.
func NewTypingTrackerWithClock(now func() time.Time) *TypingTracker {
	return &TypingTracker{
		now:     now,
		entries: make(map[string]typingEntry),
	}
}

// Apply records a typing event. isTyping true refreshes the expiry deadline;
// false removes the user immediately.
func (t *TypingTracker) Apply(userID, name string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !isTyping {
		delete(t.entries, userID)
		return
	}
	t.entries[userID] = typingEntry{
		name:     name,
		deadline: t.now().Add(typingExpiry),
	}
}

// Active returns the display names of users typing right now, sorted.
// Expired entries are pruned as a side effect.
func (t *TypingTracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	names := make([]string, 0, len(t.entries))
	for userID, e := range t.entries {
		if now.After(e.deadline) {
			delete(t.entries, userID)
			continue
		}
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}
