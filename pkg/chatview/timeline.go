// Package chatview holds the client-side view state for one chat: the
// message timeline with optimistic entries, the typing indicator set, and
// the backwards pager. It is transport-agnostic; chatclient feeds it from
// HTTP responses and websocket events.
package chatview

import (
	"sort"
	"sync"

	"hitmeup/pkg/domain"
)

type timelineEntry struct {
	msg          domain.Message
	optimistic   bool
	optimisticID string
}

// Timeline is the ordered message window for one chat. Messages are sorted
// by created-at; entries with equal timestamps keep insertion order. An
// optimistic entry is a locally rendered message awaiting server
// confirmation.
type Timeline struct {
	mu      sync.Mutex
	entries []timelineEntry
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Messages returns a snapshot of the current ordered view, optimistic
// entries included.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.msg
	}
	return out
}

// Len reports the number of entries in the window.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// OldestCreatedAt returns the created-at of the oldest loaded message, used
// as the pagination cursor. ok is false for an empty window.
func (t *Timeline) OldestCreatedAt() (oldest domain.Message, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if !e.optimistic {
			return e.msg, true
		}
	}
	return domain.Message{}, false
}

// AppendOptimistic inserts a locally rendered message keyed by its temporary
// id. The entry stays until confirmed, removed, or matched by a broadcast.
func (t *Timeline) AppendOptimistic(tempID string, msg domain.Message) {
	t.mu.Lock()
	t.entries = append(t.entries, timelineEntry{msg: msg, optimistic: true, optimisticID: tempID})
	t.sortLocked()
	t.mu.Unlock()
}

// ConfirmOptimistic replaces the optimistic entry with the persisted message
// returned by the server. If the optimistic entry is already gone (a
// broadcast arrived first), the message is merged through Receive semantics
// instead, so exactly one copy remains.
func (t *Timeline) ConfirmOptimistic(tempID string, msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].optimistic && t.entries[i].optimisticID == tempID {
			t.entries[i] = timelineEntry{msg: msg}
			t.sortLocked()
			return
		}
	}
	t.mergeLocked(msg)
}

// RemoveOptimistic rolls back a failed send, restoring the pre-send view.
func (t *Timeline) RemoveOptimistic(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].optimistic && t.entries[i].optimisticID == tempID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Receive merges a broadcast message into the window. A matching optimistic
// entry (by optimistic id) is replaced; otherwise the message is appended,
// de-duplicated by real id.
func (t *Timeline) Receive(msg domain.Message, optimisticID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if optimisticID != "" {
		for i := range t.entries {
			if t.entries[i].optimistic && t.entries[i].optimisticID == optimisticID {
				t.entries[i] = timelineEntry{msg: msg}
				t.sortLocked()
				return
			}
		}
	}
	t.mergeLocked(msg)
}

// Prepend adds an older page (ascending order) in front of the window,
// de-duplicating by id.
func (t *Timeline) Prepend(older []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	merged := make([]timelineEntry, 0, len(older)+len(t.entries))
	seen := make(map[string]struct{}, len(t.entries))
	for _, e := range t.entries {
		if !e.optimistic {
			seen[e.msg.ID] = struct{}{}
		}
	}
	for _, msg := range older {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		merged = append(merged, timelineEntry{msg: msg})
	}
	t.entries = append(merged, t.entries...)
	t.sortLocked()
}

func (t *Timeline) mergeLocked(msg domain.Message) {
	for i := range t.entries {
		if !t.entries[i].optimistic && t.entries[i].msg.ID == msg.ID {
			return
		}
	}
	t.entries = append(t.entries, timelineEntry{msg: msg})
	t.sortLocked()
}

func (t *Timeline) sortLocked() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].msg.CreatedAt.Before(t.entries[j].msg.CreatedAt)
	})
}
