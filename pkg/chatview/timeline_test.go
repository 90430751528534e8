package chatview

import (
	"testing"
	"time"

	"hitmeup/pkg/domain"
)

func msgAt(id string, at time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		ChatID:    "chat-1",
		Content:   "content-" + id,
		Type:      domain.MessageTypeText,
		CreatedAt: at,
	}
}

func ids(messages []domain.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func assertIDs(t *testing.T, got []domain.Message, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", ids(got), want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("ids = %v, want %v", ids(got), want)
		}
	}
}

func TestOptimisticAppendVisibleImmediately(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()
	tl.AppendOptimistic("tmp-1", msgAt("tmp-1", now))

	if tl.Len() != 1 {
		t.Fatalf("len = %d", tl.Len())
	}
	assertIDs(t, tl.Messages(), "tmp-1")
}

func TestConfirmOptimisticLeavesSingleCopy(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()
	tl.AppendOptimistic("tmp-1", msgAt("tmp-1", now))
	tl.ConfirmOptimistic("tmp-1", msgAt("real-1", now))

	assertIDs(t, tl.Messages(), "real-1")
}

func TestRemoveOptimisticRestoresPreSendState(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()
	tl.Receive(msgAt("m-1", now.Add(-time.Minute)), "")
	before := ids(tl.Messages())

	tl.AppendOptimistic("tmp-1", msgAt("tmp-1", now))
	tl.RemoveOptimistic("tmp-1")

	after := ids(tl.Messages())
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("after rollback = %v, want %v", after, before)
	}
}

func TestReceiveReconcilesOptimisticEntry(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()
	tl.AppendOptimistic("tmp-1", msgAt("tmp-1", now))

	// Broadcast echoing the optimistic id replaces the local entry.
	tl.Receive(msgAt("real-1", now), "tmp-1")
	assertIDs(t, tl.Messages(), "real-1")

	// Late confirmation must not create a second copy.
	tl.ConfirmOptimistic("tmp-1", msgAt("real-1", now))
	assertIDs(t, tl.Messages(), "real-1")
}

func TestReceiveDeduplicatesByID(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()
	tl.Receive(msgAt("m-1", now), "")
	tl.Receive(msgAt("m-1", now), "")
	assertIDs(t, tl.Messages(), "m-1")
}

func TestOrderingByCreatedAtWithInsertionOrderTies(t *testing.T) {
	tl := NewTimeline()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tl.Receive(msgAt("b", base.Add(time.Second)), "")
	tl.Receive(msgAt("a", base), "")
	// Same timestamp as "b": insertion order is preserved.
	tl.Receive(msgAt("c", base.Add(time.Second)), "")

	assertIDs(t, tl.Messages(), "a", "b", "c")
}

func TestPrependOlderPage(t *testing.T) {
	tl := NewTimeline()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tl.Receive(msgAt("m-10", base.Add(10*time.Second)), "")
	tl.Receive(msgAt("m-11", base.Add(11*time.Second)), "")

	older := []domain.Message{
		msgAt("m-07", base.Add(7*time.Second)),
		msgAt("m-08", base.Add(8*time.Second)),
		msgAt("m-10", base.Add(10*time.Second)), // overlap, dropped
	}
	tl.Prepend(older)

	assertIDs(t, tl.Messages(), "m-07", "m-08", "m-10", "m-11")
}

func TestOldestCreatedAtSkipsOptimistic(t *testing.T) {
	tl := NewTimeline()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tl.AppendOptimistic("tmp-1", msgAt("tmp-1", base.Add(-time.Hour)))
	tl.Receive(msgAt("m-1", base), "")

	oldest, ok := tl.OldestCreatedAt()
	if !ok || oldest.ID != "m-1" {
		t.Fatalf("oldest = %+v ok=%v", oldest, ok)
	}
}
