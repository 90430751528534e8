package chatview

import (
	"errors"
	"sync"
	"testing"
	"time"

	"hitmeup/pkg/domain"
)

// pageFetcher serves a fixed ascending history in pages, tracking concurrent
// fetches so tests can assert the in-flight guard.
type pageFetcher struct {
	mu       sync.Mutex
	history  []domain.Message // ascending
	calls    int
	active   int
	maxSeen  int
	blockCh  chan struct{} // when set, fetches block until closed
	failWith error
}

func (f *pageFetcher) fetch(before time.Time, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	block := f.blockCh
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.failWith != nil {
		return nil, f.failWith
	}
	out := []domain.Message{}
	for i := len(f.history) - 1; i >= 0 && len(out) < limit; i-- {
		if f.history[i].CreatedAt.Before(before) {
			out = append([]domain.Message{f.history[i]}, out...)
		}
	}
	return out, nil
}

func history(n int, base time.Time) []domain.Message {
	out := make([]domain.Message, n)
	for i := 0; i < n; i++ {
		out[i] = msgAt(idFor(i), base.Add(time.Duration(i)*time.Second))
	}
	return out
}

func idFor(i int) string {
	return string(rune('a'+i/26)) + string(rune('a'+i%26))
}

func TestPagerLoadsOlderPages(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	all := history(45, base)
	fetcher := &pageFetcher{history: all}

	tl := NewTimeline()
	// Window starts with the newest 5.
	for _, m := range all[40:] {
		tl.Receive(m, "")
	}
	pager := NewPager(fetcher.fetch, 20)

	added, err := pager.LoadOlder(tl)
	if err != nil || added != 20 {
		t.Fatalf("first page: added=%d err=%v", added, err)
	}
	if tl.Len() != 25 {
		t.Fatalf("window = %d", tl.Len())
	}
	if !pager.HasMore() {
		t.Fatal("full page should keep hasMore true")
	}

	added, err = pager.LoadOlder(tl)
	if err != nil || added != 20 {
		t.Fatalf("second page: added=%d err=%v", added, err)
	}

	// 45 total: 5 initial + 20 + 20; the last full page drained history but
	// hasMore stays true until a short page arrives.
	added, err = pager.LoadOlder(tl)
	if err != nil || added != 0 {
		t.Fatalf("final page: added=%d err=%v", added, err)
	}
	if pager.HasMore() {
		t.Fatal("short page should flip hasMore to false")
	}

	messages := tl.Messages()
	if len(messages) != 45 {
		t.Fatalf("window = %d, want 45", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatal("window out of order after paging")
		}
	}

	// Exhausted pager ignores further calls without fetching.
	calls := fetcher.calls
	if _, err := pager.LoadOlder(tl); err != nil {
		t.Fatalf("exhausted load: %v", err)
	}
	if fetcher.calls != calls {
		t.Fatal("exhausted pager should not fetch")
	}
}

func TestPagerIgnoresConcurrentLoads(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	all := history(40, base)
	block := make(chan struct{})
	fetcher := &pageFetcher{history: all, blockCh: block}

	tl := NewTimeline()
	for _, m := range all[30:] {
		tl.Receive(m, "")
	}
	pager := NewPager(fetcher.fetch, 20)

	var wg sync.WaitGroup
	results := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			added, err := pager.LoadOlder(tl)
			if err != nil {
				t.Errorf("load %d: %v", i, err)
			}
			results[i] = added
		}(i)
	}
	// Give both goroutines time to hit the guard, then release the fetch.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	if fetcher.maxSeen != 1 {
		t.Fatalf("concurrent fetches = %d, want 1", fetcher.maxSeen)
	}
	if results[0]+results[1] != 20 {
		t.Fatalf("results = %v, exactly one load should add a page", results)
	}
}

func TestPagerPropagatesFetchError(t *testing.T) {
	fetchErr := errors.New("network down")
	fetcher := &pageFetcher{failWith: fetchErr}

	tl := NewTimeline()
	tl.Receive(msgAt("m-1", time.Now()), "")
	pager := NewPager(fetcher.fetch, 20)

	if _, err := pager.LoadOlder(tl); !errors.Is(err, fetchErr) {
		t.Fatalf("err = %v", err)
	}
	// A failed fetch does not exhaust the pager.
	if !pager.HasMore() {
		t.Fatal("failed fetch should not flip hasMore")
	}
}

func TestPagerEmptyWindowIsNoop(t *testing.T) {
	fetcher := &pageFetcher{}
	pager := NewPager(fetcher.fetch, 20)

	added, err := pager.LoadOlder(NewTimeline())
	if err != nil || added != 0 {
		t.Fatalf("added=%d err=%v", added, err)
	}
	if fetcher.calls != 0 {
		t.Fatal("empty window should not fetch")
	}
}
