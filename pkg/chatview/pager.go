package chatview

import (
	"sync"
	"time"

	"hitmeup/pkg/domain"
)

// DefaultPageSize is the number of messages requested per backwards page.
const DefaultPageSize = 20

// FetchPage loads up to limit messages strictly older than before, in
// ascending order.
type FetchPage func(before time.Time, limit int) ([]domain.Message, error)

// Pager loads older history pages into a Timeline. A call while a fetch is
// already in flight is ignored, and once a short page arrives no further
// requests are made.
type Pager struct {
	mu       sync.Mutex
	fetch    FetchPage
	limit    int
	inFlight bool
	done     bool
}

// NewPager builds a pager over the given fetch function.
func NewPager(fetch FetchPage, limit int) *Pager {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return &Pager{fetch: fetch, limit: limit}
}

// HasMore reports whether older pages may still exist.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.done
}

// LoadOlder fetches the page older than the timeline's oldest message and
// prepends it. Returns the number of messages added; zero with a nil error
// means the call was skipped (fetch in flight or history exhausted).
func (p *Pager) LoadOlder(timeline *Timeline) (int, error) {
	p.mu.Lock()
	if p.inFlight || p.done {
		p.mu.Unlock()
		return 0, nil
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	oldest, ok := timeline.OldestCreatedAt()
	if !ok {
		// Empty window: nothing loaded yet, nothing to page behind.
		return 0, nil
	}
	page, err := p.fetch(oldest.CreatedAt, p.limit)
	if err != nil {
		return 0, err
	}
	timeline.Prepend(page)
	if len(page) < p.limit {
		p.mu.Lock()
		p.done = true
		p.mu.Unlock()
	}
	return len(page), nil
}
