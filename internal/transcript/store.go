// Package transcript holds conversation threads and their ordered items
// in memory. It is the single source of truth for history replay.
package transcript

import (
	"cmp"
	"errors"
	"fmt"
	"sync"

	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/internal/pagination"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/metrics"
)

// ErrNotFound is returned by GetItem when the item does not exist in the
// named thread.
var ErrNotFound = errors.New("item not found")

// Store owns threads and items. All methods are safe for concurrent use
// and never block on I/O.
//
// Locking is per thread: the store lock only guards the thread map, and
// each thread entry serializes mutations of its own item list.
type Store struct {
	clock clock.Clock

	mu      sync.RWMutex
	threads map[string]*threadEntry
}

type threadEntry struct {
	mu     sync.Mutex
	thread model.Thread
	items  []model.Item   // insertion order
	index  map[string]int // item id -> position in items
	seq    uint64         // last assigned sequence
}

// NewStore creates an empty store reading time from c.
func NewStore(c clock.Clock) *Store {
	return &Store{
		clock:   c,
		threads: make(map[string]*threadEntry),
	}
}

func (s *Store) lookup(id string) (*threadEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.threads[id]
	return e, ok
}

// vivify returns the entry for id, creating the thread if it is unknown.
func (s *Store) vivify(id string) *threadEntry {
	if e, ok := s.lookup(id); ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.threads[id]; ok {
		return e
	}
	e := &threadEntry{
		thread: model.Thread{ID: id, CreatedAt: s.clock.Now()},
		index:  make(map[string]int),
	}
	s.threads[id] = e
	return e
}

// GetThread returns the thread with id, creating it when it has never been
// seen. Client-held thread handles survive a restart this way.
func (s *Store) GetThread(id string) model.Thread {
	e := s.vivify(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thread.Clone()
}

// PutThread upserts thread by id. Metadata is replaced; the stored
// CreatedAt of an existing thread is kept. Items are untouched.
func (s *Store) PutThread(thread model.Thread) {
	e := s.vivify(thread.ID)
	e.mu.Lock()
	defer e.mu.Unlock()

	createdAt := e.thread.CreatedAt
	e.thread = thread.Clone()
	e.thread.CreatedAt = createdAt
}

// ListThreads pages through threads ordered by creation time, ties broken
// by id.
func (s *Store) ListThreads(limit int, after string, order model.Order) model.Page[model.Thread] {
	s.mu.RLock()
	entries := make([]*threadEntry, 0, len(s.threads))
	for _, e := range s.threads {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	threads := make([]model.Thread, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		threads = append(threads, e.thread.Clone())
		e.mu.Unlock()
	}

	return pagination.Paginate(threads, after, limit, order, compareThreads, func(t model.Thread) string { return t.ID })
}

func compareThreads(a, b model.Thread) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// ListItems pages through a thread's items ordered by (CreatedAt,
// Sequence). Unknown threads yield an empty page and are not created.
func (s *Store) ListItems(threadID string, limit int, after string, order model.Order) model.Page[model.Item] {
	var items []model.Item
	if e, ok := s.lookup(threadID); ok {
		e.mu.Lock()
		items = make([]model.Item, len(e.items))
		for i, it := range e.items {
			items[i] = it.Clone()
		}
		e.mu.Unlock()
	}

	return pagination.Paginate(items, after, limit, order, compareItems, func(it model.Item) string { return it.ID })
}

func compareItems(a, b model.Item) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Sequence, b.Sequence)
}

// AppendItem assigns the thread's next sequence number to item and appends
// it. The thread is created if unknown. Appending an id that already
// exists is a caller bug and panics; use UpsertItem to update.
func (s *Store) AppendItem(threadID string, item model.Item) model.Item {
	e := s.vivify(threadID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.index[item.ID]; exists {
		panic(fmt.Sprintf("transcript: duplicate item id %q in thread %q", item.ID, threadID))
	}
	return e.appendLocked(threadID, item)
}

// UpsertItem replaces an existing item with the same id in place, keeping
// its sequence and original CreatedAt so its position does not change.
// Unknown ids are appended.
func (s *Store) UpsertItem(threadID string, item model.Item) model.Item {
	e := s.vivify(threadID)
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, exists := e.index[item.ID]
	if !exists {
		return e.appendLocked(threadID, item)
	}

	prev := e.items[pos]
	item = item.Clone()
	item.ThreadID = threadID
	item.Sequence = prev.Sequence
	item.CreatedAt = prev.CreatedAt
	e.items[pos] = item
	return item.Clone()
}

func (e *threadEntry) appendLocked(threadID string, item model.Item) model.Item {
	e.seq++
	item = item.Clone()
	item.ThreadID = threadID
	item.Sequence = e.seq

	e.index[item.ID] = len(e.items)
	e.items = append(e.items, item)
	metrics.TranscriptItemsAppended.Inc()
	return item.Clone()
}

// GetItem returns one item or an error wrapping ErrNotFound.
func (s *Store) GetItem(threadID, itemID string) (model.Item, error) {
	if e, ok := s.lookup(threadID); ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if pos, ok := e.index[itemID]; ok {
			return e.items[pos].Clone(), nil
		}
	}
	return model.Item{}, fmt.Errorf("item %s in thread %s: %w", itemID, threadID, ErrNotFound)
}

// DeleteThread removes a thread and all of its items. Deleting an unknown
// thread is a no-op.
func (s *Store) DeleteThread(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, id)
}

// DeleteItem removes one item. Deleting an unknown item is a no-op.
// Sequence numbers are not reused.
func (s *Store) DeleteItem(threadID, itemID string) {
	e, ok := s.lookup(threadID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.index[itemID]
	if !ok {
		return
	}
	e.items = append(e.items[:pos], e.items[pos+1:]...)
	delete(e.index, itemID)
	for i := pos; i < len(e.items); i++ {
		e.index[e.items[i].ID] = i
	}
}
