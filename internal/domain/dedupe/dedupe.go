// Package dedupe remembers applied submission ids so a replayed
// submission is acknowledged without being written twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 100_000

// Deduper records seen submission ids together with a fingerprint of the
// payload they carried. An id only counts as seen when the fingerprint
// matches too, so a reused id with a different payload is treated as new.
type Deduper interface {
	// Seen reports whether id has been recorded with fingerprint, without
	// recording it.
	Seen(ctx context.Context, id, fingerprint string) bool

	// SeenAndRecord atomically checks if id was seen with fingerprint and
	// records it if not. Returns true if it was already seen, false if it was
	// newly recorded. Recording an id under a new fingerprint replaces the old
	// one.
	SeenAndRecord(ctx context.Context, id, fingerprint string) bool

	Size() int64
}

type record struct {
	id          string
	fingerprint string
}

// inMemoryDeduper keeps ids in recording order. When full, the oldest id
// is evicted first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element // values hold a record
	order   *list.List               // front = newest
	maxSize int                      // <= 0 means unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) Seen(_ context.Context, id, fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.seen[id]
	return ok && el.Value.(record).fingerprint == fingerprint
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id, fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		if el.Value.(record).fingerprint == fingerprint {
			return true
		}
		el.Value = record{id: id, fingerprint: fingerprint}
		d.order.MoveToFront(el)
		return false
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[id] = d.order.PushFront(record{id: id, fingerprint: fingerprint})
	d.size.Store(int64(len(d.seen)))
	return false
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	el := d.order.Back()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.seen, el.Value.(record).id)
}

// Size returns the current number of remembered ids.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
