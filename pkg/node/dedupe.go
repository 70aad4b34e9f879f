package node

import (
	"container/list"
	"sync"

	"github.com/veil-project/veil/internal/primitives"
)

// dedupe is a bounded set<ShardId> with LRU pressure (§4.6): once a
// shard_id has been observed, every subsequent copy is dropped for as long
// as it survives eviction. A plain container/list + map is all this needs;
// no third-party LRU library pulls its weight over ~30 lines of stdlib
// (see the standard-library justifications in the design notes). SeenBefore
// is called only from the core tick goroutine; the mutex exists solely so
// Len can be read from the operator debug endpoint on another goroutine.
type dedupe struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[primitives.Hash]*list.Element
}

func newDedupe(capacity int) *dedupe {
	return &dedupe{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[primitives.Hash]*list.Element, capacity),
	}
}

// SeenBefore reports whether id was already recorded, and records it if not.
// A true result means the caller MUST drop the shard silently.
func (d *dedupe) SeenBefore(id primitives.Hash) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if elem, ok := d.index[id]; ok {
		d.ll.MoveToFront(elem)
		return true
	}
	elem := d.ll.PushFront(id)
	d.index[id] = elem
	if d.ll.Len() > d.capacity {
		oldest := d.ll.Back()
		if oldest != nil {
			d.ll.Remove(oldest)
			delete(d.index, oldest.Value.(primitives.Hash))
		}
	}
	return false
}

// Len reports the number of tracked shard IDs.
func (d *dedupe) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ll.Len()
}
