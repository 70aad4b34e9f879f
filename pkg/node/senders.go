package node

import (
	"container/list"
	"sync"

	"github.com/veil-project/veil/internal/primitives"
	"github.com/veil-project/veil/pkg/policy"
)

// senderTracker is a bounded map<object_root, pubkey> recording the sender
// of the most recently reconstructed Object for each root, the "object_root
// -> last_seen_sender inference from fully reconstructed Objects" that §4.6
// step 5 requires for tier-aware forwarding over an otherwise publisher-
// opaque shard stream. Populated only from the core tick goroutine inside
// doReconstruct; the mutex exists solely so Len can be read elsewhere.
type senderTracker struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[primitives.Hash]*list.Element
}

type senderEntry struct {
	root primitives.Hash
	pub  policy.PubKey
}

func newSenderTracker(capacity int) *senderTracker {
	if capacity <= 0 {
		capacity = 1 << 14
	}
	return &senderTracker{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[primitives.Hash]*list.Element, capacity),
	}
}

// Record associates root with pub as its most recently observed sender,
// refreshing recency if root was already tracked.
func (t *senderTracker) Record(root primitives.Hash, pub policy.PubKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.index[root]; ok {
		elem.Value.(*senderEntry).pub = pub
		t.ll.MoveToFront(elem)
		return
	}
	elem := t.ll.PushFront(&senderEntry{root: root, pub: pub})
	t.index[root] = elem
	if t.ll.Len() > t.capacity {
		oldest := t.ll.Back()
		if oldest != nil {
			t.ll.Remove(oldest)
			delete(t.index, oldest.Value.(*senderEntry).root)
		}
	}
}

// Lookup returns the last known sender for root, if any.
func (t *senderTracker) Lookup(root primitives.Hash) (policy.PubKey, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elem, ok := t.index[root]
	if !ok {
		return policy.PubKey{}, false
	}
	return elem.Value.(*senderEntry).pub, true
}

// Len reports the number of tracked object roots.
func (t *senderTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ll.Len()
}
