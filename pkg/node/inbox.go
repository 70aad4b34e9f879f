package node

import (
	"sync"
	"time"

	"github.com/veil-project/veil/internal/primitives"
)

// inboxEntry accumulates shards for one in-flight object_root until enough
// arrive to FEC-decode, per §4.7.
type inboxEntry struct {
	k, n      int
	hardened  bool
	shards    map[uint16][]byte
	firstSeen time.Time
	poisoned  bool
}

// Inbox is the reconstruction inbox: object_root -> accumulated shards.
// Entries expire after ttl without reaching k shards (§5 "Reconstruction
// inbox entries expire after inbox_ttl"); a poisoned entry (object_root hash
// mismatch) keeps accepting alternative shards until it too expires, since a
// different k-subset might still recover a valid Object.
type Inbox struct {
	mu      sync.Mutex
	entries map[primitives.Hash]*inboxEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewInbox builds an empty reconstruction inbox.
func NewInbox(ttl time.Duration) *Inbox {
	return &Inbox{
		entries: map[primitives.Hash]*inboxEntry{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// AddShard records one shard toward object_root's reconstruction and reports
// whether the entry now has at least k distinct shards.
func (ib *Inbox) AddShard(root primitives.Hash, k, n int, hardened bool, index uint16, payload []byte) bool {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	e, ok := ib.entries[root]
	if !ok {
		e = &inboxEntry{
			k: k, n: n, hardened: hardened,
			shards:    map[uint16][]byte{},
			firstSeen: ib.now(),
		}
		ib.entries[root] = e
	}
	if _, exists := e.shards[index]; !exists {
		e.shards[index] = payload
	}
	return len(e.shards) >= e.k
}

// Shards returns a defensive copy of the shards accumulated for root, plus
// whether hardened (non-systematic) mode applies.
func (ib *Inbox) Shards(root primitives.Hash) (map[uint16][]byte, bool, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	e, ok := ib.entries[root]
	if !ok {
		return nil, false, false
	}
	out := make(map[uint16][]byte, len(e.shards))
	for idx, b := range e.shards {
		out[idx] = b
	}
	return out, e.hardened, true
}

// MarkPoisoned flags root's entry as failing integrity verification, without
// removing it — a different k-subset arriving later might still recover a
// valid Object.
func (ib *Inbox) MarkPoisoned(root primitives.Hash) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if e, ok := ib.entries[root]; ok {
		e.poisoned = true
	}
}

// Remove drops root's inbox entry, typically called after successful
// reconstruction and delivery.
func (ib *Inbox) Remove(root primitives.Hash) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	delete(ib.entries, root)
}

// ExpireStale drops every entry older than ttl and returns the object_roots
// removed, for logging/metrics by the caller.
func (ib *Inbox) ExpireStale(now time.Time) []primitives.Hash {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	var expired []primitives.Hash
	for root, e := range ib.entries {
		if now.Sub(e.firstSeen) > ib.ttl {
			expired = append(expired, root)
			delete(ib.entries, root)
		}
	}
	return expired
}

// Len reports the number of in-flight reconstructions.
func (ib *Inbox) Len() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return len(ib.entries)
}
