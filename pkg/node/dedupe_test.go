package node

import (
	"testing"

	"github.com/veil-project/veil/internal/primitives"
)

func hash(b byte) primitives.Hash {
	var h primitives.Hash
	h[0] = b
	return h
}

func TestDedupeSeenBeforeMarksFirstThenSubsequent(t *testing.T) {
	d := newDedupe(8)
	id := hash(1)
	if d.SeenBefore(id) {
		t.Fatalf("first sighting must not be reported as seen")
	}
	if !d.SeenBefore(id) {
		t.Fatalf("second sighting of the same id must be reported as seen")
	}
}

func TestDedupeEvictsOldestOverCapacity(t *testing.T) {
	d := newDedupe(2)
	d.SeenBefore(hash(1))
	d.SeenBefore(hash(2))
	d.SeenBefore(hash(3)) // evicts hash(1)

	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	if d.SeenBefore(hash(1)) {
		t.Fatalf("hash(1) should have been evicted and treated as unseen")
	}
	if !d.SeenBefore(hash(3)) {
		t.Fatalf("hash(3) should still be tracked")
	}
}

func TestDedupeMoveToFrontProtectsRecentlySeen(t *testing.T) {
	d := newDedupe(2)
	d.SeenBefore(hash(1))
	d.SeenBefore(hash(2))
	d.SeenBefore(hash(1)) // refreshes hash(1) to the front; hash(2) is now oldest
	d.SeenBefore(hash(3)) // capacity exceeded: evicts hash(2), not the refreshed hash(1)

	if !d.SeenBefore(hash(1)) {
		t.Fatalf("hash(1) should still be tracked after being refreshed to the front")
	}
	if d.SeenBefore(hash(2)) {
		t.Fatalf("hash(2) should have been evicted as the least recently used entry")
	}
}
