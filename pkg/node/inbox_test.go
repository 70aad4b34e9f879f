package node

import (
	"testing"
	"time"
)

func TestInboxAddShardReportsReadyAtK(t *testing.T) {
	ib := NewInbox(time.Minute)
	root := hash(1)

	if ib.AddShard(root, 2, 3, true, 0, []byte("a")) {
		t.Fatalf("one of two required shards should not be ready")
	}
	if !ib.AddShard(root, 2, 3, true, 1, []byte("b")) {
		t.Fatalf("two of two required shards should report ready")
	}

	shards, hardened, ok := ib.Shards(root)
	if !ok || !hardened || len(shards) != 2 {
		t.Fatalf("Shards = %v, %v, %v", shards, hardened, ok)
	}
}

func TestInboxDuplicateIndexDoesNotOverwrite(t *testing.T) {
	ib := NewInbox(time.Minute)
	root := hash(1)
	ib.AddShard(root, 2, 3, false, 0, []byte("first"))
	ib.AddShard(root, 2, 3, false, 0, []byte("second"))

	shards, _, ok := ib.Shards(root)
	if !ok || len(shards) != 1 {
		t.Fatalf("duplicate index must not grow the shard set: %v", shards)
	}
	if string(shards[0]) != "first" {
		t.Fatalf("first-arrived payload for a given index must win, got %q", shards[0])
	}
}

func TestInboxExpireStaleRemovesOldEntries(t *testing.T) {
	ib := NewInbox(time.Minute)
	root := hash(1)
	ib.AddShard(root, 2, 3, false, 0, []byte("a"))

	expired := ib.ExpireStale(time.Now().Add(2 * time.Minute))
	if len(expired) != 1 || expired[0] != root {
		t.Fatalf("expected root to expire, got %v", expired)
	}
	if ib.Len() != 0 {
		t.Fatalf("expired entry should have been removed, Len = %d", ib.Len())
	}
}

func TestInboxMarkPoisonedKeepsAcceptingShards(t *testing.T) {
	ib := NewInbox(time.Minute)
	root := hash(1)
	ib.AddShard(root, 2, 3, false, 0, []byte("a"))
	ib.MarkPoisoned(root)

	if ready := ib.AddShard(root, 2, 3, false, 1, []byte("b")); !ready {
		t.Fatalf("poisoned entry must keep accepting shards toward a fresh k-subset")
	}
	if ib.Len() != 1 {
		t.Fatalf("poisoned entry must not be removed, Len = %d", ib.Len())
	}
}
