// Package snapshot persists and restores a node's durable state — active
// subscriptions, cached shards, replica estimates, and the trust graph — so a
// restart does not start from nothing. In-flight reconstruction and publish
// state (pkg/node's Inbox and PublishQueue) is deliberately excluded: it is
// cheaply rebuilt by re-transmission and ack timeouts, unlike the value
// represented by a warm cache or an established trust graph, so persisting it
// would add encode/decode surface for no real durability gain.
//
// © 2025 veil authors. MIT License.
package snapshot

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/veil-project/veil/internal/primitives"
	"github.com/veil-project/veil/pkg/cache"
	"github.com/veil-project/veil/pkg/node"
	"github.com/veil-project/veil/pkg/policy"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CanonicalEncOptions()
	m, err := encOpts.EncMode()
	if err != nil {
		panic("snapshot: invalid canonical encode options: " + err.Error())
	}
	encMode = m

	decOpts := cbor.DecOptions{
		IndefLength: cbor.IndefLengthForbidden,
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	}
	d, err := decOpts.DecMode()
	if err != nil {
		panic("snapshot: invalid decode options: " + err.Error())
	}
	decMode = d
}

// subscriptionRow is one persisted subscription: a tag and the symmetric key
// needed to open Objects carrying it.
type subscriptionRow struct {
	_   struct{} `cbor:",toarray"`
	Tag primitives.Hash
	Key [32]byte
}

// cacheRow is one persisted cache entry, mirroring cache.Entry with explicit
// field order for canonical encoding.
type cacheRow struct {
	_            struct{} `cbor:",toarray"`
	ShardID      primitives.Hash
	ObjectRoot   primitives.Hash
	Index        uint16
	Payload      []byte
	ExpiryUnix   int64
	LastSeenUnix int64
	ReplicaScore float64
	Tier         int
}

// replicaRow is one persisted replica estimate.
type replicaRow struct {
	_     struct{} `cbor:",toarray"`
	ID    primitives.Hash
	Value float64
}

// State is the canonical-CBOR encoded durable state of a node: its
// subscription set, cached shards, replica estimates, and trust graph.
type State struct {
	_             struct{} `cbor:",toarray"`
	Subscriptions []subscriptionRow
	CacheEntries  []cacheRow
	Replicas      []replicaRow
	TrustGraph    []byte // canonical JSON, per policy.Store.ExportJSON
}

// Capture builds a State from a node's current durable data. Callers MUST
// invoke Capture either from the same goroutine that drives n.Tick, or after
// that goroutine has fully stopped (e.g. once Run/RunUntil has returned) —
// replica estimates are core-thread-only everywhere else in pkg/node, and
// Capture reads them without its own synchronization beyond what the other
// accessors already provide.
func Capture(n *node.Node) (State, error) {
	var s State

	subs := n.Subscriptions()
	s.Subscriptions = make([]subscriptionRow, 0, len(subs))
	for tag, sub := range subs {
		s.Subscriptions = append(s.Subscriptions, subscriptionRow{Tag: tag, Key: sub.Key})
	}

	for _, e := range n.ShardCache().Snapshot() {
		s.CacheEntries = append(s.CacheEntries, cacheRow{
			ShardID:      e.ShardID,
			ObjectRoot:   e.ObjectRoot,
			Index:        e.Index,
			Payload:      e.Payload,
			ExpiryUnix:   e.Expiry.Unix(),
			LastSeenUnix: e.LastSeen.Unix(),
			ReplicaScore: e.ReplicaScore,
			Tier:         int(e.Tier),
		})
	}

	replicas := n.ReplicaEstimates()
	s.Replicas = make([]replicaRow, 0, len(replicas))
	for id, v := range replicas {
		s.Replicas = append(s.Replicas, replicaRow{ID: id, Value: v})
	}

	graph, err := n.TrustStore().ExportJSON()
	if err != nil {
		return State{}, err
	}
	s.TrustGraph = graph

	return s, nil
}

// Apply restores a State onto a freshly constructed node, before Run is
// called. Calling Apply on a node already being ticked races with the core
// goroutine; callers MUST apply state before starting the tick loop.
func Apply(n *node.Node, s State) error {
	for _, row := range s.Subscriptions {
		n.Subscribe(row.Tag, row.Key)
	}

	entries := make([]cache.Entry, 0, len(s.CacheEntries))
	for _, row := range s.CacheEntries {
		entries = append(entries, cache.Entry{
			ShardID:      row.ShardID,
			ObjectRoot:   row.ObjectRoot,
			Index:        row.Index,
			Payload:      row.Payload,
			Expiry:       time.Unix(row.ExpiryUnix, 0),
			LastSeen:     time.Unix(row.LastSeenUnix, 0),
			ReplicaScore: row.ReplicaScore,
			Tier:         policy.Tier(row.Tier),
		})
	}
	n.ShardCache().Restore(entries)

	replicas := make(map[primitives.Hash]float64, len(s.Replicas))
	for _, row := range s.Replicas {
		replicas[row.ID] = row.Value
	}
	n.RestoreReplicaEstimates(replicas)

	if len(s.TrustGraph) > 0 {
		if err := n.TrustStore().ImportJSON(s.TrustGraph); err != nil {
			return err
		}
	}
	return nil
}
