// Package node implements the single-owner core runtime of §4.6-§4.11:
// subscription-gated caching, dedupe, rarity-biased forwarding, multi-lane
// publish fanout with ACK/retry, and the tick-driven scheduler that ties
// every other layer together. Exactly one goroutine calls into a Node's
// core methods; transport adapters run on independent goroutines and hand
// bytes across bounded channels, per §5's concurrency model.
//
// © 2025 veil authors. MIT License.
package node

import (
	"context"
	"crypto/ed25519"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/veil-project/veil/internal/config"
	"github.com/veil-project/veil/internal/fec"
	"github.com/veil-project/veil/internal/primitives"
	"github.com/veil-project/veil/internal/tagderive"
	"github.com/veil-project/veil/pkg/cache"
	"github.com/veil-project/veil/pkg/codec"
	"github.com/veil-project/veil/pkg/policy"
	"github.com/veil-project/veil/pkg/transport"
	"github.com/veil-project/veil/pkg/veilcrypto"
)

// DeliverFunc receives cleartext application payloads reconstructed from a
// fully decoded, verified, decrypted Object.
type DeliverFunc func(tag primitives.Hash, namespace uint16, payload []byte)

// Subscription is a tag the node actively listens for, with the symmetric
// key needed to open Objects carrying it.
type Subscription struct {
	Key [32]byte
}

// VerifyFunc checks a signature over msg given a raw sender public key.
// Node defaults to Ed25519; callers wanting secp256k1 Schnorr support pass
// their own dispatch (e.g. keyed by namespace) via WithVerifier.
type VerifyFunc func(pub, msg, sig []byte) error

func defaultVerify(pub, msg, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return veilcrypto.ErrBadSignature
	}
	return veilcrypto.VerifyEd25519(ed25519.PublicKey(pub), msg, sig)
}

// Node is the core runtime: one instance owns the subscription set, dedupe
// window, replica estimates, reconstruction inbox, publish queue, shard
// cache, and trust store, plus whatever transport lanes it was built with.
type Node struct {
	cfg *config.Config

	mu            sync.Mutex // guards subscriptions; everything else below is core-thread-only
	subscriptions map[primitives.Hash]Subscription

	dedupe  *dedupe
	replica *replicaEstimator
	inbox   *Inbox
	queue   *PublishQueue
	cache   *cache.ShardCache
	trust   *policy.Store
	senders *senderTracker

	lanes  []*Lane
	verify VerifyFunc

	identity ed25519.PrivateKey // nil if unsigned publishing only

	onDeliver DeliverFunc

	inboundCh chan rawInbound
	recon     singleflight.Group

	logger *zap.Logger

	// inboundDropped is written from both the core tick goroutine and the
	// per-lane receiver goroutines spawned by Run; inboundReceived is written
	// only by Tick. DebugSnapshot reads both from any goroutine, so they need
	// atomic access unlike the core-thread-only fields above.
	inboundReceived  atomic.Uint64
	inboundDropped   atomic.Uint64
	consecutiveErrors int
}

type rawInbound struct {
	peer  transport.Peer
	bytes []byte
}

// Option configures a Node at construction.
type Option func(*Node)

// WithIdentity configures the signing key used for outbound signed Objects
// and ACKs.
func WithIdentity(priv ed25519.PrivateKey) Option {
	return func(n *Node) { n.identity = priv }
}

// WithVerifier overrides the default Ed25519-only signature verification.
func WithVerifier(v VerifyFunc) Option {
	return func(n *Node) {
		if v != nil {
			n.verify = v
		}
	}
}

// WithDeliverFunc registers the application callback invoked on every
// successfully reconstructed, verified, decrypted Object.
func WithDeliverFunc(f DeliverFunc) Option {
	return func(n *Node) { n.onDeliver = f }
}

// WithLogger plugs an external zap.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// New builds a Node over the given lanes and shard cache.
func New(cfg *config.Config, shardCache *cache.ShardCache, trust *policy.Store, lanes []*Lane, opts ...Option) *Node {
	n := &Node{
		cfg:           cfg,
		subscriptions: map[primitives.Hash]Subscription{},
		dedupe:        newDedupe(cfg.DedupeCapacity),
		replica:       newReplicaEstimator(0.3, 0.9),
		inbox:         NewInbox(cfg.InboxTTL),
		queue:         NewPublishQueue(),
		cache:         shardCache,
		trust:         trust,
		senders:       newSenderTracker(cfg.DedupeCapacity),
		lanes:         lanes,
		verify:        defaultVerify,
		logger:        zap.NewNop(),
		inboundCh:     make(chan rawInbound, cfg.MaxInboundPerTick*4),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe registers tag with its symmetric key so inbound Objects carrying
// it are cached and decrypted.
func (n *Node) Subscribe(tag primitives.Hash, key [32]byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscriptions[tag] = Subscription{Key: key}
}

// Unsubscribe removes tag.
func (n *Node) Unsubscribe(tag primitives.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscriptions, tag)
}

func (n *Node) subscription(tag primitives.Hash) (Subscription, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.subscriptions[tag]
	return s, ok
}

// Run launches one receiver goroutine per lane, feeding inboundCh, until ctx
// is canceled or a lane's adapter reports a terminal error.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range n.lanes {
		l := l
		g.Go(func() error {
			for {
				msg, err := l.Adapter.Recv(gctx)
				if err != nil {
					return nil // context canceled: normal shutdown for this lane
				}
				select {
				case n.inboundCh <- rawInbound{peer: msg.Peer, bytes: msg.Bytes}:
				default:
					n.inboundDropped.Add(1)
				}
			}
		})
	}
	return g.Wait()
}

// ExitReason explains why RunUntil stopped, per §4.11.
type ExitReason int

const (
	BudgetCompleted ExitReason = iota
	Canceled
	ErrorThresholdExceeded
)

func (r ExitReason) String() string {
	switch r {
	case BudgetCompleted:
		return "budget_completed"
	case Canceled:
		return "canceled"
	case ErrorThresholdExceeded:
		return "error_threshold_exceeded"
	default:
		return "unknown"
	}
}

// Tick performs one unit of scheduled work (§4.11): drain a bounded
// number of inbound shards, advance publish deadlines, run one cache
// maintenance pass, and decay replica estimates.
func (n *Node) Tick(now time.Time) error {
	for i := 0; i < n.cfg.MaxInboundPerTick; i++ {
		select {
		case raw := <-n.inboundCh:
			n.inboundReceived.Add(1)
			n.handleInboundShard(now, raw.bytes)
		default:
			i = n.cfg.MaxInboundPerTick
		}
	}

	for _, root := range n.queue.AdvanceDeadlines(now) {
		n.refanout(root)
	}
	for _, root := range n.queue.TerminalRoots() {
		n.queue.Remove(root)
	}

	n.cache.PurgeExpired(now)
	n.replica.DecayTick()
	for _, root := range n.inbox.ExpireStale(now) {
		_ = root // left for the inspect CLI / metrics to surface; no action needed beyond drop
	}
	return nil
}

// RunSteps runs exactly n ticks, sleeping the configured tick interval
// between each, stopping early on ctx cancellation.
func (n *Node) RunSteps(ctx context.Context, steps int) ExitReason {
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return Canceled
		default:
		}
		if err := n.Tick(time.Now()); err != nil {
			n.consecutiveErrors++
			if n.consecutiveErrors >= n.cfg.MaxConsecutiveErrors {
				return ErrorThresholdExceeded
			}
		} else {
			n.consecutiveErrors = 0
		}
		if i < steps-1 {
			select {
			case <-ctx.Done():
				return Canceled
			case <-time.After(n.cfg.TickInterval):
			}
		}
	}
	return BudgetCompleted
}

// RunUntil ticks on the configured interval with exponential error backoff
// until ctx is canceled or max_consecutive_errors is exceeded.
func (n *Node) RunUntil(ctx context.Context) ExitReason {
	backoff := n.cfg.BackoffInitial
	for {
		select {
		case <-ctx.Done():
			return Canceled
		default:
		}
		if err := n.Tick(time.Now()); err != nil {
			n.consecutiveErrors++
			if n.consecutiveErrors >= n.cfg.MaxConsecutiveErrors {
				return ErrorThresholdExceeded
			}
			select {
			case <-ctx.Done():
				return Canceled
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > n.cfg.BackoffCap {
				backoff = n.cfg.BackoffCap
			}
			continue
		}
		n.consecutiveErrors = 0
		backoff = n.cfg.BackoffInitial
		select {
		case <-ctx.Done():
			return Canceled
		case <-time.After(n.cfg.TickInterval):
		}
	}
}

func (n *Node) handleInboundShard(now time.Time, raw []byte) {
	headerOverhead := n.cfg.HeaderOverhead()
	bucket := headerOverhead + n.cfg.MaxObjectSize // generous upper bound for decode sizing
	shard, err := codec.DecodeShardV1(raw, bucket)
	if err != nil {
		n.inboundDropped.Add(1)
		return
	}

	shardID, err := shard.ShardID()
	if err != nil {
		n.inboundDropped.Add(1)
		return
	}
	if n.dedupe.SeenBefore(shardID) {
		return
	}

	replicaScore := n.replica.Observe(shardID)
	sub, subscribed := n.subscription(shard.Tag)
	tier, _ := n.tierFor(shard.ObjectRoot, now)

	if subscribed {
		n.cache.Put(cache.Entry{
			ShardID: shardID, ObjectRoot: shard.ObjectRoot, Index: shard.Index,
			Payload: raw, Expiry: now.Add(n.cfg.CacheTTL), LastSeen: now,
			ReplicaScore: replicaScore, Tier: tier,
		})
	} else if n.cache.UsedBytes() < n.cfg.CacheCapacityBytes {
		n.cache.Put(cache.Entry{
			ShardID: shardID, ObjectRoot: shard.ObjectRoot, Index: shard.Index,
			Payload: raw, Expiry: now.Add(n.cfg.CacheTTL / 10), LastSeen: now,
			ReplicaScore: replicaScore, Tier: tier,
		})
	}

	// §4.6 step 3: shards whose tag is unsubscribed are cached above (if
	// room allows) but never forwarded.
	if subscribed {
		n.maybeForward(now, shard.ObjectRoot, raw, replicaScore)
	}

	ready := n.inbox.AddShard(shard.ObjectRoot, int(shard.K), int(shard.N()), shard.Hardened(), shard.Index, shard.Payload)
	if ready && subscribed {
		n.reconstruct(shard.ObjectRoot, sub)
	}
}

// tierFor returns the WoT tier and forwarding/cache quota that apply to
// objectRoot's originating publisher. The publisher is only knowable once
// this node has reconstructed and verified a signed Object for the root
// (senders.Record in doReconstruct); until then the root falls back to the
// Unknown tier's quota floor, per §4.6 step 5's "unknown publishers receive
// the Unknown tier's quota floor".
func (n *Node) tierFor(objectRoot primitives.Hash, now time.Time) (policy.Tier, float64) {
	pub, known := n.senders.Lookup(objectRoot)
	if !known {
		return policy.Unknown, n.cfg.UnknownFloor
	}
	tier := n.trust.Classify(pub, now)
	quota, err := policy.Quota(tier, n.cfg.TrustedQuota, n.cfg.KnownQuota, n.cfg.UnknownQuota)
	if err != nil {
		quota = n.cfg.UnknownFloor
	}
	return tier, quota
}

// maybeForward applies §4.6 step 5's forwarding probability, intersected
// with the tier budget of objectRoot's originating publisher, and emits the
// shard on one lane's peer subset when selected. Callers must already have
// confirmed the shard's tag is subscribed.
func (n *Node) maybeForward(now time.Time, objectRoot primitives.Hash, raw []byte, replicaScore float64) {
	if len(n.lanes) == 0 {
		return
	}
	p := n.cfg.MinForwardProb
	if est := replicaScore * n.cfg.ReplicaDivisor; est > 0 {
		if alt := 1 / est; alt > p {
			p = alt
		}
	}
	if p > 1 {
		p = 1
	}

	if _, quota := n.tierFor(objectRoot, now); n.cfg.TrustedQuota > 0 {
		if factor := quota / n.cfg.TrustedQuota; factor < 1 {
			p *= factor
		}
	}

	if rand.Float64() > p {
		return
	}

	ranked := rankLanes(n.lanes)
	lane := ranked[0].lane
	for i, peer := range lane.Peers {
		if i >= n.cfg.FastLanePeers {
			break
		}
		lane.Adapter.Send(context.Background(), peer, raw)
	}
}

func (n *Node) reconstruct(root primitives.Hash, sub Subscription) {
	_, _, _ = n.recon.Do(root.String(), func() (interface{}, error) {
		n.doReconstruct(root, sub)
		return nil, nil
	})
}

func (n *Node) doReconstruct(root primitives.Hash, sub Subscription) {
	shards, hardened, ok := n.inbox.Shards(root)
	if !ok || len(shards) == 0 {
		return
	}

	var k, nWire int
	bucket := 0
	for idx, payload := range shards {
		_ = idx
		if bucket == 0 {
			bucket = n.cfg.HeaderOverhead() + len(payload)
		}
	}
	// k and n travel with every shard of an object identically; recover them
	// from any one shard still referenced by the inbox via a fresh lookup.
	k, nWire = n.inboxKN(root)
	if k == 0 {
		return
	}

	profile := fec.Profile{K: k, N: nWire, Bucket: bucket}
	intShards := make(map[int][]byte, len(shards))
	for idx, payload := range shards {
		intShards[int(idx)] = payload
	}

	data, err := fec.Decode(profile, hardened, root, intShards, n.cfg.HeaderOverhead())
	if err != nil {
		return // not enough distinct shards yet; wait for more or TTL expiry
	}

	obj, err := codec.DecodeObjectV1(data, n.cfg.MaxObjectSize)
	if err != nil {
		n.inbox.MarkPoisoned(root)
		return
	}
	gotRoot := codec.ComputeObjectRoot(obj.Version, obj.Namespace, obj.Epoch, obj.Tag, obj.Ciphertext)
	if gotRoot != root {
		n.inbox.MarkPoisoned(root)
		return
	}

	if obj.Signed() {
		msg := veilcrypto.SigningMessage(obj.HeaderBytes(), obj.Ciphertext)
		if err := n.verify(obj.SenderPubKey, msg, obj.Signature); err != nil {
			n.inbox.MarkPoisoned(root)
			n.cache.PurgeObjectRoot(root)
			return
		}
		var pub policy.PubKey
		copy(pub[:], obj.SenderPubKey)
		n.senders.Record(root, pub)
	} else if n.cfg.RequiresSignature(obj.Namespace) {
		// §6: this namespace requires a signed Object; an unsigned one is
		// rejected outright and its cache entries dropped rather than left
		// to expire on TTL.
		n.inbox.MarkPoisoned(root)
		n.cache.PurgeObjectRoot(root)
		return
	}

	ad := veilcrypto.AdditionalData(obj.Tag, obj.Namespace, obj.Epoch)
	pt, err := veilcrypto.Open(sub.Key[:], obj.Nonce, obj.Ciphertext, ad)
	if err != nil {
		return
	}

	n.inbox.Remove(root)
	if n.handleIfAck(pt) {
		return
	}
	if n.onDeliver != nil {
		n.onDeliver(obj.Tag, obj.Namespace, pt)
	}

	if obj.AckRequested() {
		n.sendAck(obj.Tag, obj.Namespace, root, sub.Key)
	}
}

// handleIfAck recognizes an ACK Object by its payload shape (§6: the
// ACK payload is exactly the acknowledged object_root) and, when it matches
// a publish entry this node is still tracking, feeds the state machine
// instead of handing the bytes to the application callback.
func (n *Node) handleIfAck(pt []byte) bool {
	if len(pt) != primitives.HashSize {
		return false
	}
	var root primitives.Hash
	copy(root[:], pt)
	entry, ok := n.queue.Get(root)
	if !ok {
		return false
	}
	_ = entry.AckReceived()
	return true
}

// inboxKN recovers (k, n) for an in-flight reconstruction by replaying the
// shard bytes the inbox already holds is not possible once decoded into
// payload-only form, so the publish/ingest path stashes (k, n) in the inbox
// entry itself; this accessor exposes it for reconstruction.
func (n *Node) inboxKN(root primitives.Hash) (int, int) {
	n.inbox.mu.Lock()
	defer n.inbox.mu.Unlock()
	e, ok := n.inbox.entries[root]
	if !ok {
		return 0, 0
	}
	return e.k, e.n
}

func (n *Node) sendAck(tag primitives.Hash, namespace uint16, root primitives.Hash, key [32]byte) {
	if len(n.lanes) == 0 {
		return
	}
	epoch := tagderive.Epoch(time.Now(), n.cfg.EpochSeconds)
	ackObj, err := n.sealObject(namespace, epoch, tag, codec.AckPayload(root), key, true, false)
	if err != nil {
		return
	}
	n.publishObject(ackObj, fec.MicroSmall)
}

// Subscriptions returns a defensive copy of the active subscription set, for
// persistence by pkg/snapshot.
func (n *Node) Subscriptions() map[primitives.Hash]Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[primitives.Hash]Subscription, len(n.subscriptions))
	for tag, sub := range n.subscriptions {
		out[tag] = sub
	}
	return out
}

// ReplicaEstimates returns a defensive copy of the current EWMA replica
// estimates, for persistence by pkg/snapshot.
func (n *Node) ReplicaEstimates() map[primitives.Hash]float64 {
	out := make(map[primitives.Hash]float64, len(n.replica.values))
	for id, v := range n.replica.values {
		out[id] = v
	}
	return out
}

// RestoreReplicaEstimates seeds the replica estimator from a prior snapshot,
// replacing whatever state it already holds.
func (n *Node) RestoreReplicaEstimates(values map[primitives.Hash]float64) {
	n.replica.values = make(map[primitives.Hash]float64, len(values))
	for id, v := range values {
		n.replica.values[id] = v
	}
}

// ShardCache exposes the node's shard cache, for persistence by pkg/snapshot.
func (n *Node) ShardCache() *cache.ShardCache { return n.cache }

// TrustStore exposes the node's trust store, for persistence by pkg/snapshot.
func (n *Node) TrustStore() *policy.Store { return n.trust }

// Snapshot is a point-in-time view of the node's internal occupancy, used by
// the operator debug endpoint (cmd/veild) and veil-inspect.
type Snapshot struct {
	CacheEntries    int
	CacheBytesUsed  int64
	PublishQueueLen int
	InboxLen        int
	DedupeLen       int
	InboundReceived uint64
	InboundDropped  uint64
}

// DebugSnapshot reports current occupancy across the cache, publish queue,
// reconstruction inbox and dedupe window. Safe to call from any goroutine.
func (n *Node) DebugSnapshot() Snapshot {
	return Snapshot{
		CacheEntries:    n.cache.Len(),
		CacheBytesUsed:  n.cache.UsedBytes(),
		PublishQueueLen: n.queue.Len(),
		InboxLen:        n.inbox.Len(),
		DedupeLen:       n.dedupe.Len(),
		InboundReceived: n.inboundReceived.Load(),
		InboundDropped:  n.inboundDropped.Load(),
	}
}

func (n *Node) refanout(root primitives.Hash) {
	// A deadline-exceeded retry re-sends every shard of root still held in
	// the cache (keyed by (object_root, index)); which indices were already
	// sent is not tracked, so already-sent shards go out again.
	shards := n.cache.ShardsFor(root)
	if len(shards) == 0 || len(n.lanes) == 0 {
		return
	}
	ranked := rankLanes(n.lanes)
	lane := ranked[0].lane
	for _, payload := range shards {
		for i, peer := range lane.Peers {
			if i >= n.cfg.FallbackLanePeers {
				break
			}
			lane.Adapter.Send(context.Background(), peer, payload)
		}
	}
}
