// Package cache implements the shard cache of §4.9: TTL purge, then
// composite-score eviction under pressure (w_rarity·(−replica_score) +
// w_trust·tier_rank − w_age·age, lowest-retained-value first), with
// per-tier byte caps. It is the direct generalization of a generic
// CLOCK-Pro cache: the ref-bit clock hand is replaced by an explicit
// scoring rule, since rarity/trust/age cannot be approximated by a single
// hot/cold bit.
//
// © 2025 veil authors. MIT License.
package cache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/veil-project/veil/internal/primitives"
	"github.com/veil-project/veil/pkg/policy"
)

// Entry is one cached shard.
type Entry struct {
	ShardID      primitives.Hash
	ObjectRoot   primitives.Hash
	Index        uint16
	Payload      []byte
	Expiry       time.Time
	LastSeen     time.Time
	ReplicaScore float64
	Tier         policy.Tier
}

func (e *Entry) weight() int64 { return int64(len(e.Payload)) }

// ShardCache holds reconstructed and in-flight shard bytes, indexed both by
// shard_id and by (object_root, index) for reconstruction lookups.
type ShardCache struct {
	mu sync.Mutex

	entries      map[primitives.Hash]*Entry
	byObjectRoot map[primitives.Hash]map[uint16]primitives.Hash

	capacityBytes int64
	usedBytes     int64

	tierCapBytes map[policy.Tier]int64

	weightRarity float64
	weightTrust  float64
	weightAge    float64

	metrics metricsSink
	logger  *zap.Logger

	now func() time.Time
}

// Option configures a ShardCache at construction.
type Option func(*ShardCache)

// WithTierCaps sets absolute byte caps per tier. Per §4.9, callers MUST
// supply trusted >= known >= unknown; Blocked is never cached regardless of
// any cap supplied for it.
func WithTierCaps(trusted, known, unknown, muted int64) Option {
	return func(c *ShardCache) {
		c.tierCapBytes[policy.Trusted] = trusted
		c.tierCapBytes[policy.Known] = known
		c.tierCapBytes[policy.Unknown] = unknown
		c.tierCapBytes[policy.Muted] = muted
	}
}

// WithWeights overrides the composite eviction score's weights.
func WithWeights(rarity, trust, age float64) Option {
	return func(c *ShardCache) {
		c.weightRarity = rarity
		c.weightTrust = trust
		c.weightAge = age
	}
}

// WithLogger plugs an external zap.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *ShardCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics registers Prometheus counters/gauges for hits, misses,
// evictions, and live bytes, all labeled by tier, against reg. Passing a nil
// registry leaves the default no-op sink in place.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *ShardCache) {
		if reg != nil {
			c.metrics = newPromMetrics(reg)
		}
	}
}

// New builds a ShardCache with the given total byte budget.
func New(capacityBytes int64, opts ...Option) *ShardCache {
	c := &ShardCache{
		entries:       map[primitives.Hash]*Entry{},
		byObjectRoot:  map[primitives.Hash]map[uint16]primitives.Hash{},
		capacityBytes: capacityBytes,
		tierCapBytes:  map[policy.Tier]int64{},
		weightRarity:  0.5,
		weightTrust:   0.35,
		weightAge:     0.15,
		metrics:       noopMetrics{},
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put inserts or refreshes a shard entry. Blocked-tier shards are never
// admitted, per §4.9.
func (c *ShardCache) Put(e Entry) {
	if e.Tier == policy.Blocked {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[e.ShardID]; ok {
		c.usedBytes -= existing.weight()
	}
	c.entries[e.ShardID] = &e
	c.usedBytes += e.weight()

	byIndex, ok := c.byObjectRoot[e.ObjectRoot]
	if !ok {
		byIndex = map[uint16]primitives.Hash{}
		c.byObjectRoot[e.ObjectRoot] = byIndex
	}
	byIndex[e.Index] = e.ShardID

	c.metrics.setBytes(e.Tier.String(), c.tierBytesLocked(e.Tier))
	c.evictIfNeeded()
}

// Get returns the cached shard payload for shardID, if present, refreshing
// LastSeen and reporting a hit/miss to metrics.
func (c *ShardCache) Get(shardID primitives.Hash) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[shardID]
	if !ok {
		c.metrics.incMiss(policy.Unknown.String())
		return nil, false
	}
	e.LastSeen = c.now()
	c.metrics.incHit(e.Tier.String())
	return e.Payload, true
}

// ShardsFor returns every cached shard for objectRoot, keyed by index, for
// reconstruction. The returned map is a defensive copy.
func (c *ShardCache) ShardsFor(objectRoot primitives.Hash) map[uint16][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	byIndex, ok := c.byObjectRoot[objectRoot]
	if !ok {
		return nil
	}
	out := make(map[uint16][]byte, len(byIndex))
	for idx, shardID := range byIndex {
		if e, ok := c.entries[shardID]; ok {
			out[idx] = e.Payload
		}
	}
	return out
}

func (c *ShardCache) tierBytesLocked(tier policy.Tier) int64 {
	var total int64
	for _, e := range c.entries {
		if e.Tier == tier {
			total += e.weight()
		}
	}
	return total
}

// PurgeExpired removes every entry with Expiry <= now, per §4.9 step 1.
func (c *ShardCache) PurgeExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	purged := 0
	for id, e := range c.entries {
		if !now.Before(e.Expiry) {
			c.removeLocked(id, e)
			purged++
		}
	}
	return purged
}

// PurgeObjectRoot removes every cached shard belonging to root, regardless
// of TTL, and returns how many entries were evicted. Used to drop a root's
// shards outright once its reconstructed Object fails validation (§6).
func (c *ShardCache) PurgeObjectRoot(root primitives.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	byIndex, ok := c.byObjectRoot[root]
	if !ok {
		return 0
	}
	ids := make([]primitives.Hash, 0, len(byIndex))
	for _, id := range byIndex {
		ids = append(ids, id)
	}
	purged := 0
	for _, id := range ids {
		if e, ok := c.entries[id]; ok {
			c.removeLocked(id, e)
			purged++
		}
	}
	return purged
}

func (c *ShardCache) removeLocked(id primitives.Hash, e *Entry) {
	delete(c.entries, id)
	c.usedBytes -= e.weight()
	if byIndex, ok := c.byObjectRoot[e.ObjectRoot]; ok {
		delete(byIndex, e.Index)
		if len(byIndex) == 0 {
			delete(c.byObjectRoot, e.ObjectRoot)
		}
	}
}

// score computes the composite eviction score of §4.9 step 2. Lower
// scores are evicted first: common (high replica_score -> low
// -replica_score), untrusted, and old entries sort to the front, so rare,
// trusted, recently seen entries are retained.
func (c *ShardCache) score(e *Entry, now time.Time) float64 {
	age := now.Sub(e.LastSeen).Seconds()
	return c.weightRarity*(-e.ReplicaScore) + c.weightTrust*float64(e.Tier.Rank()) - c.weightAge*age
}

// evictIfNeeded enforces the total capacity and per-tier caps by evicting
// lowest-score entries first until both hold. Caller must hold c.mu.
func (c *ShardCache) evictIfNeeded() {
	now := c.now()

	for c.usedBytes > c.capacityBytes || c.tierNeedsEvictionLocked() {
		victimID, victim, found := c.lowestScoreLocked(now)
		if !found {
			break
		}
		c.removeLocked(victimID, victim)
		c.metrics.incEvict(victim.Tier.String())
		c.metrics.setBytes(victim.Tier.String(), c.tierBytesLocked(victim.Tier))
	}
}

func (c *ShardCache) tierNeedsEvictionLocked() bool {
	for tier, cap := range c.tierCapBytes {
		if cap > 0 && c.tierBytesLocked(tier) > cap {
			return true
		}
	}
	return false
}

func (c *ShardCache) lowestScoreLocked(now time.Time) (primitives.Hash, *Entry, bool) {
	var (
		bestID    primitives.Hash
		bestEntry *Entry
		bestScore float64
		found     bool
	)
	for id, e := range c.entries {
		s := c.score(e, now)
		if !found || s < bestScore {
			bestID, bestEntry, bestScore, found = id, e, s, true
		}
	}
	return bestID, bestEntry, found
}

// Snapshot returns a defensive copy of every cached entry, for persistence
// by pkg/snapshot. Order is unspecified.
func (c *ShardCache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	return out
}

// Restore repopulates the cache from a prior Snapshot by Putting each entry
// on top of whatever the cache already holds; existing entries are not
// cleared first. Capacity and tier caps are enforced exactly as
// they are for Put, so a restore onto a smaller cache evicts down to fit.
func (c *ShardCache) Restore(entries []Entry) {
	for _, e := range entries {
		c.Put(e)
	}
}

// Len returns the number of cached shard entries.
func (c *ShardCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// UsedBytes returns the current total cached payload size.
func (c *ShardCache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}
