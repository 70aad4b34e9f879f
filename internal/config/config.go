// Package config bundles every knob that governs a node's behavior into one
// validated, immutable object, built via functional options over a
// defaulted base struct.
//
// © 2025 veil authors. MIT License.
package config

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config holds every tunable named in the node's external interface. Fields
// are copied in at construction and never mutated afterward; callers that
// need different behavior build a new Config.
type Config struct {
	// Sizing (§6 "MAX_OBJECT_SIZE", "TARGET_BATCH_SIZE")
	MaxObjectSize    int
	TargetBatchSize  int
	BucketJitter     bool

	// Tag derivation (§4.1)
	EpochSeconds   int64
	OverlapSeconds int64

	// FEC (§4.4)
	SystematicPublicNamespaces map[uint16]bool

	// Signature policy (§6)
	RequiredSignedNamespaces map[uint16]bool

	// Forwarding (§4.6)
	MinForwardProb    float64
	ReplicaDivisor    float64
	FastLanePeers     int
	FallbackLanePeers int

	// Publish retry (§4.8)
	AckDeadline     time.Duration
	MaxAttempts     int
	AckDeadlineCap  time.Duration

	// Cache (§4.9)
	CacheCapacityBytes int64
	CacheTTL           time.Duration
	WeightRarity       float64
	WeightTrust        float64
	WeightAge          float64

	// WoT (§4.10)
	TrustedQuota     float64
	KnownQuota       float64
	UnknownQuota     float64
	UnknownFloor     float64
	KnownEndorserMin int

	// Transport health (§5)
	MinimumHealthyLaneScore float64

	// Runner orchestration (§4.11)
	TickInterval         time.Duration
	MaxInboundPerTick     int
	InboxTTL              time.Duration
	MaxConsecutiveErrors  int
	BackoffInitial        time.Duration
	BackoffCap            time.Duration

	// Dedupe (§4.6)
	DedupeCapacity int

	// Ambient
	Logger   *zap.Logger
	Registry *prometheus.Registry

	// derived / pre-computed, filled in by validate()
	headerOverhead int
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithLogger plugs an external zap.Logger. The core never logs on a
// per-shard hot path; only tick-boundary events and terminal failures are
// emitted.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default, via a no-op sink).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *Config) { c.Registry = reg }
}

// WithEpoch overrides the default tag-rotation epoch and acceptance overlap.
func WithEpoch(epochSeconds, overlapSeconds int64) Option {
	return func(c *Config) {
		c.EpochSeconds = epochSeconds
		c.OverlapSeconds = overlapSeconds
	}
}

// WithSystematicNamespace opts a namespace into systematic (non-hardened)
// FEC, per §4.4's "namespace 1 only by default".
func WithSystematicNamespace(ns uint16) Option {
	return func(c *Config) {
		if c.SystematicPublicNamespaces == nil {
			c.SystematicPublicNamespaces = map[uint16]bool{}
		}
		c.SystematicPublicNamespaces[ns] = true
	}
}

// WithRequiredSignedNamespace marks ns as requiring a valid sender signature
// on every Object; an unsigned Object in such a namespace is rejected after
// reconstruction and its cache entries purged, per §6.
func WithRequiredSignedNamespace(ns uint16) Option {
	return func(c *Config) {
		if c.RequiredSignedNamespaces == nil {
			c.RequiredSignedNamespaces = map[uint16]bool{}
		}
		c.RequiredSignedNamespaces[ns] = true
	}
}

// WithCache overrides the cache's capacity and base TTL.
func WithCache(capBytes int64, ttl time.Duration) Option {
	return func(c *Config) {
		c.CacheCapacityBytes = capBytes
		c.CacheTTL = ttl
	}
}

// WithTickInterval overrides how often run_steps/run_until schedule a tick.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) { c.TickInterval = d }
}

// WithForwardingQuotas overrides the default 70/25/5 tier fanout shape and
// the 2% unknown floor. New validates that trusted+known+unknown sum to 1.0
// and that unknownFloor does not exceed unknown.
func WithForwardingQuotas(trusted, known, unknown, unknownFloor float64) Option {
	return func(c *Config) {
		c.TrustedQuota = trusted
		c.KnownQuota = known
		c.UnknownQuota = unknown
		c.UnknownFloor = unknownFloor
	}
}

func defaultConfig() *Config {
	return &Config{
		MaxObjectSize:   256 << 10,
		TargetBatchSize: 96 << 10,
		BucketJitter:    true,

		EpochSeconds:   86400,
		OverlapSeconds: 120,

		SystematicPublicNamespaces: map[uint16]bool{1: true},

		MinForwardProb:    0.02,
		ReplicaDivisor:    1.0,
		FastLanePeers:     2,
		FallbackLanePeers: 2,

		AckDeadline:    5 * time.Second,
		MaxAttempts:    4,
		AckDeadlineCap: 2 * time.Minute,

		CacheCapacityBytes: 64 << 20,
		CacheTTL:           30 * time.Minute,
		WeightRarity:       0.5,
		WeightTrust:        0.35,
		WeightAge:          0.15,

		TrustedQuota:     0.70,
		KnownQuota:       0.25,
		UnknownQuota:     0.05,
		UnknownFloor:     0.02,
		KnownEndorserMin: 2,

		MinimumHealthyLaneScore: 0.2,

		TickInterval:         100 * time.Millisecond,
		MaxInboundPerTick:     256,
		InboxTTL:              2 * time.Minute,
		MaxConsecutiveErrors:  8,
		BackoffInitial:        50 * time.Millisecond,
		BackoffCap:            10 * time.Second,

		DedupeCapacity: 1 << 16,

		Logger: zap.NewNop(),
	}
}

var (
	ErrInvalidMaxObjectSize = errors.New("config: max object size must be > 0")
	ErrInvalidBatchSize     = errors.New("config: target batch size must be in (0, max_object_size]")
	ErrInvalidCacheCap      = errors.New("config: cache capacity bytes must be > 0")
	ErrInvalidCacheTTL      = errors.New("config: cache ttl must be > 0")
	ErrInvalidQuotas        = errors.New("config: forwarding quotas must sum to 1.0 and unknown_floor must fit within unknown quota")
	ErrInvalidLaneCounts    = errors.New("config: fast/fallback lane peer counts must be > 0")
)

// New builds a validated Config from defaults plus opts: validate first,
// then precompute derived fields such as headerOverhead.
func New(opts ...Option) (*Config, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.headerOverhead = 128 // conservative upper bound on ShardV1 header size
	return c, nil
}

func (c *Config) validate() error {
	if c.MaxObjectSize <= 0 {
		return ErrInvalidMaxObjectSize
	}
	if c.TargetBatchSize <= 0 || c.TargetBatchSize > c.MaxObjectSize {
		return ErrInvalidBatchSize
	}
	if c.CacheCapacityBytes <= 0 {
		return ErrInvalidCacheCap
	}
	if c.CacheTTL <= 0 {
		return ErrInvalidCacheTTL
	}
	if c.FastLanePeers <= 0 || c.FallbackLanePeers <= 0 {
		return ErrInvalidLaneCounts
	}
	sum := c.TrustedQuota + c.KnownQuota + c.UnknownQuota
	if sum < 0.999 || sum > 1.001 || c.UnknownFloor > c.UnknownQuota {
		return ErrInvalidQuotas
	}
	return nil
}

// HeaderOverhead returns the precomputed per-shard header byte budget used
// by FEC profile selection.
func (c *Config) HeaderOverhead() int {
	return c.headerOverhead
}

// RequiresSignature reports whether namespace ns rejects unsigned Objects.
func (c *Config) RequiresSignature(ns uint16) bool {
	return c.RequiredSignedNamespaces[ns]
}
