// Package fec implements the erasure-coding layer of §4.4: profile
// selection, systematic Reed-Solomon for public posts, and hardened
// non-systematic Reed-Solomon (a deterministic permutation ahead of a
// standard RS encode) for everything else.
//
// © 2025 veil authors. MIT License.
package fec

import "errors"

// Profile is a (k, n, bucket_size) tuple governing FEC and shard sizing,
// per §4.4/GLOSSARY.
type Profile struct {
	Name   string
	K      int
	N      int
	Bucket int // full shard bucket size in bytes, including header overhead
}

// Well-known profiles. MICRO covers the smallest buckets (including the
// 2/4/8 KiB variants §3 calls out for the MICRO profile, e.g. ACK
// objects); SMALL and LARGE cover the 16/32/64 KiB range for ordinary
// Objects.
var (
	MicroSmall  = Profile{Name: "MICRO-2K", K: 2, N: 3, Bucket: 2 << 10}
	MicroMedium = Profile{Name: "MICRO-4K", K: 2, N: 3, Bucket: 4 << 10}
	MicroLarge  = Profile{Name: "MICRO-8K", K: 2, N: 3, Bucket: 8 << 10}
	Small       = Profile{Name: "SMALL", K: 6, N: 10, Bucket: 16 << 10}
	LargeSmall  = Profile{Name: "LARGE-32K", K: 10, N: 16, Bucket: 32 << 10}
	LargeBig    = Profile{Name: "LARGE-64K", K: 10, N: 16, Bucket: 64 << 10}
)

// orderedProfiles lists every profile smallest-bucket-first; SelectProfile
// walks this list and returns the first whose usable payload capacity
// (K * (Bucket - headerOverhead)) can hold paddedSize bytes.
var orderedProfiles = []Profile{MicroSmall, MicroMedium, MicroLarge, Small, LargeSmall, LargeBig}

// ErrNoFittingProfile is returned when paddedSize exceeds every profile's
// capacity (i.e. exceeds MAX_OBJECT_SIZE in practice, which callers should
// have already rejected).
var ErrNoFittingProfile = errors.New("fec: no profile fits the requested size")

// SelectProfile returns the smallest profile whose bucket fits the padded
// Object, per §4.4. headerOverhead is the number of bytes of each
// bucket consumed by the ShardV1 header fields (everything but Payload);
// the caller (pkg/node publish pipeline) computes it from the codec.
func SelectProfile(paddedSize, headerOverhead int) (Profile, error) {
	for _, p := range orderedProfiles {
		capacity := p.K * (p.Bucket - headerOverhead)
		if capacity >= paddedSize {
			return p, nil
		}
	}
	return Profile{}, ErrNoFittingProfile
}

// SelectProfileJittered behaves like SelectProfile but, when jitter is true,
// upgrades to the next larger bucket within the pool (when one exists) to
// blur size fingerprints, per §3's "bounded upward bucket jitter".
func SelectProfileJittered(paddedSize, headerOverhead int, jitter bool) (Profile, error) {
	p, err := SelectProfile(paddedSize, headerOverhead)
	if err != nil || !jitter {
		return p, err
	}
	for i, candidate := range orderedProfiles {
		if candidate == p && i+1 < len(orderedProfiles) {
			next := orderedProfiles[i+1]
			if next.K*(next.Bucket-headerOverhead) >= paddedSize {
				return next, nil
			}
		}
	}
	return p, nil
}

// PayloadCapacity returns the total bytes this profile can carry across its
// k data shards for the given header overhead.
func (p Profile) PayloadCapacity(headerOverhead int) int {
	return p.K * (p.Bucket - headerOverhead)
}

// ShardPayloadSize returns the usable bytes per shard after the header.
func (p Profile) ShardPayloadSize(headerOverhead int) int {
	return p.Bucket - headerOverhead
}
