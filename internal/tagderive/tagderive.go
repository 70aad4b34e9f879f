// Package tagderive implements the deterministic routing-tag formulas of
// §1/§4.1: feed tags (stable) and rendezvous tags (rotating per epoch),
// plus the epoch arithmetic both depend on. Every function here is pure and
// infallible given correctly sized inputs — there is no failure mode to
// report, matching §4.1.
//
// © 2025 veil authors. MIT License.
package tagderive

import (
	"strings"
	"time"

	"github.com/veil-project/veil/internal/primitives"
)

// DefaultEpochSeconds is the default epoch window width (§1).
const DefaultEpochSeconds = 86400

// DefaultOverlapSeconds resolves the open question in §9: the default
// rendezvous-tag acceptance overlap. Two minutes comfortably absorbs clock
// skew between participants without meaningfully widening the rv_tag's
// correlation window.
const DefaultOverlapSeconds = 120

// Epoch returns the epoch index for now, per §1: floor(now / width).
func Epoch(now time.Time, epochSeconds uint32) uint32 {
	if epochSeconds == 0 {
		epochSeconds = DefaultEpochSeconds
	}
	return uint32(now.Unix() / int64(epochSeconds))
}

// FeedTag derives the stable per-publisher, per-namespace tag:
// H("feed" ‖ publisher_pubkey ‖ u16(namespace)).
func FeedTag(publisherPubKey []byte, namespace uint16) primitives.Tag {
	ns := primitives.PutU16(nil, namespace)
	return primitives.H([]byte("feed"), publisherPubKey, ns)
}

// RVTag derives the rotating rendezvous tag for a given epoch:
// H("rv" ‖ recipient_pubkey ‖ u32(epoch) ‖ u16(namespace)).
func RVTag(recipientPubKey []byte, epoch uint32, namespace uint16) primitives.Tag {
	ep := primitives.PutU32(nil, epoch)
	ns := primitives.PutU16(nil, namespace)
	return primitives.H([]byte("rv"), recipientPubKey, ep, ns)
}

// AcceptableRVTags returns every rv_tag a receiver must accept at instant
// now: the tag for the current epoch plus the tag for every epoch boundary
// that falls inside [now-overlap, now+overlap]. In practice that is almost
// always the current and one adjacent epoch, but the loop is written against
// the overlap window directly rather than hard-coding "adjacent" so that an
// overlap wider than one epoch (unusual, but not disallowed) still works.
func AcceptableRVTags(recipientPubKey []byte, namespace uint16, now time.Time, epochSeconds, overlapSeconds uint32) []primitives.Tag {
	if epochSeconds == 0 {
		epochSeconds = DefaultEpochSeconds
	}
	if overlapSeconds == 0 {
		overlapSeconds = DefaultOverlapSeconds
	}

	width := int64(epochSeconds)
	overlap := int64(overlapSeconds)

	centerEpoch := Epoch(now, epochSeconds)
	lowEpoch := Epoch(now.Add(-time.Duration(overlap)*time.Second), epochSeconds)
	highEpoch := Epoch(now.Add(time.Duration(overlap)*time.Second), epochSeconds)

	seen := make(map[uint32]struct{}, 3)
	var tags []primitives.Tag
	add := func(e uint32) {
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		tags = append(tags, RVTag(recipientPubKey, e, namespace))
	}

	add(centerEpoch)
	add(lowEpoch)
	add(highEpoch)
	_ = width // width is implicit in Epoch(); kept named for documentation
	return tags
}

// NormalizeChannelName implements normalize_lowercase_trim from §4.1:
// deterministic canonicalization so two participants deriving a
// channel_namespace from user-entered text agree byte-for-byte.
func NormalizeChannelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ChannelTag derives a feed-style tag scoped to a normalized channel name,
// for namespace-scoped public channels layered on top of the core feed_tag
// formula: H("channel" ‖ u16(namespace) ‖ normalized_name).
func ChannelTag(channelName string, namespace uint16) primitives.Tag {
	normalized := NormalizeChannelName(channelName)
	ns := primitives.PutU16(nil, namespace)
	return primitives.H([]byte("channel"), ns, []byte(normalized))
}
