// Package primitives defines the fixed-width byte types shared by every layer
// of veil: content hashes, routing tags and the BLAKE3 hash function used to
// derive both. Nothing here depends on CBOR, crypto signatures or the node
// runtime — it is the L0 foundation the rest of the module builds on.
//
// © 2025 veil authors. MIT License.
package primitives

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// HashSize is the width, in bytes, of every content hash and tag in veil.
const HashSize = 32

// Hash is a fixed-width BLAKE3-256 digest. object_root and shard_id are both
// Hash values; so is the Tag type below (tags are hashes of routing inputs,
// not random identifiers).
type Hash [HashSize]byte

// Tag is a routing identifier: either a stable feed_tag or a rotating rv_tag.
// It is byte-identical to Hash; the distinct name documents intent at call
// sites without adding a conversion.
type Tag = Hash

// String renders the hash as lowercase hex, the same encoding ContactBundle
// QR/URL payloads and CLI tooling use.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the all-zero value, used by callers to detect
// an unset Hash field after CBOR decode.
func (h Hash) IsZero() bool { return h == Hash{} }

// H computes the BLAKE3-256 hash of the literal concatenation of parts, as
// required by every formula in §3 (feed_tag, rv_tag, object_root).
func H(parts ...[]byte) Hash {
	hasher := blake3.New(HashSize, nil)
	for _, p := range parts {
		hasher.Write(p)
	}
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

// PutU16 appends the little-endian encoding of v to dst and returns the
// extended slice. Kept alongside PutU32 so tag derivation and the codec share
// one byte-exact integer representation per §1.
func PutU16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// PutU32 appends the little-endian encoding of v to dst.
func PutU32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}
