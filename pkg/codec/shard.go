package codec

import "github.com/veil-project/veil/internal/primitives"

// ShardVersion1 is the only schema version this codec emits or accepts.
const ShardVersion1 uint16 = 1

// hardenedBit is the resolved answer to the open "FEC mode bit placement"
// question in §9: the MSB of the wire n field marks hardened
// non-systematic mode. n never needs the full 16 bits (profiles cap at
// n=16), so the bit is free.
const hardenedBit uint16 = 0x8000

// ShardV1 is the network unit of §3: opaque to forwarders, identified
// by the content hash of its own encoded bytes (shard_id).
type ShardV1 struct {
	_          struct{} `cbor:",toarray"`
	Version    uint16
	Namespace  uint16
	Epoch      uint32
	Tag        primitives.Hash
	ObjectRoot primitives.Hash
	K          uint16
	NWire      uint16 // n with the hardened-mode bit folded in; use N()/Hardened()
	Index      uint16
	Payload    []byte
}

// N returns the true shard count, with the mode bit masked off.
func (s *ShardV1) N() uint16 { return s.NWire &^ hardenedBit }

// Hardened reports whether this shard belongs to a hardened non-systematic
// FEC encoding (§4.4); false means systematic mode.
func (s *ShardV1) Hardened() bool { return s.NWire&hardenedBit != 0 }

// SetN packs a true shard count and hardened flag into NWire.
func (s *ShardV1) SetN(n uint16, hardened bool) {
	s.NWire = n
	if hardened {
		s.NWire |= hardenedBit
	}
}

// Encode serializes s to canonical CBOR.
func (s *ShardV1) Encode() ([]byte, error) {
	b, err := encMode.Marshal(s)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	return b, nil
}

// ShardID computes shard_id = H(shard_encoded_bytes), the dedupe/cache key
// of §3. It re-encodes s to guarantee the hash always matches what a
// peer would compute from the bytes actually sent on the wire.
func (s *ShardV1) ShardID() (primitives.Hash, error) {
	b, err := s.Encode()
	if err != nil {
		return primitives.Hash{}, err
	}
	return primitives.H(b), nil
}

// DecodeShardV1 parses and structurally validates b into a ShardV1.
// maxBucketSize bounds the decoded payload against the largest allowed
// bucket (§3); pass 0 to skip the bound.
func DecodeShardV1(b []byte, maxBucketSize int) (*ShardV1, error) {
	var s ShardV1
	if err := decMode.Unmarshal(b, &s); err != nil {
		return nil, wrapDecodeErr(err)
	}
	if err := s.validate(maxBucketSize); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *ShardV1) validate(maxBucketSize int) error {
	if s.Version != ShardVersion1 {
		return newErr(VersionMismatch, "unsupported ShardV1 version")
	}
	n := s.N()
	if n == 0 || s.K == 0 || s.K > n {
		return newErr(FieldOutOfRange, "invalid k/n")
	}
	if s.Index >= n {
		return newErr(FieldOutOfRange, "index out of range for n")
	}
	if maxBucketSize > 0 && len(s.Payload) > maxBucketSize {
		return newErr(FieldOutOfRange, "payload exceeds max bucket size")
	}
	return nil
}
