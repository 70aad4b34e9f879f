package codec

import "github.com/veil-project/veil/internal/primitives"

// Flag bits for ObjectV1.Flags, per §3.
const (
	FlagSigned       uint16 = 1 << 0
	FlagPublic       uint16 = 1 << 1
	FlagAckRequested uint16 = 1 << 2
	FlagBatched      uint16 = 1 << 3
)

// ObjectVersion1 is the only schema version this codec emits or accepts.
const ObjectVersion1 uint16 = 1

// NonceSize is the AEAD nonce width (XChaCha20-Poly1305).
const NonceSize = 24

// SignatureSize is the width of both supported signature schemes' output
// as carried on the wire (Ed25519 signatures and secp256k1 Schnorr
// signatures are both 64 bytes).
const SignatureSize = 64

// ObjectV1 is the application-level encrypted unit prior to sharding
// (§3). Field order is the encode order on the wire: do not reorder
// without bumping Version and documenting the new layout in golden vectors.
type ObjectV1 struct {
	_             struct{} `cbor:",toarray"`
	Version       uint16
	Namespace     uint16
	Epoch         uint32
	Flags         uint16
	Tag           primitives.Hash
	ObjectRoot    primitives.Hash
	Nonce         [NonceSize]byte
	Ciphertext    []byte
	Padding       []byte
	SenderPubKey  []byte // empty iff unsigned; 32 bytes iff signed
	Signature     []byte // empty iff unsigned; 64 bytes iff signed
}

// Signed reports whether the signed flag bit is set.
func (o *ObjectV1) Signed() bool { return o.Flags&FlagSigned != 0 }

// Public reports whether the public flag bit is set.
func (o *ObjectV1) Public() bool { return o.Flags&FlagPublic != 0 }

// AckRequested reports whether the sender asked for delivery acknowledgement.
func (o *ObjectV1) AckRequested() bool { return o.Flags&FlagAckRequested != 0 }

// Batched reports whether this Object carries more than one application
// payload accumulated by the publish pipeline's batching stage.
func (o *ObjectV1) Batched() bool { return o.Flags&FlagBatched != 0 }

// Encode serializes o to canonical CBOR.
func (o *ObjectV1) Encode() ([]byte, error) {
	b, err := encMode.Marshal(o)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	return b, nil
}

// DecodeObjectV1 parses and structurally validates b into an ObjectV1.
// maxObjectSize enforces the encoded_size invariant of §3; pass 0 to
// skip the size check (used by callers that already bounded the input).
func DecodeObjectV1(b []byte, maxObjectSize int) (*ObjectV1, error) {
	if maxObjectSize > 0 && len(b) > maxObjectSize {
		return nil, newErr(FieldOutOfRange, "encoded object exceeds max_object_size")
	}
	var o ObjectV1
	if err := decMode.Unmarshal(b, &o); err != nil {
		return nil, wrapDecodeErr(err)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *ObjectV1) validate() error {
	if o.Version != ObjectVersion1 {
		return newErr(VersionMismatch, "unsupported ObjectV1 version")
	}
	if o.Signed() {
		if len(o.SenderPubKey) == 0 {
			return newErr(FieldOutOfRange, "signed object missing sender_pubkey")
		}
		if len(o.Signature) != SignatureSize {
			return newErr(FieldOutOfRange, "signed object has malformed signature")
		}
	}
	return nil
}

// HeaderBytes returns the canonical_header_bytes covered by the signature:
// every field except Ciphertext/Padding/SenderPubKey/Signature, encoded in
// the same little-endian layout tag derivation uses, so both the AEAD AD and
// the signature are computed over byte-exact, language-independent input.
func (o *ObjectV1) HeaderBytes() []byte {
	buf := make([]byte, 0, 2+2+4+2+primitives.HashSize+primitives.HashSize+NonceSize)
	buf = primitives.PutU16(buf, o.Version)
	buf = primitives.PutU16(buf, o.Namespace)
	buf = primitives.PutU32(buf, o.Epoch)
	buf = primitives.PutU16(buf, o.Flags)
	buf = append(buf, o.Tag[:]...)
	buf = append(buf, o.ObjectRoot[:]...)
	buf = append(buf, o.Nonce[:]...)
	return buf
}

// ComputeObjectRoot implements object_root = H(canonical_header ‖ ciphertext)
// from §3. The header hashed here is version, namespace and epoch (little
// endian) followed by tag; it excludes object_root itself (it is what we are
// computing) as well as flags and nonce.
func ComputeObjectRoot(version, namespace uint16, epoch uint32, tag primitives.Hash, ciphertext []byte) primitives.Hash {
	header := make([]byte, 0, 2+2+4+primitives.HashSize)
	header = primitives.PutU16(header, version)
	header = primitives.PutU16(header, namespace)
	header = primitives.PutU32(header, epoch)
	header = append(header, tag[:]...)
	return primitives.H(header, ciphertext)
}

// AckPayload returns the 32-byte plaintext payload an ACK Object must carry:
// the object_root being acknowledged (§6). The ACK itself is an
// ordinary ObjectV1 — the publish pipeline seals this payload exactly like
// any other application payload, using the MICRO FEC profile.
func AckPayload(root primitives.Hash) []byte {
	out := make([]byte, primitives.HashSize)
	copy(out, root[:])
	return out
}
