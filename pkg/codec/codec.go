// Package codec implements the canonical CBOR wire format of §3/§6:
// ObjectV1, ShardV1, ACK (a compact Object), ShardRequest and ContactBundle.
// Encoding is deterministic — definite-length arrays, shortest integer form,
// fields in schema-declared positional order — so that independent
// implementations produce byte-identical output for the same value, per
// design note "Deterministic CBOR".
//
// We lean on fxamacker/cbor's canonical encode mode rather than hand-rolling
// a minimal encoder: the library already implements RFC 8949 canonical form,
// and struct tags give us schema-ordered positional arrays for free via
// `cbor:",toarray"`.
//
// © 2025 veil authors. MIT License.
package codec

import (
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CanonicalEncOptions()
	m, err := encOpts.EncMode()
	if err != nil {
		panic("codec: invalid canonical encode options: " + err.Error())
	}
	encMode = m

	decOpts := cbor.DecOptions{
		// IndefLength items are never emitted by a canonical encoder; rejecting
		// them on decode closes off a trivial non-determinism channel.
		IndefLength: cbor.IndefLengthForbidden,
		// Duplicate map keys would let two implementations disagree about
		// which value wins; this format never needs them.
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}
	d, err := decOpts.DecMode()
	if err != nil {
		panic("codec: invalid decode options: " + err.Error())
	}
	decMode = d
}

// ErrorKind enumerates the decode failure modes of §4.2/§7.
type ErrorKind uint8

const (
	_ ErrorKind = iota
	// InvalidFormat covers any structurally malformed CBOR the decoder cannot
	// parse into the target schema at all.
	InvalidFormat
	// VersionMismatch is returned when the decoded version field is not the
	// one this codec understands.
	VersionMismatch
	// FieldOutOfRange is returned when a decoded field violates a declared
	// invariant (e.g. index >= n).
	FieldOutOfRange
	// Truncated is returned when the input ends before a length-prefixed
	// field can be fully read.
	Truncated
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidFormat:
		return "InvalidFormat"
	case VersionMismatch:
		return "VersionMismatch"
	case FieldOutOfRange:
		return "FieldOutOfRange"
	case Truncated:
		return "Truncated"
	default:
		return "Unknown"
	}
}

// Error is the single typed error this package returns. Kind drives the
// caller's recovery path (§7): codec errors always mean "drop payload,
// increment inbound_dropped".
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Msg }

func newErr(kind ErrorKind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func wrapDecodeErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case isTruncated(err):
		return newErr(Truncated, msg)
	default:
		return newErr(InvalidFormat, msg)
	}
}

func isTruncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
