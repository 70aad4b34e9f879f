// Package transport defines the adapter contract every veil lane implements
// (§4.5) and ships the in-process LoopbackAdapter the core module
// builds and tests against. Concrete lanes (QUIC, Tor, mixnets, ...) live
// outside this module as independent collaborators; none ships here.
//
// © 2025 veil authors. MIT License.
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// SendResult is the three-way outcome of Adapter.Send, per §4.5.
type SendResult int

const (
	SendOk SendResult = iota
	SendTemporaryErr
	SendPermanentErr
)

func (r SendResult) String() string {
	switch r {
	case SendOk:
		return "ok"
	case SendTemporaryErr:
		return "temporary_err"
	case SendPermanentErr:
		return "permanent_err"
	default:
		return "unknown"
	}
}

// Peer is an opaque handle to a remote endpoint, valid only within the
// session of the Adapter that minted it. Replies MUST echo the inbound
// Peer handle unchanged.
type Peer struct {
	token uuid.UUID
}

// NewPeer mints a fresh opaque peer handle. Adapters call this once per
// remote endpoint they learn about; the zero Peer is never valid.
func NewPeer() Peer {
	return Peer{token: uuid.New()}
}

func (p Peer) String() string {
	return p.token.String()
}

// IsZero reports whether p is the zero-value Peer (never minted).
func (p Peer) IsZero() bool {
	return p.token == uuid.Nil
}

// Inbound is one (peer, bytes) pair produced by Adapter.Recv.
type Inbound struct {
	Peer  Peer
	Bytes []byte
}

// HealthSnapshot mirrors §4.5's health_snapshot() fields exactly; the
// scheduler turns these cumulative counters into a lane's health score
// (sends ok over sends attempted, over the adapter's whole lifetime; older
// sends are not weighted down).
type HealthSnapshot struct {
	OutboundQueued   uint64
	OutboundSendOk   uint64
	OutboundSendErr  uint64
	InboundReceived  uint64
	InboundDropped   uint64
	ReconnectAttempts uint64
}

// ErrRecvCanceled is returned by Recv when ctx is done before a message
// arrives.
var ErrRecvCanceled = errors.New("transport: recv canceled")

// Adapter is the capability set required of any transport lane (§4.5).
// Delivery is best-effort, unordered, and lossy; implementations MUST NOT
// block the core task beyond the Recv call itself, which is expected to be
// cancellable via ctx.
type Adapter interface {
	// Send transmits bytes to peer. It never blocks beyond an internal,
	// adapter-defined per-send timeout.
	Send(ctx context.Context, peer Peer, payload []byte) SendResult

	// Recv returns the next available inbound message, blocking until one
	// arrives or ctx is canceled (returning ErrRecvCanceled).
	Recv(ctx context.Context) (Inbound, error)

	// MaxPayloadHint reports the adapter's preferred maximum payload size,
	// when known. ok is false when the adapter has no fixed limit.
	MaxPayloadHint() (size int, ok bool)

	// HealthSnapshot reports the adapter's cumulative counters.
	HealthSnapshot() HealthSnapshot
}
