package transport

import (
	"context"
	"sync/atomic"
)

// LoopbackAdapter is an in-memory Adapter backed by a bounded channel pair,
// used by tests to exercise the full publish -> transport -> reconstruction
// pipeline without a real network. NewLoopbackPair wires two
// LoopbackAdapters to each other; sends on one side become receives on the
// other.
type LoopbackAdapter struct {
	self Peer
	peer Peer // the handle this adapter uses to address its counterpart

	out     chan<- Inbound // write end, owned by the counterpart's in channel
	in      <-chan Inbound
	maxSize int

	queued    atomic.Uint64
	sendOk    atomic.Uint64
	sendErr   atomic.Uint64
	received  atomic.Uint64
	dropped   atomic.Uint64
	reconnect atomic.Uint64
}

// NewLoopbackPair builds two LoopbackAdapters wired to each other with a
// bounded channel of the given depth. maxPayload is reported verbatim by
// MaxPayloadHint on both ends; 0 means "no limit" (hint reports ok=false).
func NewLoopbackPair(depth, maxPayload int) (a, b *LoopbackAdapter) {
	aToB := make(chan Inbound, depth)
	bToA := make(chan Inbound, depth)

	a = &LoopbackAdapter{self: NewPeer(), out: aToB, in: bToA, maxSize: maxPayload}
	b = &LoopbackAdapter{self: NewPeer(), out: bToA, in: aToB, maxSize: maxPayload}
	a.peer = b.self
	b.peer = a.self
	return a, b
}

// Peer returns the opaque handle this adapter's counterpart is addressed by.
func (l *LoopbackAdapter) Peer() Peer {
	return l.peer
}

// Send implements Adapter. The channel send is non-blocking: a full buffer
// is reported as a TemporaryErr and counted against outbound_queued, mirroring
// a real lane under backpressure (§5 "Backpressure").
func (l *LoopbackAdapter) Send(ctx context.Context, peer Peer, payload []byte) SendResult {
	if l.maxSize > 0 && len(payload) > l.maxSize {
		l.sendErr.Add(1)
		return SendPermanentErr
	}
	msg := Inbound{Peer: l.self, Bytes: append([]byte(nil), payload...)}
	select {
	case l.out <- msg:
		l.sendOk.Add(1)
		return SendOk
	default:
		l.queued.Add(1)
		l.sendErr.Add(1)
		return SendTemporaryErr
	}
}

// Recv implements Adapter.
func (l *LoopbackAdapter) Recv(ctx context.Context) (Inbound, error) {
	select {
	case msg := <-l.in:
		l.received.Add(1)
		return msg, nil
	case <-ctx.Done():
		return Inbound{}, ErrRecvCanceled
	}
}

// MaxPayloadHint implements Adapter.
func (l *LoopbackAdapter) MaxPayloadHint() (int, bool) {
	if l.maxSize <= 0 {
		return 0, false
	}
	return l.maxSize, true
}

// HealthSnapshot implements Adapter.
func (l *LoopbackAdapter) HealthSnapshot() HealthSnapshot {
	return HealthSnapshot{
		OutboundQueued:    l.queued.Load(),
		OutboundSendOk:    l.sendOk.Load(),
		OutboundSendErr:   l.sendErr.Load(),
		InboundReceived:   l.received.Load(),
		InboundDropped:    l.dropped.Load(),
		ReconnectAttempts: l.reconnect.Load(),
	}
}

// DropInbound lets callers simulate a core-side full channel by discarding
// the next inbound message instead of processing it, incrementing
// inbound_dropped. Used by tests exercising backpressure.
func (l *LoopbackAdapter) DropInbound(ctx context.Context) error {
	_, err := l.Recv(ctx)
	if err != nil {
		return err
	}
	l.dropped.Add(1)
	return nil
}

var _ Adapter = (*LoopbackAdapter)(nil)
