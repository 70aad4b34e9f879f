package transport

import (
	"context"
	"testing"
	"time"
)

func TestLoopbackSendRecvRoundTrip(t *testing.T) {
	a, b := NewLoopbackPair(4, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if res := a.Send(ctx, a.Peer(), []byte("hello")); res != SendOk {
		t.Fatalf("Send = %v", res)
	}
	msg, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(msg.Bytes) != "hello" {
		t.Fatalf("Recv payload = %q", msg.Bytes)
	}
	if msg.Peer != b.Peer() {
		t.Fatalf("inbound peer handle does not match the sender's identity")
	}
}

func TestLoopbackMaxPayloadHintEnforced(t *testing.T) {
	a, _ := NewLoopbackPair(4, 8)
	ctx := context.Background()

	size, ok := a.MaxPayloadHint()
	if !ok || size != 8 {
		t.Fatalf("MaxPayloadHint = (%d, %v)", size, ok)
	}
	if res := a.Send(ctx, a.Peer(), []byte("way too long for the hint")); res != SendPermanentErr {
		t.Fatalf("expected SendPermanentErr for oversized payload, got %v", res)
	}
}

func TestLoopbackBackpressureReportsTemporaryErr(t *testing.T) {
	a, _ := NewLoopbackPair(1, 0)
	ctx := context.Background()

	if res := a.Send(ctx, a.Peer(), []byte("one")); res != SendOk {
		t.Fatalf("first send = %v", res)
	}
	if res := a.Send(ctx, a.Peer(), []byte("two")); res != SendTemporaryErr {
		t.Fatalf("expected SendTemporaryErr once the channel is full, got %v", res)
	}

	hs := a.HealthSnapshot()
	if hs.OutboundQueued != 1 || hs.OutboundSendOk != 1 || hs.OutboundSendErr != 1 {
		t.Fatalf("unexpected health snapshot: %+v", hs)
	}
}

func TestLoopbackRecvCancellation(t *testing.T) {
	a, _ := NewLoopbackPair(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Recv(ctx); err != ErrRecvCanceled {
		t.Fatalf("expected ErrRecvCanceled, got %v", err)
	}
}

func TestPeerZeroValue(t *testing.T) {
	var p Peer
	if !p.IsZero() {
		t.Fatalf("zero Peer should report IsZero")
	}
	if NewPeer().IsZero() {
		t.Fatalf("minted Peer should not report IsZero")
	}
}
