package node

import (
	"testing"

	"github.com/veil-project/veil/pkg/transport"
)

// NewLoopbackLane builds a Lane backed by a fresh LoopbackAdapter pair,
// named name, with a single reachable peer (the pair's other side). depth=0
// gives the adapter no internal buffer, so an unread Send always reports
// SendTemporaryErr immediately - useful for tests that want to starve a
// lane's health score without a receiver goroutine.
func NewLoopbackLane(t *testing.T, name string) *Lane {
	t.Helper()
	a, _ := transport.NewLoopbackPair(0, 0)
	return &Lane{Name: name, Adapter: a, Peers: []transport.Peer{a.Peer()}}
}
