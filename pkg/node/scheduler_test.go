package node

import (
	"context"
	"testing"

	"github.com/veil-project/veil/pkg/transport"
)

func TestHealthScoreOptimisticWithNoHistory(t *testing.T) {
	if got := healthScore(transport.HealthSnapshot{}); got != 1.0 {
		t.Fatalf("healthScore(no history) = %v, want 1.0", got)
	}
}

func TestHealthScoreReflectsSendFailureRate(t *testing.T) {
	hs := transport.HealthSnapshot{OutboundSendOk: 3, OutboundSendErr: 1}
	if got := healthScore(hs); got != 0.75 {
		t.Fatalf("healthScore = %v, want 0.75", got)
	}
}

func TestRankLanesSortsBestFirst(t *testing.T) {
	a, b := NewLoopbackLane(t, "a"), NewLoopbackLane(t, "b")
	// Starve lane a's health by recording failures through its adapter.
	la := a.Adapter.(*transport.LoopbackAdapter)
	for i := 0; i < 3; i++ {
		la.Send(context.Background(), la.Peer(), make([]byte, 0))
	}

	ranked := rankLanes([]*Lane{a, b})
	if ranked[0].lane != b {
		t.Fatalf("expected the untouched lane to rank first")
	}
}

func TestPlanFanoutAssignsFastAndFallbackShards(t *testing.T) {
	a, b := NewLoopbackLane(t, "a"), NewLoopbackLane(t, "b")
	shards := make([][]byte, 8)
	for i := range shards {
		shards[i] = []byte{byte(i)}
	}

	plan := PlanFanout([]*Lane{a, b}, shards, 4, 2, 1, 0.2)
	if plan.FastLane == nil || plan.FallbackLane == nil {
		t.Fatalf("both fast and fallback lanes must be assigned")
	}
	if plan.FastLane == plan.FallbackLane {
		t.Fatalf("fast and fallback should be distinct when two lanes exist")
	}
	if len(plan.FastShards) != 6 { // k+2 = 4+2
		t.Fatalf("FastShards = %d, want 6", len(plan.FastShards))
	}
	if len(plan.FallbackShards) != 2 {
		t.Fatalf("FallbackShards = %d, want 2", len(plan.FallbackShards))
	}
}

func TestPlanFanoutSingleLaneUsesItForBothRoles(t *testing.T) {
	a := NewLoopbackLane(t, "a")
	shards := [][]byte{{0}, {1}, {2}}

	plan := PlanFanout([]*Lane{a}, shards, 2, 1, 1, 0.2)
	if plan.FastLane != a || plan.FallbackLane != a {
		t.Fatalf("with a single lane, both roles must fall back to it")
	}
}
