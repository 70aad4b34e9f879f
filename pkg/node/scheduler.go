package node

import (
	"context"
	"sort"

	"github.com/veil-project/veil/pkg/transport"
)

// Lane pairs a transport adapter with the peers known to be reachable
// through it. The node owns zero or more lanes; §4.8's "multi-lane
// fanout" picks a fast lane and a fallback lane from this set every publish.
type Lane struct {
	Name    string
	Adapter transport.Adapter
	Peers   []transport.Peer
}

// healthScore normalizes a lane's cumulative send counters to [0, 1]: the
// fraction of attempted sends that succeeded. A lane with no send history
// yet scores optimistically at 1 so it gets a chance to prove itself.
func healthScore(hs transport.HealthSnapshot) float64 {
	total := hs.OutboundSendOk + hs.OutboundSendErr
	if total == 0 {
		return 1.0
	}
	return float64(hs.OutboundSendOk) / float64(total)
}

// rankedLane is a Lane annotated with its current health score, used only
// for sorting.
type rankedLane struct {
	lane  *Lane
	score float64
}

// rankLanes scores every lane and returns them sorted best-first.
func rankLanes(lanes []*Lane) []rankedLane {
	ranked := make([]rankedLane, len(lanes))
	for i, l := range lanes {
		ranked[i] = rankedLane{lane: l, score: healthScore(l.Adapter.HealthSnapshot())}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked
}

// FanoutPlan describes which shards go out on which lane, to which peers.
type FanoutPlan struct {
	FastLane     *Lane
	FastShards   [][]byte
	FastPeers    []transport.Peer
	FallbackLane *Lane
	FallbackShards [][]byte
	FallbackPeers  []transport.Peer
}

// PlanFanout selects a fast lane and a fallback lane from lanes (preferring
// lanes whose normalized health score is at least minHealthy, per §4.8)
// and assigns shards to each: fast lane gets k+2 shards to fastPeerCount
// peers, fallback lane gets 2 shards to fallbackPeerCount distinct peers.
// When fewer than two lanes are registered, both roles fall back to the
// single available lane.
func PlanFanout(lanes []*Lane, shards [][]byte, k int, fastPeerCount, fallbackPeerCount int, minHealthy float64) FanoutPlan {
	if len(lanes) == 0 {
		return FanoutPlan{}
	}
	ranked := rankLanes(lanes)

	fastIdx := 0
	for i, r := range ranked {
		if r.score >= minHealthy {
			fastIdx = i
			break
		}
	}
	fast := ranked[fastIdx].lane

	fallback := fast
	for _, r := range ranked {
		if r.lane != fast {
			fallback = r.lane
			break
		}
	}

	fastCount := k + 2
	if fastCount > len(shards) {
		fastCount = len(shards)
	}
	fallbackCount := 2
	if fallbackCount > len(shards)-fastCount {
		fallbackCount = len(shards) - fastCount
	}
	if fallbackCount < 0 {
		fallbackCount = 0
	}

	plan := FanoutPlan{
		FastLane:     fast,
		FastShards:   shards[:fastCount],
		FastPeers:    peerSubset(fast.Peers, fastPeerCount),
		FallbackLane: fallback,
		FallbackShards: shards[fastCount : fastCount+fallbackCount],
		FallbackPeers:  peerSubset(fallback.Peers, fallbackPeerCount),
	}
	return plan
}

func peerSubset(peers []transport.Peer, n int) []transport.Peer {
	if n > len(peers) {
		n = len(peers)
	}
	return append([]transport.Peer(nil), peers[:n]...)
}

// sendAll emits each shard in shards to every peer via lane, ignoring
// individual send failures: a dropped shard is recovered either by FEC
// redundancy (other shards still suffice) or by the ack-deadline retry that
// re-sends the root's cached shards.
func sendAll(lane *Lane, peers []transport.Peer, shards [][]byte) {
	if lane == nil {
		return
	}
	ctx := context.Background()
	for _, payload := range shards {
		for _, peer := range peers {
			lane.Adapter.Send(ctx, peer, payload)
		}
	}
}
