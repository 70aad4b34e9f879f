package node

import "testing"

func TestReplicaEstimatorUnseenDefaultsToOne(t *testing.T) {
	r := newReplicaEstimator(0.3, 0.9)
	if got := r.Estimate(hash(1)); got != 1 {
		t.Fatalf("Estimate(unseen) = %v, want 1", got)
	}
}

func TestReplicaEstimatorGrowsWithRepeatedObservations(t *testing.T) {
	r := newReplicaEstimator(0.3, 0.9)
	first := r.Observe(hash(1))
	second := r.Observe(hash(1))
	third := r.Observe(hash(1))

	if !(first < second && second < third) {
		t.Fatalf("estimate should strictly increase with repeated sightings: %v, %v, %v", first, second, third)
	}
}

func TestReplicaEstimatorDecayTickRelaxesAndEvicts(t *testing.T) {
	r := newReplicaEstimator(0.3, 0.5)
	r.Observe(hash(1))
	r.Observe(hash(1))
	before := r.Estimate(hash(1))

	for i := 0; i < 10; i++ {
		r.DecayTick()
	}

	after := r.Estimate(hash(1))
	if after >= before {
		t.Fatalf("decay should relax the estimate down, got before=%v after=%v", before, after)
	}
	// Enough decay ticks at half-life 0.5 must drop the entry below the floor
	// and evict it, after which Estimate falls back to the unseen default.
	if after != 1 {
		t.Fatalf("estimate should have decayed below the floor and reset to 1, got %v", after)
	}
}
