package fec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/veil-project/veil/internal/primitives"
)

const headerOverhead = 64

func TestSelectProfilePicksSmallestFitting(t *testing.T) {
	p, err := SelectProfile(1000, headerOverhead)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != MicroSmall.Name {
		t.Fatalf("expected MICRO-2K for tiny payload, got %s", p.Name)
	}

	p2, err := SelectProfile(Small.PayloadCapacity(headerOverhead), headerOverhead)
	if err != nil {
		t.Fatal(err)
	}
	if p2.Name != Small.Name {
		t.Fatalf("expected SMALL at its own capacity boundary, got %s", p2.Name)
	}
}

func TestSelectProfileTooLarge(t *testing.T) {
	_, err := SelectProfile(1<<30, headerOverhead)
	if err != ErrNoFittingProfile {
		t.Fatalf("expected ErrNoFittingProfile, got %v", err)
	}
}

func TestSelectProfileJitterUpgradesBucket(t *testing.T) {
	base, _ := SelectProfile(100, headerOverhead)
	jittered, _ := SelectProfileJittered(100, headerOverhead, true)
	if jittered.Bucket <= base.Bucket && jittered != base {
		t.Fatalf("jittered profile should be same or larger bucket")
	}
	unjittered, _ := SelectProfileJittered(100, headerOverhead, false)
	if unjittered != base {
		t.Fatalf("jitter=false must behave like SelectProfile")
	}
}

func encodeDecodeRoundTrip(t *testing.T, p Profile, hardened bool, dropCount int) {
	t.Helper()
	root := primitives.H([]byte("object-root-for-test"))
	payload := p.PayloadCapacity(headerOverhead)
	data := make([]byte, payload)
	if _, err := rand.New(rand.NewSource(1)).Read(data); err != nil {
		t.Fatal(err)
	}

	shards, err := Encode(p, hardened, root, data, headerOverhead)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(shards) != p.N {
		t.Fatalf("expected %d shards, got %d", p.N, len(shards))
	}

	// Drop dropCount shards and keep exactly k of the remainder, exercising
	// "any k unique indices suffice" (§8 prop 3).
	available := make(map[int][]byte, p.N)
	for i, s := range shards {
		available[i] = s
	}
	perm := rand.New(rand.NewSource(2)).Perm(p.N)
	for _, idx := range perm[:dropCount] {
		delete(available, idx)
	}
	for len(available) > p.K {
		for idx := range available {
			if len(available) == p.K {
				break
			}
			delete(available, idx)
		}
	}

	got, err := Decode(p, hardened, root, available, headerOverhead)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("decoded payload does not match source")
	}
}

func TestHardenedRoundTripAnyKIndices(t *testing.T) {
	encodeDecodeRoundTrip(t, Small, true, Small.N-Small.K)
}

func TestSystematicRoundTripAnyKIndices(t *testing.T) {
	encodeDecodeRoundTrip(t, LargeSmall, false, LargeSmall.N-LargeSmall.K)
}

func TestSystematicFirstKShardsArePlaintext(t *testing.T) {
	root := primitives.H([]byte("root"))
	payload := Small.PayloadCapacity(headerOverhead)
	data := bytes.Repeat([]byte{0x42}, payload)

	shards, err := Encode(Small, false, root, data, headerOverhead)
	if err != nil {
		t.Fatal(err)
	}
	blockSize := Small.ShardPayloadSize(headerOverhead)
	for i := 0; i < Small.K; i++ {
		want := data[i*blockSize : (i+1)*blockSize]
		if !bytes.Equal(shards[i], want) {
			t.Fatalf("systematic shard %d is not plaintext-identical to source block", i)
		}
	}
}

func TestHardenedFirstKShardsAreNotPlaintextIdentical(t *testing.T) {
	root := primitives.H([]byte("root-for-mixing"))
	payload := Small.PayloadCapacity(headerOverhead)
	data := bytes.Repeat([]byte{0x42}, payload)
	// vary bytes so blocks are distinguishable
	for i := range data {
		data[i] = byte(i)
	}

	shards, err := Encode(Small, true, root, data, headerOverhead)
	if err != nil {
		t.Fatal(err)
	}
	blockSize := Small.ShardPayloadSize(headerOverhead)
	identicalCount := 0
	for i := 0; i < Small.K; i++ {
		want := data[i*blockSize : (i+1)*blockSize]
		if bytes.Equal(shards[i], want) {
			identicalCount++
		}
	}
	if identicalCount == Small.K {
		t.Fatalf("hardened mode produced plaintext-identical source order")
	}
}

func TestDecodeInsufficientShards(t *testing.T) {
	root := primitives.H([]byte("root"))
	_, err := Decode(Small, true, root, map[int][]byte{0: {}, 1: {}}, headerOverhead)
	if err != ErrInsufficientShards {
		t.Fatalf("expected ErrInsufficientShards, got %v", err)
	}
}
