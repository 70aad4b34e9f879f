package tagderive

import (
	"testing"
	"time"
)

func TestFeedTagDeterministic(t *testing.T) {
	pub := []byte("publisher-key-00000000000000000")
	a := FeedTag(pub, 32)
	b := FeedTag(pub, 32)
	if a != b {
		t.Fatalf("FeedTag not deterministic")
	}
	if c := FeedTag(pub, 33); c == a {
		t.Fatalf("FeedTag collided across namespaces")
	}
}

func TestRVTagDeterministic(t *testing.T) {
	recipient := []byte("recipient-key-0000000000000000")
	a := RVTag(recipient, 19000, 40)
	b := RVTag(recipient, 19000, 40)
	if a != b {
		t.Fatalf("RVTag not deterministic")
	}
	if c := RVTag(recipient, 19001, 40); c == a {
		t.Fatalf("RVTag did not rotate across epochs")
	}
}

func TestEpochFloorDivision(t *testing.T) {
	now := time.Unix(86400*5+10, 0)
	if got := Epoch(now, DefaultEpochSeconds); got != 5 {
		t.Fatalf("Epoch = %d, want 5", got)
	}
}

func TestAcceptableRVTagsIncludesCurrentEpoch(t *testing.T) {
	recipient := []byte("recipient-key-0000000000000000")
	now := time.Unix(86400*5+10, 0)
	current := RVTag(recipient, Epoch(now, DefaultEpochSeconds), 1)

	tags := AcceptableRVTags(recipient, 1, now, DefaultEpochSeconds, DefaultOverlapSeconds)
	found := false
	for _, tg := range tags {
		if tg == current {
			found = true
		}
	}
	if !found {
		t.Fatalf("AcceptableRVTags missing current epoch tag")
	}
}

func TestAcceptableRVTagsNearBoundary(t *testing.T) {
	recipient := []byte("recipient-key-0000000000000000")
	// One second before an epoch boundary: the overlap window should pull in
	// the next epoch's tag too.
	boundary := time.Unix(86400*5, 0)
	now := boundary.Add(-1 * time.Second)

	next := RVTag(recipient, 5, 1)
	tags := AcceptableRVTags(recipient, 1, now, DefaultEpochSeconds, DefaultOverlapSeconds)
	found := false
	for _, tg := range tags {
		if tg == next {
			found = true
		}
	}
	if !found {
		t.Fatalf("AcceptableRVTags did not include upcoming epoch near boundary")
	}
}

func TestNormalizeChannelName(t *testing.T) {
	if got := NormalizeChannelName("  General-Chat \n"); got != "general-chat" {
		t.Fatalf("NormalizeChannelName = %q", got)
	}
}

func TestChannelTagStable(t *testing.T) {
	a := ChannelTag("  General ", 40)
	b := ChannelTag("general", 40)
	if a != b {
		t.Fatalf("ChannelTag not normalization-stable")
	}
}
