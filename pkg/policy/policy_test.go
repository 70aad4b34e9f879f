package policy

import (
	"testing"
	"time"
)

func key(b byte) PubKey {
	var k PubKey
	k[0] = b
	return k
}

func TestExplicitOverridesWinClassification(t *testing.T) {
	s := NewStore(2, 30*24*time.Hour)
	now := time.Now()
	subject := key(1)

	if tier := s.Classify(subject, now); tier != Unknown {
		t.Fatalf("fresh subject should be Unknown, got %s", tier)
	}
	s.Follow(subject)
	if tier := s.Classify(subject, now); tier != Trusted {
		t.Fatalf("followed subject should be Trusted, got %s", tier)
	}
	s.Block(subject)
	if tier := s.Classify(subject, now); tier != Blocked {
		t.Fatalf("blocked subject should be Blocked, got %s", tier)
	}
}

func TestKnownRequiresMinDistinctTrustedEndorsers(t *testing.T) {
	s := NewStore(2, 30*24*time.Hour)
	now := time.Now()
	subject := key(9)
	e1, e2 := key(1), key(2)
	s.Follow(e1)
	s.Follow(e2)

	s.Endorse(e1, subject, now)
	if tier := s.Classify(subject, now); tier != Unknown {
		t.Fatalf("single endorser should stay Unknown, got %s", tier)
	}
	s.Endorse(e2, subject, now)
	if tier := s.Classify(subject, now); tier != Known {
		t.Fatalf("two distinct trusted endorsers should reach Known, got %s", tier)
	}
}

func TestScorePublisherDecaysWithAge(t *testing.T) {
	s := NewStore(2, 24*time.Hour)
	endorser := key(1)
	subject := key(2)
	s.Follow(endorser)

	now := time.Now()
	s.Endorse(endorser, subject, now.Add(-48*time.Hour))
	scoreOld, expOld := s.ScorePublisher(subject, now)

	s2 := NewStore(2, 24*time.Hour)
	s2.Follow(endorser)
	s2.Endorse(endorser, subject, now)
	scoreFresh, expFresh := s2.ScorePublisher(subject, now)

	if scoreFresh <= scoreOld {
		t.Fatalf("fresher endorsement should score higher: fresh=%f old=%f", scoreFresh, scoreOld)
	}
	if expFresh.RecencyDecay <= expOld.RecencyDecay {
		t.Fatalf("fresh recency decay should exceed aged decay")
	}
}

func TestScorePublisherOverrideShortCircuits(t *testing.T) {
	s := NewStore(2, 30*24*time.Hour)
	subject := key(3)
	s.Block(subject)
	score, exp := s.ScorePublisher(subject, time.Now())
	if score != 0 || exp.Override != "blocked" {
		t.Fatalf("blocked subject must score 0 with override recorded, got score=%f exp=%+v", score, exp)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewStore(2, 30*24*time.Hour)
	now := time.Now().UTC().Truncate(time.Millisecond)
	a, b, c := key(1), key(2), key(3)
	s.Follow(a)
	s.Mute(b)
	s.Block(c)
	s.Endorse(a, b, now)

	data, err := s.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	restored := NewStore(2, 30*24*time.Hour)
	if err := restored.ImportJSON(data); err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}

	data2, err := restored.ExportJSON()
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if string(data) != string(data2) {
		t.Fatalf("export/import/export did not round-trip byte-identically:\n%s\nvs\n%s", data, data2)
	}
}

func TestQuotaMapsTiersToShares(t *testing.T) {
	q, err := Quota(Trusted, 0.70, 0.25, 0.05)
	if err != nil || q != 0.70 {
		t.Fatalf("Quota(Trusted) = %f, %v", q, err)
	}
	if q, _ := Quota(Muted, 0.70, 0.25, 0.05); q != 0 {
		t.Fatalf("Quota(Muted) should be 0, got %f", q)
	}
}
