package policy

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// graphDocument is the canonical JSON shape of a trust graph export. Field
// order in the struct is the encode order; map-shaped fields are rebuilt as
// key-sorted slices before marshaling so two exports of an equivalent graph
// are byte-identical, the same "recursively sort map keys" approach used
// elsewhere in the corpus for deterministic JSON.
type graphDocument struct {
	Trusted      []string               `json:"trusted"`
	Muted        []string               `json:"muted"`
	Blocked      []string               `json:"blocked"`
	Endorsements []endorsementDocument  `json:"endorsements"`
}

type endorsementDocument struct {
	Endorser  string `json:"endorser"`
	Subject   string `json:"subject"`
	CreatedAt string `json:"created_at"`
}

func hexKey(k PubKey) string { return hex.EncodeToString(k[:]) }

func parseHexKey(s string) (PubKey, error) {
	var k PubKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != len(k) {
		return k, errShortKey
	}
	copy(k[:], b)
	return k, nil
}

var errShortKey = errors.New("policy: hex-encoded pubkey has the wrong length")

func sortedHexKeys(set map[PubKey]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, hexKey(k))
	}
	sort.Strings(out)
	return out
}

// ExportJSON serializes the trust graph as canonical JSON: keys are
// lower-case hex, collections are sorted, and re-exporting an imported
// document is guaranteed to round-trip to the same bytes.
func (s *Store) ExportJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := graphDocument{
		Trusted: sortedHexKeys(s.trusted),
		Muted:   sortedHexKeys(s.muted),
		Blocked: sortedHexKeys(s.blocked),
	}

	for endorser, bySubject := range s.endorsements {
		for subject, e := range bySubject {
			doc.Endorsements = append(doc.Endorsements, endorsementDocument{
				Endorser:  hexKey(endorser),
				Subject:   hexKey(subject),
				CreatedAt: e.createdAt.UTC().Format(time.RFC3339Nano),
			})
		}
	}
	sort.Slice(doc.Endorsements, func(i, j int) bool {
		if doc.Endorsements[i].Endorser != doc.Endorsements[j].Endorser {
			return doc.Endorsements[i].Endorser < doc.Endorsements[j].Endorser
		}
		return doc.Endorsements[i].Subject < doc.Endorsements[j].Subject
	})

	return json.Marshal(doc)
}

// ImportJSON replaces the store's contents with the graph encoded in data.
func (s *Store) ImportJSON(data []byte) error {
	var doc graphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	trusted := map[PubKey]bool{}
	for _, h := range doc.Trusted {
		k, err := parseHexKey(h)
		if err != nil {
			return err
		}
		trusted[k] = true
	}
	muted := map[PubKey]bool{}
	for _, h := range doc.Muted {
		k, err := parseHexKey(h)
		if err != nil {
			return err
		}
		muted[k] = true
	}
	blocked := map[PubKey]bool{}
	for _, h := range doc.Blocked {
		k, err := parseHexKey(h)
		if err != nil {
			return err
		}
		blocked[k] = true
	}
	endorsements := map[PubKey]map[PubKey]endorsement{}
	for _, ed := range doc.Endorsements {
		endorser, err := parseHexKey(ed.Endorser)
		if err != nil {
			return err
		}
		subject, err := parseHexKey(ed.Subject)
		if err != nil {
			return err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, ed.CreatedAt)
		if err != nil {
			return err
		}
		bySubject, ok := endorsements[endorser]
		if !ok {
			bySubject = map[PubKey]endorsement{}
			endorsements[endorser] = bySubject
		}
		bySubject[subject] = endorsement{createdAt: createdAt}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted = trusted
	s.muted = muted
	s.blocked = blocked
	s.endorsements = endorsements
	return nil
}
