package policy

import (
	"errors"
	"math"
	"sync"
	"time"
)

// PubKey identifies a publisher by their 32-byte Ed25519 (or Schnorr x-only)
// public key.
type PubKey [32]byte

// endorsement records that Endorser vouched for Subject at CreatedAt.
// ScorePublisher decays an endorsement's weight with its age and looks at
// most two hops deep; Classify ignores endorsement age.
type endorsement struct {
	createdAt time.Time
}

// Store is the in-memory web-of-trust graph: explicit overrides plus an
// endorsement graph. Classify derives the Known tier from direct (depth-1)
// endorsements by trusted keys only; second-hop endorsements and endorsement
// age affect ScorePublisher but not the tier.
type Store struct {
	mu sync.RWMutex

	trusted map[PubKey]bool
	muted   map[PubKey]bool
	blocked map[PubKey]bool

	// endorsements[endorser][subject] = when the endorsement was made.
	endorsements map[PubKey]map[PubKey]endorsement

	knownEndorserMin int
	decayHalfLife    time.Duration

	now func() time.Time
}

// NewStore builds an empty trust graph. knownEndorserMin is the minimum
// number of distinct depth-1 trusted endorsers required to reach the Known
// tier (§4.10 default: 2). decayHalfLife controls how quickly an
// endorsement's contribution to score_publisher fades.
func NewStore(knownEndorserMin int, decayHalfLife time.Duration) *Store {
	if knownEndorserMin <= 0 {
		knownEndorserMin = 2
	}
	if decayHalfLife <= 0 {
		decayHalfLife = 30 * 24 * time.Hour
	}
	return &Store{
		trusted:          map[PubKey]bool{},
		muted:            map[PubKey]bool{},
		blocked:          map[PubKey]bool{},
		endorsements:     map[PubKey]map[PubKey]endorsement{},
		knownEndorserMin: knownEndorserMin,
		decayHalfLife:    decayHalfLife,
		now:              time.Now,
	}
}

// Follow marks subject as explicitly Trusted, clearing any Muted/Blocked
// override.
func (s *Store) Follow(subject PubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[subject] = true
	delete(s.muted, subject)
	delete(s.blocked, subject)
}

// Unfollow removes an explicit Trusted override, leaving the subject's tier
// to fall back to endorsement-derived classification.
func (s *Store) Unfollow(subject PubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trusted, subject)
}

// Mute marks subject as explicitly Muted.
func (s *Store) Mute(subject PubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted[subject] = true
	delete(s.trusted, subject)
	delete(s.blocked, subject)
}

// Block marks subject as explicitly Blocked, the only tier §4.10
// forbids ever caching or forwarding.
func (s *Store) Block(subject PubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[subject] = true
	delete(s.trusted, subject)
	delete(s.muted, subject)
}

// Unblock clears an explicit Blocked override.
func (s *Store) Unblock(subject PubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, subject)
}

// Endorse records that endorser vouches for subject as of now. Only
// endorsements from keys the store currently considers Trusted (explicitly
// or via a prior endorsement chain) count toward second-hop scoring; the
// graph itself accepts any endorsement and lets scoring decide its weight.
func (s *Store) Endorse(endorser, subject PubKey, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySubject, ok := s.endorsements[endorser]
	if !ok {
		bySubject = map[PubKey]endorsement{}
		s.endorsements[endorser] = bySubject
	}
	bySubject[subject] = endorsement{createdAt: now}
}

// Revoke removes a previously recorded endorsement.
func (s *Store) Revoke(endorser, subject PubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bySubject, ok := s.endorsements[endorser]; ok {
		delete(bySubject, subject)
	}
}

func (s *Store) decay(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	halfLives := age.Seconds() / s.decayHalfLife.Seconds()
	return math.Exp2(-halfLives)
}

// Explainability enumerates the weighted contributions behind a
// score_publisher call, per §4.10's "explainability record".
type Explainability struct {
	DirectEndorsers   int
	DirectScore       float64
	SecondHopEndorsers int
	SecondHopScore    float64
	RecencyDecay      float64
	Override          string // "", "trusted", "muted", "blocked"
	Total             float64
}

const (
	weightDirect    = 0.6
	weightSecondHop = 0.25
	weightRecency   = 0.15
)

// Classify returns subject's current Tier. Explicit overrides always win;
// otherwise subjects with at least knownEndorserMin distinct, still-trusted
// depth-1 endorsers are Known, everyone else is Unknown.
func (s *Store) Classify(subject PubKey, now time.Time) Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classifyLocked(subject, now)
}

func (s *Store) classifyLocked(subject PubKey, now time.Time) Tier {
	if s.blocked[subject] {
		return Blocked
	}
	if s.muted[subject] {
		return Muted
	}
	if s.trusted[subject] {
		return Trusted
	}
	if s.directEndorserCount(subject) >= s.knownEndorserMin {
		return Known
	}
	return Unknown
}

func (s *Store) directEndorserCount(subject PubKey) int {
	count := 0
	for endorser, bySubject := range s.endorsements {
		if !s.trusted[endorser] {
			continue
		}
		if _, ok := bySubject[subject]; ok {
			count++
		}
	}
	return count
}

// ScorePublisher computes a deterministic score in [0, 1] from direct
// endorsement count, second-hop endorsement count (endorsers of endorsers,
// depth 2), recency decay of the most recent endorsement, and explicit
// overrides, alongside the explainability record §4.10 requires.
func (s *Store) ScorePublisher(subject PubKey, now time.Time) (float64, Explainability) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exp Explainability

	if s.blocked[subject] {
		exp.Override = "blocked"
		return 0, exp
	}
	if s.muted[subject] {
		exp.Override = "muted"
		return 0, exp
	}
	if s.trusted[subject] {
		exp.Override = "trusted"
		exp.Total = 1
		return 1, exp
	}

	directEndorsers := 0
	secondHopEndorsers := 0
	var mostRecent time.Time
	seenSecondHop := map[PubKey]bool{}

	for endorser, bySubject := range s.endorsements {
		e, ok := bySubject[subject]
		if !ok {
			continue
		}
		if s.trusted[endorser] {
			directEndorsers++
			if e.createdAt.After(mostRecent) {
				mostRecent = e.createdAt
			}
			continue
		}
		// endorser is not itself Trusted — check if a Trusted key endorses
		// *this* endorser, making subject reachable at depth 2.
		for grandEndorser, grandSubjects := range s.endorsements {
			if !s.trusted[grandEndorser] {
				continue
			}
			if _, reached := grandSubjects[endorser]; reached && !seenSecondHop[endorser] {
				seenSecondHop[endorser] = true
				secondHopEndorsers++
				if e.createdAt.After(mostRecent) {
					mostRecent = e.createdAt
				}
			}
		}
	}

	decay := 1.0
	if !mostRecent.IsZero() {
		decay = s.decay(now.Sub(mostRecent))
	}

	directScore := 1 - math.Exp2(-float64(directEndorsers)/float64(s.knownEndorserMin))
	secondHopScore := 1 - math.Exp2(-float64(secondHopEndorsers)/float64(2*s.knownEndorserMin))

	exp.DirectEndorsers = directEndorsers
	exp.DirectScore = directScore
	exp.SecondHopEndorsers = secondHopEndorsers
	exp.SecondHopScore = secondHopScore
	exp.RecencyDecay = decay

	total := weightDirect*directScore + weightSecondHop*secondHopScore + weightRecency*decay
	exp.Total = total
	return total, exp
}

// ErrUnknownTier is returned by Quota for a Tier value outside the five
// named tiers.
var ErrUnknownTier = errors.New("policy: unrecognized tier")

// Quota returns the fraction of the forwarding/cache budget tier is
// entitled to, given the configured trusted/known/unknown shares (§4.10's
// default 70/25/5). Muted and Blocked get 0. The unknown-budget floor is not
// applied here; pkg/node uses config's UnknownFloor for roots whose
// publisher it has not yet learned.
func Quota(t Tier, trusted, known, unknown float64) (float64, error) {
	switch t {
	case Trusted:
		return trusted, nil
	case Known:
		return known, nil
	case Unknown:
		return unknown, nil
	case Muted, Blocked:
		return 0, nil
	default:
		return 0, ErrUnknownTier
	}
}
