package node

import (
	"errors"
	"sync"
	"time"

	"github.com/veil-project/veil/internal/primitives"
)

// PublishState is a node of the publish-entry state machine in §4.8.
type PublishState int

const (
	StateNew PublishState = iota
	StateInFlight
	StateEscalating
	StateDone
	StateFailed
	StateCanceled
)

func (s PublishState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInFlight:
		return "in_flight"
	case StateEscalating:
		return "escalating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "invalid"
	}
}

// ErrInvalidTransition is returned by PublishEntry methods that would
// violate the state machine in §4.8.
var ErrInvalidTransition = errors.New("node: invalid publish state transition")

// PublishEntry tracks one Object's delivery lifecycle: NEW -> IN_FLIGHT ->
// DONE (on ack_received) or ESCALATING -> IN_FLIGHT again (on
// deadline_exceeded) until attempts_exhausted -> FAILED, or CANCELED at any
// point before DONE/FAILED.
type PublishEntry struct {
	ObjectRoot primitives.Hash
	State      PublishState

	deadline    time.Time
	attempt     int
	maxAttempts int
	baseDeadline time.Duration
	deadlineCap  time.Duration

	unsentIndices []uint16
}

// NewPublishEntry creates a fresh NEW entry for objectRoot.
func NewPublishEntry(objectRoot primitives.Hash, ackDeadline, deadlineCap time.Duration, maxAttempts int) *PublishEntry {
	return &PublishEntry{
		ObjectRoot:   objectRoot,
		State:        StateNew,
		maxAttempts:  maxAttempts,
		baseDeadline: ackDeadline,
		deadlineCap:  deadlineCap,
	}
}

// Publish transitions NEW -> IN_FLIGHT and starts the first ack_deadline.
func (p *PublishEntry) Publish(now time.Time) error {
	if p.State != StateNew {
		return ErrInvalidTransition
	}
	p.State = StateInFlight
	p.attempt = 1
	p.deadline = now.Add(p.baseDeadline)
	return nil
}

// AckReceived transitions IN_FLIGHT or ESCALATING -> DONE.
func (p *PublishEntry) AckReceived() error {
	if p.State != StateInFlight && p.State != StateEscalating {
		return ErrInvalidTransition
	}
	p.State = StateDone
	return nil
}

// DeadlineExceeded passes IN_FLIGHT -> ESCALATING -> IN_FLIGHT, doubling the
// deadline up to deadlineCap, per §4.8 step 8. It reports whether the
// caller should retry (true) or the entry has exhausted max_attempts and
// moved to FAILED (false).
func (p *PublishEntry) DeadlineExceeded(now time.Time) (retry bool, err error) {
	if p.State != StateInFlight {
		return false, ErrInvalidTransition
	}
	if p.attempt >= p.maxAttempts {
		p.State = StateFailed
		return false, nil
	}
	p.State = StateEscalating
	p.attempt++
	next := p.baseDeadline << uint(p.attempt-1)
	if next > p.deadlineCap || next <= 0 {
		next = p.deadlineCap
	}
	p.deadline = now.Add(next)
	p.State = StateInFlight
	return true, nil
}

// Cancel transitions any non-terminal state to CANCELED.
func (p *PublishEntry) Cancel() error {
	switch p.State {
	case StateDone, StateFailed, StateCanceled:
		return ErrInvalidTransition
	}
	p.State = StateCanceled
	return nil
}

// DeadlinePassed reports whether now is at or past the current deadline
// while the entry is still in flight.
func (p *PublishEntry) DeadlinePassed(now time.Time) bool {
	return p.State == StateInFlight && !now.Before(p.deadline)
}

// Terminal reports whether the entry has reached DONE, FAILED, or CANCELED.
func (p *PublishEntry) Terminal() bool {
	switch p.State {
	case StateDone, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// PublishQueue holds every in-flight publish entry, keyed by object_root.
// The core tick goroutine is its only mutator, but Len is also read from the
// operator debug endpoint on a different goroutine, so access is
// mutex-guarded like the cache and inbox.
type PublishQueue struct {
	mu      sync.Mutex
	entries map[primitives.Hash]*PublishEntry
}

// NewPublishQueue builds an empty queue.
func NewPublishQueue() *PublishQueue {
	return &PublishQueue{entries: map[primitives.Hash]*PublishEntry{}}
}

// Add registers a new entry, replacing any existing one for the same root.
func (q *PublishQueue) Add(e *PublishEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[e.ObjectRoot] = e
}

// Get returns the entry for root, if present.
func (q *PublishQueue) Get(root primitives.Hash) (*PublishEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[root]
	return e, ok
}

// Remove drops root's entry, typically once it reaches a terminal state.
func (q *PublishQueue) Remove(root primitives.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, root)
}

// AdvanceDeadlines walks every IN_FLIGHT entry whose deadline has passed,
// advancing its retry state, and returns the roots that both exceeded their
// deadline AND need a fresh fanout (retry == true).
func (q *PublishQueue) AdvanceDeadlines(now time.Time) []primitives.Hash {
	q.mu.Lock()
	defer q.mu.Unlock()
	var needsRetry []primitives.Hash
	for root, e := range q.entries {
		if !e.DeadlinePassed(now) {
			continue
		}
		retry, _ := e.DeadlineExceeded(now)
		if retry {
			needsRetry = append(needsRetry, root)
		}
	}
	return needsRetry
}

// TerminalRoots returns every object_root whose entry has reached DONE,
// FAILED, or CANCELED.
func (q *PublishQueue) TerminalRoots() []primitives.Hash {
	q.mu.Lock()
	defer q.mu.Unlock()
	var roots []primitives.Hash
	for root, e := range q.entries {
		if e.Terminal() {
			roots = append(roots, root)
		}
	}
	return roots
}

// Len reports the number of tracked publish entries.
func (q *PublishQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
