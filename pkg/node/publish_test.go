package node

import (
	"testing"
	"time"
)

func TestPublishEntryHappyPath(t *testing.T) {
	e := NewPublishEntry(hash(1), time.Second, 10*time.Second, 4)
	if e.State != StateNew {
		t.Fatalf("new entry must start in StateNew")
	}
	now := time.Now()
	if err := e.Publish(now); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if e.State != StateInFlight {
		t.Fatalf("State = %v, want StateInFlight", e.State)
	}
	if err := e.AckReceived(); err != nil {
		t.Fatalf("AckReceived: %v", err)
	}
	if e.State != StateDone || !e.Terminal() {
		t.Fatalf("State = %v, want StateDone/terminal", e.State)
	}
}

func TestPublishEntryRejectsDoublePublish(t *testing.T) {
	e := NewPublishEntry(hash(1), time.Second, 10*time.Second, 4)
	now := time.Now()
	if err := e.Publish(now); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := e.Publish(now); err != ErrInvalidTransition {
		t.Fatalf("second Publish should fail with ErrInvalidTransition, got %v", err)
	}
}

func TestPublishEntryDeadlineExceededEscalatesThenFails(t *testing.T) {
	e := NewPublishEntry(hash(1), time.Second, 4*time.Second, 2)
	now := time.Now()
	if err := e.Publish(now); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	retry, err := e.DeadlineExceeded(now.Add(time.Second))
	if err != nil || !retry {
		t.Fatalf("first DeadlineExceeded should retry: retry=%v err=%v", retry, err)
	}
	if e.State != StateInFlight {
		t.Fatalf("entry should be back in flight after a successful retry, got %v", e.State)
	}

	retry, err = e.DeadlineExceeded(now.Add(5 * time.Second))
	if err != nil {
		t.Fatalf("DeadlineExceeded: %v", err)
	}
	if retry {
		t.Fatalf("max_attempts exhausted should not request another retry")
	}
	if e.State != StateFailed {
		t.Fatalf("State = %v, want StateFailed", e.State)
	}
}

func TestPublishEntryDeadlineDoublesCappedAtDeadlineCap(t *testing.T) {
	e := NewPublishEntry(hash(1), time.Second, 3*time.Second, 10)
	now := time.Now()
	e.Publish(now)

	firstRetryAt := now.Add(time.Second)
	e.DeadlineExceeded(firstRetryAt) // doubles 1s -> 2s, within cap
	if got := e.deadline.Sub(firstRetryAt); got != 2*time.Second {
		t.Fatalf("second deadline offset = %v, want 2s", got)
	}

	secondRetryAt := e.deadline
	e.DeadlineExceeded(secondRetryAt) // would double to 4s, capped at 3s
	if got := e.deadline.Sub(secondRetryAt); got != 3*time.Second {
		t.Fatalf("deadline offset = %v, want deadlineCap 3s", got)
	}
}

func TestPublishEntryCancelFromNonTerminalStates(t *testing.T) {
	e := NewPublishEntry(hash(1), time.Second, 10*time.Second, 4)
	if err := e.Cancel(); err != nil {
		t.Fatalf("Cancel from NEW: %v", err)
	}
	if !e.Terminal() {
		t.Fatalf("canceled entry must be terminal")
	}
	if err := e.Cancel(); err != ErrInvalidTransition {
		t.Fatalf("re-canceling a terminal entry must fail")
	}
}

func TestPublishQueueAdvanceDeadlinesReturnsRetryRoots(t *testing.T) {
	q := NewPublishQueue()
	e := NewPublishEntry(hash(1), time.Second, 10*time.Second, 4)
	now := time.Now()
	e.Publish(now)
	q.Add(e)

	roots := q.AdvanceDeadlines(now.Add(2 * time.Second))
	if len(roots) != 1 || roots[0] != e.ObjectRoot {
		t.Fatalf("AdvanceDeadlines = %v", roots)
	}

	// With the deadline not yet passed, nothing more is returned.
	roots = q.AdvanceDeadlines(now.Add(2 * time.Second))
	if len(roots) != 0 {
		t.Fatalf("AdvanceDeadlines should be quiet before the next deadline, got %v", roots)
	}
}
