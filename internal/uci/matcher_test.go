package uci

import (
	"errors"
	"testing"
	"time"
)

func TestOfferResolvesFirstMatch(t *testing.T) {
	m := NewMatcher()
	p := m.Add("isready", LineEquals("readyok"), time.Second)

	if m.Offer("info string ignored") {
		t.Fatalf("non-terminal line must not resolve anything")
	}
	if !m.Offer("readyok") {
		t.Fatalf("terminal line not matched")
	}
	select {
	case err := <-p.Done():
		if err != nil {
			t.Fatalf("expected nil resolution, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pending command not resolved")
	}
	if p.Line != "readyok" {
		t.Fatalf("resolved line = %q", p.Line)
	}
	if m.PendingCount() != 0 {
		t.Fatalf("queue not drained: %d", m.PendingCount())
	}
}

func TestFirstTokenMatching(t *testing.T) {
	m := NewMatcher()
	p := m.Add("go depth 10", FirstTokenIs("bestmove"), time.Second)

	m.Offer("info depth 10 score cp 33 pv e2e4")
	if !m.Offer("bestmove e2e4 ponder e7e5") {
		t.Fatalf("bestmove line not matched")
	}
	if err := <-p.Done(); err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if p.Line != "bestmove e2e4 ponder e7e5" {
		t.Fatalf("resolved line = %q", p.Line)
	}
}

func TestTimeoutRejectsAndRemoves(t *testing.T) {
	m := NewMatcher()
	p := m.Add("isready", LineEquals("readyok"), 30*time.Millisecond)

	select {
	case err := <-p.Done():
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout never fired")
	}
	if m.PendingCount() != 0 {
		t.Fatalf("timed-out command still queued")
	}
	// A late terminal line must find nothing to resolve.
	if m.Offer("readyok") {
		t.Fatalf("late line resolved a removed command")
	}
}

func TestRejectAllFailsEveryWaiter(t *testing.T) {
	m := NewMatcher()
	a := m.Add("uci", LineEquals("uciok"), time.Minute)
	b := m.Add("go depth 14", FirstTokenIs("bestmove"), time.Minute)

	m.RejectAll(ErrEngineCrashed)

	for _, p := range []*Pending{a, b} {
		select {
		case err := <-p.Done():
			if !errors.Is(err, ErrEngineCrashed) {
				t.Fatalf("expected ErrEngineCrashed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter left hanging after crash")
		}
	}
	if m.PendingCount() != 0 {
		t.Fatalf("queue not cleared")
	}
}

func TestCancelRemovesWithoutResolving(t *testing.T) {
	m := NewMatcher()
	p := m.Add("isready", LineEquals("readyok"), time.Minute)

	if !m.Cancel(p) {
		t.Fatalf("cancel reported command missing")
	}
	if m.Cancel(p) {
		t.Fatalf("double cancel must report false")
	}
	select {
	case err := <-p.Done():
		t.Fatalf("cancelled command resolved with %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
