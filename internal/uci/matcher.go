package uci

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// MatchFunc reports whether an output line is the terminal line for a
// pending command.
type MatchFunc func(line string) bool

// LineEquals matches a line that is exactly token ("uciok", "readyok").
func LineEquals(token string) MatchFunc {
	return func(line string) bool { return line == token }
}

// FirstTokenIs matches a line whose first field is token ("bestmove ...").
func FirstTokenIs(token string) MatchFunc {
	return func(line string) bool {
		fields := strings.Fields(line)
		return len(fields) > 0 && fields[0] == token
	}
}

// Pending is one command awaiting its terminal line. The waiter blocks on
// Done; the matcher delivers exactly one value: nil on match, ErrTimeout or
// ErrEngineCrashed otherwise.
type Pending struct {
	Command string
	Line    string

	match MatchFunc
	done  chan error
	timer *time.Timer
}

// Done yields the resolution of the command.
func (p *Pending) Done() <-chan error { return p.done }

// Matcher correlates raw engine output lines to pending commands. The
// analysis gate guarantees at most one search-type command is outstanding at
// a time, so terminal-token matching cannot be ambiguous; the queue exists
// for overlapping non-mutating commands (identify during a search).
type Matcher struct {
	mu    sync.Mutex
	queue []*Pending
}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// Add registers a command awaiting a terminal line. The timeout timer starts
// immediately; if it fires before a match, the waiter receives ErrTimeout.
func (m *Matcher) Add(command string, match MatchFunc, timeout time.Duration) *Pending {
	p := &Pending{
		Command: command,
		match:   match,
		done:    make(chan error, 1),
	}
	m.mu.Lock()
	m.queue = append(m.queue, p)
	m.mu.Unlock()

	p.timer = time.AfterFunc(timeout, func() {
		if m.remove(p) {
			p.done <- fmt.Errorf("%w: no reply to %q within %s", ErrTimeout, command, timeout)
		}
	})
	return p
}

// Offer feeds one output line to the queue. The first pending command whose
// predicate matches is resolved and removed. Returns true when a command was
// resolved.
func (m *Matcher) Offer(line string) bool {
	m.mu.Lock()
	for i, p := range m.queue {
		if p.match(line) {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.mu.Unlock()
			p.timer.Stop()
			p.Line = line
			p.done <- nil
			return true
		}
	}
	m.mu.Unlock()
	return false
}

// RejectAll fails every pending command with err. Used on process exit so no
// waiter is left hanging.
func (m *Matcher) RejectAll(err error) {
	m.mu.Lock()
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, p := range queue {
		p.timer.Stop()
		p.done <- err
	}
}

// Cancel removes a pending command without resolving it. Returns true if the
// command was still queued.
func (m *Matcher) Cancel(p *Pending) bool {
	if m.remove(p) {
		p.timer.Stop()
		return true
	}
	return false
}

// PendingCount reports the number of unresolved commands.
func (m *Matcher) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Matcher) remove(p *Pending) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.queue {
		if cur == p {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}
