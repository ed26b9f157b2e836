package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInitTimeout = 5 * time.Second
	defaultQuitGrace   = 3 * time.Second

	// How long to wait for the late bestmove after sending stop to a
	// timed-out search. The line must be consumed before the next analysis
	// starts capturing.
	stopDrainTimeout = 2 * time.Second
)

// State is the lifecycle state of the supervised engine process.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateAwaitingReady
	StateReady
	StateBusy
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAwaitingReady:
		return "awaiting-ready"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EngineOption is one setoption name/value pair written during the handshake.
type EngineOption struct {
	Name  string
	Value string
}

type Config struct {
	BinaryPath   string
	Threads      int
	HashMB       int
	ExtraOptions []EngineOption
	InitTimeout  time.Duration
	QuitGrace    time.Duration
}

// SearchParams describes one locked position+go conversation.
type SearchParams struct {
	FEN        string
	Moves      []string
	Depth      int
	MultiPV    int
	MoveTimeMs int
	Timeout    time.Duration
}

// Supervisor owns the engine subprocess and its byte streams. It is the only
// component allowed to write to the engine's stdin. A reader goroutine feeds
// every output line to the matcher and, during an analysis, to the capture
// buffer.
type Supervisor struct {
	cfg     Config
	log     *zap.Logger
	matcher *Matcher

	mu          sync.Mutex
	state       State
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	exited      chan struct{}
	engineID    string
	lastMultiPV int

	wmu sync.Mutex

	capMu     sync.Mutex
	capturing bool
	captured  []string
}

func NewSupervisor(cfg Config, log *zap.Logger) *Supervisor {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.HashMB <= 0 {
		cfg.HashMB = 128
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = defaultInitTimeout
	}
	if cfg.QuitGrace <= 0 {
		cfg.QuitGrace = defaultQuitGrace
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		cfg:     cfg,
		log:     log,
		matcher: NewMatcher(),
		state:   StateUninitialized,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the process is alive and past its handshake.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady || s.state == StateBusy
}

// EngineID returns the engine's self-reported identification string.
func (s *Supervisor) EngineID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineID
}

// Start spawns the engine and runs the handshake: uci→uciok, isready→readyok,
// then the option set (no reply defined for setoption). Safe to call again
// after a crash; a Terminated supervisor re-initializes.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady, StateBusy:
		s.mu.Unlock()
		return nil
	case StateInitializing, StateAwaitingReady, StateTerminating:
		s.mu.Unlock()
		return fmt.Errorf("engine is %s", s.state)
	}
	s.state = StateInitializing
	s.mu.Unlock()

	cmd := exec.Command(s.cfg.BinaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(StateTerminated)
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		s.setState(StateTerminated)
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		s.setState(StateTerminated)
		return &SpawnError{Path: s.cfg.BinaryPath, Err: err}
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.exited = make(chan struct{})
	s.lastMultiPV = 0
	exited := s.exited
	s.mu.Unlock()

	go s.readLoop(cmd, stdout, exited)

	s.log.Info("engine started", zap.String("binary", s.cfg.BinaryPath), zap.Int("pid", cmd.Process.Pid))

	if err := s.await(ctx, "uci", LineEquals("uciok"), s.cfg.InitTimeout); err != nil {
		s.abortStart(exited)
		return fmt.Errorf("engine identify: %w", err)
	}
	s.setState(StateAwaitingReady)
	if err := s.await(ctx, "isready", LineEquals("readyok"), s.cfg.InitTimeout); err != nil {
		s.abortStart(exited)
		return fmt.Errorf("engine readiness: %w", err)
	}

	options := append([]EngineOption{
		{Name: "Threads", Value: strconv.Itoa(s.cfg.Threads)},
		{Name: "Hash", Value: strconv.Itoa(s.cfg.HashMB)},
	}, s.cfg.ExtraOptions...)
	for _, opt := range options {
		if err := s.send(fmt.Sprintf("setoption name %s value %s", opt.Name, opt.Value)); err != nil {
			s.abortStart(exited)
			return fmt.Errorf("apply options: %w", err)
		}
	}

	s.setState(StateReady)
	s.log.Info("engine ready", zap.String("id", s.EngineID()))
	return nil
}

// Identify performs a uci→uciok round trip and returns the identification
// string. It does not mutate analysis state and needs no gate.
func (s *Supervisor) Identify(ctx context.Context) (string, error) {
	if err := s.await(ctx, "uci", LineEquals("uciok"), s.cfg.InitTimeout); err != nil {
		return "", err
	}
	return s.EngineID(), nil
}

// Analyze runs one position+go conversation and returns the raw captured
// lines. The caller must hold the analysis gate; Busy is only ever entered
// under it. On timeout the in-flight search is stopped and its late bestmove
// drained before the error is returned.
func (s *Supervisor) Analyze(ctx context.Context, p SearchParams) ([]string, error) {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("engine not ready (state=%s)", state)
	}
	s.state = StateBusy
	multiPVChanged := p.MultiPV > 0 && p.MultiPV != s.lastMultiPV
	s.mu.Unlock()
	defer s.exitBusy()

	if multiPVChanged {
		if err := s.send("setoption name MultiPV value " + strconv.Itoa(p.MultiPV)); err != nil {
			return nil, fmt.Errorf("set multipv: %w", err)
		}
		s.mu.Lock()
		s.lastMultiPV = p.MultiPV
		s.mu.Unlock()
	}

	s.beginCapture()
	if err := s.send(positionCommand(p.FEN, p.Moves)); err != nil {
		s.endCapture()
		return nil, fmt.Errorf("send position: %w", err)
	}

	err := s.await(ctx, goCommand(p.Depth, p.MoveTimeMs), FirstTokenIs("bestmove"), p.Timeout)
	lines := s.endCapture()
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			s.interruptSearch()
		}
		return nil, err
	}
	return lines, nil
}

// Terminate sends quit best-effort, then force-kills after the grace period.
func (s *Supervisor) Terminate() error {
	s.mu.Lock()
	if s.cmd == nil || s.state == StateTerminated || s.state == StateUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.state = StateTerminating
	exited := s.exited
	s.mu.Unlock()

	_ = s.send("quit")

	select {
	case <-exited:
	case <-time.After(s.cfg.QuitGrace):
		s.log.Warn("engine did not quit in time, killing")
		s.forceKill()
		<-exited
	}
	return nil
}

func (s *Supervisor) readLoop(cmd *exec.Cmd, stdout io.Reader, exited chan struct{}) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "id name "); ok {
			s.mu.Lock()
			s.engineID = rest
			s.mu.Unlock()
		}
		s.capture(line)
		s.matcher.Offer(line)
	}

	waitErr := cmd.Wait()

	s.mu.Lock()
	prev := s.state
	s.state = StateTerminated
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	s.mu.Unlock()
	close(exited)

	if prev == StateTerminating {
		s.log.Info("engine terminated")
	} else {
		s.log.Warn("engine process exited unexpectedly",
			zap.String("prev_state", prev.String()), zap.Error(waitErr))
	}
	// Nobody may be left blocked on a dead process.
	s.matcher.RejectAll(ErrEngineCrashed)
}

// await registers a pending command, writes it, and blocks until the matcher
// resolves it, the per-command timer fires, or ctx is done.
func (s *Supervisor) await(ctx context.Context, command string, match MatchFunc, timeout time.Duration) error {
	p := s.matcher.Add(command, match, timeout)
	if err := s.send(command); err != nil {
		s.matcher.Cancel(p)
		return err
	}
	select {
	case err := <-p.Done():
		return err
	case <-ctx.Done():
		s.matcher.Cancel(p)
		return ctx.Err()
	}
}

// interruptSearch halts an abandoned search and consumes its late bestmove so
// stale output cannot leak into the next analysis's capture buffer.
func (s *Supervisor) interruptSearch() {
	p := s.matcher.Add("stop", FirstTokenIs("bestmove"), stopDrainTimeout)
	if err := s.send("stop"); err != nil {
		s.matcher.Cancel(p)
		return
	}
	if err := <-p.Done(); err != nil {
		s.log.Warn("stale bestmove not drained after stop", zap.Error(err))
	}
}

func (s *Supervisor) send(command string) error {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return errors.New("engine stdin not available")
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := io.WriteString(stdin, command+"\n")
	if err != nil {
		return fmt.Errorf("write %q: %w", command, err)
	}
	return nil
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

func (s *Supervisor) exitBusy() {
	s.mu.Lock()
	if s.state == StateBusy {
		s.state = StateReady
	}
	s.mu.Unlock()
}

// abortStart kills a half-initialized process and waits for the read loop to
// finish so the supervisor lands in Terminated before Start returns.
func (s *Supervisor) abortStart(exited chan struct{}) {
	s.forceKill()
	<-exited
}

func (s *Supervisor) forceKill() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func (s *Supervisor) beginCapture() {
	s.capMu.Lock()
	s.capturing = true
	s.captured = nil
	s.capMu.Unlock()
}

func (s *Supervisor) endCapture() []string {
	s.capMu.Lock()
	lines := s.captured
	s.capturing = false
	s.captured = nil
	s.capMu.Unlock()
	return lines
}

func (s *Supervisor) capture(line string) {
	s.capMu.Lock()
	if s.capturing {
		s.captured = append(s.captured, line)
	}
	s.capMu.Unlock()
}

func positionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

func goCommand(depth, moveTimeMs int) string {
	if moveTimeMs > 0 {
		return "go movetime " + strconv.Itoa(moveTimeMs)
	}
	return "go depth " + strconv.Itoa(depth)
}
