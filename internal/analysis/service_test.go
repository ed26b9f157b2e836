package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/engine-companion/internal/cache"
	"github.com/park285/engine-companion/internal/enginetest"
	"github.com/park285/engine-companion/internal/uci"
	"github.com/park285/engine-companion/pkg/enginedto"
)

var movePattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][nbrq]?$`)

func newTestService(t *testing.T, binary string) *Service {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts need a POSIX shell")
	}
	sup := uci.NewSupervisor(uci.Config{
		BinaryPath:  binary,
		Threads:     1,
		HashMB:      16,
		InitTimeout: 3 * time.Second,
		QuitGrace:   time.Second,
	}, nil)
	svc := NewService(sup, nil, nil)
	svc.SearchFloor = 5 * time.Second
	t.Cleanup(svc.Close)
	return svc
}

func TestAnalyzeDefaultPosition(t *testing.T) {
	svc := newTestService(t, enginetest.Script(t))

	resp, err := svc.Analyze(context.Background(), enginedto.AnalyzeRequest{Depth: 10})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !movePattern.MatchString(resp.BestMove) {
		t.Fatalf("bestMove %q not in engine move notation", resp.BestMove)
	}
	if resp.Ponder != "d7d5" {
		t.Fatalf("ponder = %q", resp.Ponder)
	}
	if resp.Evaluation.Type != enginedto.EvalCentipawn || resp.Evaluation.Value != 35 {
		t.Fatalf("evaluation = %+v", resp.Evaluation)
	}
	// Default multiPV is 1; the second engine line must be truncated away.
	if len(resp.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(resp.Lines))
	}
	if resp.Statistics.Depth != 12 || resp.Statistics.Nodes != 90000 {
		t.Fatalf("statistics = %+v", resp.Statistics)
	}
	if resp.TimingMs < 0 {
		t.Fatalf("timingMs = %d", resp.TimingMs)
	}
}

func TestAnalyzeMultiPV(t *testing.T) {
	svc := newTestService(t, enginetest.Script(t))

	resp, err := svc.Analyze(context.Background(), enginedto.AnalyzeRequest{Depth: 12, MultiPV: 2})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(resp.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(resp.Lines))
	}
	if resp.Lines[0].Eval.Value <= resp.Lines[1].Eval.Value {
		// FakeFish reports 35 then 21; line 1 is the engine's best.
		t.Fatalf("line ordering wrong: %+v", resp.Lines)
	}
}

func TestAnalyzeValidationShortCircuits(t *testing.T) {
	// A request that fails validation must not touch the engine, so even a
	// nonexistent binary cannot hurt.
	svc := newTestService(t, "/nonexistent/engine-binary")

	_, err := svc.Analyze(context.Background(), enginedto.AnalyzeRequest{Depth: 99})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAnalysesDoNotInterleave(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts need a POSIX shell")
	}
	logPath := filepath.Join(t.TempDir(), "commands.log")
	svc := newTestService(t, enginetest.LogScript(t, logPath))

	const requests = 4
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Analyze(context.Background(), enginedto.AnalyzeRequest{Depth: 5})
			if err != nil {
				t.Errorf("Analyze: %v", err)
			}
		}()
	}
	wg.Wait()

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read command log: %v", err)
	}
	var received []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) != "" {
			received = append(received, line)
		}
	}

	goCount := 0
	for i, line := range received {
		if !strings.HasPrefix(line, "go") {
			continue
		}
		goCount++
		// Every search must directly follow its own position command
		// (ignoring option writes); anything else means two analyses
		// interleaved on the engine's stdin.
		j := i - 1
		for j >= 0 && strings.HasPrefix(received[j], "setoption") {
			j--
		}
		if j < 0 || !strings.HasPrefix(received[j], "position") {
			t.Fatalf("go at line %d not preceded by position: %v", i, received)
		}
	}
	if goCount != requests {
		t.Fatalf("engine saw %d searches, want %d", goCount, requests)
	}
}

func TestAnalyzeTimeoutNamesDepth(t *testing.T) {
	svc := newTestService(t, enginetest.HoldOnceScript(t))
	svc.SearchFloor = 300 * time.Millisecond

	_, err := svc.Analyze(context.Background(), enginedto.AnalyzeRequest{Depth: 20})
	if !errors.Is(err, uci.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "depth=20") {
		t.Fatalf("timeout message %q does not name the depth", err.Error())
	}

	// The next request must succeed with clean output.
	svc.SearchFloor = 5 * time.Second
	resp, err := svc.Analyze(context.Background(), enginedto.AnalyzeRequest{Depth: 10})
	if err != nil {
		t.Fatalf("Analyze after timeout: %v", err)
	}
	if resp.BestMove != "d2d4" {
		t.Fatalf("stale output leaked, bestMove = %q", resp.BestMove)
	}
}

func TestCrashThenLazyReinit(t *testing.T) {
	svc := newTestService(t, enginetest.CrashOnceScript(t))

	_, err := svc.Analyze(context.Background(), enginedto.AnalyzeRequest{Depth: 10})
	if !errors.Is(err, uci.ErrEngineCrashed) {
		t.Fatalf("expected ErrEngineCrashed, got %v", err)
	}

	resp, err := svc.Analyze(context.Background(), enginedto.AnalyzeRequest{Depth: 10})
	if err != nil {
		t.Fatalf("Analyze after crash: %v", err)
	}
	if resp.BestMove == "" {
		t.Fatalf("no best move after lazy re-init")
	}
}

func TestHealthLazyInit(t *testing.T) {
	svc := newTestService(t, enginetest.Script(t))

	version, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if version != "FakeFish 1.0" {
		t.Fatalf("version = %q", version)
	}

	// Already running: identify round trip.
	version, err = svc.Health(context.Background())
	if err != nil || version == "" {
		t.Fatalf("second Health: %q, %v", version, err)
	}
}

func TestHealthUnhealthyOnSpawnError(t *testing.T) {
	svc := newTestService(t, "/nonexistent/engine-binary")

	_, err := svc.Health(context.Background())
	var spawnErr *uci.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
}

func TestAnalyzeServesFromCache(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts need a POSIX shell")
	}
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	resultCache, err := cache.New(fmt.Sprintf("redis://%s/0", mr.Addr()), time.Minute, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}

	sup := uci.NewSupervisor(uci.Config{
		BinaryPath:  enginetest.Script(t),
		Threads:     1,
		HashMB:      16,
		InitTimeout: 3 * time.Second,
		QuitGrace:   time.Second,
	}, nil)
	svc := NewService(sup, resultCache, nil)
	svc.SearchFloor = 5 * time.Second
	t.Cleanup(svc.Close)

	req := enginedto.AnalyzeRequest{Depth: 10}
	first, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}

	// Kill the engine: a cache hit must not need it.
	if err := sup.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	second, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("cached Analyze: %v", err)
	}
	if second.BestMove != first.BestMove {
		t.Fatalf("cached response differs: %q vs %q", second.BestMove, first.BestMove)
	}
}
