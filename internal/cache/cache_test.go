package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/engine-companion/pkg/enginedto"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := New(fmt.Sprintf("redis://%s/0", mr.Addr()), time.Minute, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleResponse() *enginedto.AnalyzeResponse {
	return &enginedto.AnalyzeResponse{
		BestMove:   "e2e4",
		Evaluation: enginedto.Evaluation{Type: enginedto.EvalCentipawn, Value: 31},
		Lines: []enginedto.Line{{
			PV:   []string{"e2e4", "e7e5"},
			Eval: enginedto.Evaluation{Type: enginedto.EvalCentipawn, Value: 31},
		}},
		Statistics: enginedto.Statistics{Depth: 14, Nodes: 120000, NPS: 500000},
		TimingMs:   412,
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	req := enginedto.AnalyzeRequest{Depth: 14, MultiPV: 1}

	if _, ok := c.Get(ctx, req); ok {
		t.Fatalf("unexpected hit on empty cache")
	}

	c.Set(ctx, req, sampleResponse())
	got, ok := c.Get(ctx, req)
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if got.BestMove != "e2e4" || got.Statistics.Depth != 14 {
		t.Fatalf("cached response corrupted: %+v", got)
	}
}

func TestKeyDistinguishesRequests(t *testing.T) {
	base := enginedto.AnalyzeRequest{FEN: "startpos", Depth: 14, MultiPV: 1}
	variants := []enginedto.AnalyzeRequest{
		{FEN: "startpos", Depth: 15, MultiPV: 1},
		{FEN: "startpos", Depth: 14, MultiPV: 2},
		{FEN: "startpos", Depth: 14, MultiPV: 1, MoveTimeMs: 500},
		{FEN: "startpos", Moves: []string{"e2e4"}, Depth: 14, MultiPV: 1},
	}
	seen := map[string]bool{Key(base): true}
	for _, v := range variants {
		k := Key(v)
		if seen[k] {
			t.Fatalf("key collision for %+v", v)
		}
		seen[k] = true
	}
	if Key(base) != Key(base) {
		t.Fatalf("key not deterministic")
	}
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	req := enginedto.AnalyzeRequest{Depth: 14, MultiPV: 1}

	c.Set(ctx, req, sampleResponse())
	mr.FastForward(2 * time.Minute)
	if _, ok := c.Get(ctx, req); ok {
		t.Fatalf("entry survived past TTL")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("", time.Minute, nil); err == nil {
		t.Fatalf("empty url accepted")
	}
	if _, err := New("http://localhost:6379", time.Minute, nil); err == nil {
		t.Fatalf("non-redis scheme accepted")
	}
}
