package analysis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/engine-companion/internal/cache"
	"github.com/park285/engine-companion/internal/uci"
	"github.com/park285/engine-companion/pkg/enginedto"
)

// Search commands get at least this long regardless of the requested depth;
// a movetime budget above it stretches the deadline instead.
const searchTimeoutFloor = 30 * time.Second

// Service is the context every HTTP handler works against: the supervisor,
// the analysis gate, and the optional result cache. Built once in main, no
// package-level state.
type Service struct {
	sup   *uci.Supervisor
	gate  *uci.Gate
	cache *cache.Cache
	log   *zap.Logger

	// SearchFloor is the minimum search budget. Defaults to 30s; a movetime
	// above it stretches the deadline instead.
	SearchFloor time.Duration
}

func NewService(sup *uci.Supervisor, c *cache.Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		sup:         sup,
		gate:        uci.NewGate(),
		cache:       c,
		log:         log,
		SearchFloor: searchTimeoutFloor,
	}
}

// Analyze validates the request, then runs the position+go sequence inside
// the gate and parses the captured output. The engine is started lazily; a
// crashed engine is re-initialized on the next call.
func (s *Service) Analyze(ctx context.Context, req enginedto.AnalyzeRequest) (*enginedto.AnalyzeResponse, error) {
	req, err := ValidateRequest(req)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if resp, ok := s.cache.Get(ctx, req); ok {
			s.log.Debug("analysis cache hit", zap.String("fen", req.FEN), zap.Int("depth", req.Depth))
			return resp, nil
		}
	}

	start := time.Now()
	var raw []string
	err = s.gate.RunExclusive(ctx, func() error {
		if err := s.ensureStarted(ctx); err != nil {
			return err
		}
		var aerr error
		raw, aerr = s.sup.Analyze(ctx, uci.SearchParams{
			FEN:        req.FEN,
			Moves:      req.Moves,
			Depth:      req.Depth,
			MultiPV:    req.MultiPV,
			MoveTimeMs: req.MoveTimeMs,
			Timeout:    s.searchTimeout(req.MoveTimeMs),
		})
		return aerr
	})
	if err != nil {
		if errors.Is(err, uci.ErrTimeout) {
			return nil, &TimeoutError{Depth: req.Depth, Err: err}
		}
		return nil, err
	}

	result := uci.ParseAnalysis(raw)
	if result.BestMove == "" {
		return nil, errors.New("engine produced no best move")
	}
	resp := toResponse(result, req.MultiPV, time.Since(start))

	if s.cache != nil {
		s.cache.Set(ctx, req, resp)
	}
	return resp, nil
}

// Health lazily starts the engine when needed and reports its identification
// string. An already-running engine gets a cheap identify round trip.
func (s *Service) Health(ctx context.Context) (string, error) {
	if s.sup.Running() {
		return s.sup.Identify(ctx)
	}
	err := s.gate.RunExclusive(ctx, func() error {
		return s.ensureStarted(ctx)
	})
	if err != nil {
		return "", err
	}
	return s.sup.EngineID(), nil
}

// Close terminates the engine. Called on shutdown signal.
func (s *Service) Close() {
	if err := s.sup.Terminate(); err != nil {
		s.log.Warn("engine terminate", zap.Error(err))
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn("cache close", zap.Error(err))
		}
	}
}

// ensureStarted must run inside the gate: initialization writes to the same
// streams an analysis would.
func (s *Service) ensureStarted(ctx context.Context) error {
	if s.sup.Running() {
		return nil
	}
	return s.sup.Start(ctx)
}

func (s *Service) searchTimeout(moveTimeMs int) time.Duration {
	floor := s.SearchFloor
	if floor <= 0 {
		floor = searchTimeoutFloor
	}
	budget := time.Duration(moveTimeMs) * time.Millisecond
	if budget < floor {
		return floor
	}
	return budget
}

func toResponse(result uci.AnalysisResult, multiPV int, elapsed time.Duration) *enginedto.AnalyzeResponse {
	lines := result.Lines
	if len(lines) > multiPV {
		lines = lines[:multiPV]
	}

	out := make([]enginedto.Line, 0, len(lines))
	for _, ln := range lines {
		out = append(out, enginedto.Line{
			PV:   ln.Moves,
			Eval: toEvaluation(ln.Score),
		})
	}

	return &enginedto.AnalyzeResponse{
		BestMove:   result.BestMove,
		Ponder:     result.Ponder,
		Evaluation: toEvaluation(result.Score),
		Lines:      out,
		Statistics: enginedto.Statistics{
			Depth:    result.Stats.Depth,
			SelDepth: result.Stats.SelDepth,
			Nodes:    result.Stats.Nodes,
			NPS:      result.Stats.NPS,
		},
		TimingMs: elapsed.Milliseconds(),
	}
}

func toEvaluation(score uci.Score) enginedto.Evaluation {
	kind := enginedto.EvalCentipawn
	if score.Mate {
		kind = enginedto.EvalMate
	}
	return enginedto.Evaluation{Type: kind, Value: score.Value}
}
