package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/engine-companion/internal/analysis"
	"github.com/park285/engine-companion/internal/uci"
	"github.com/park285/engine-companion/pkg/enginedto"
)

// Server is the wire boundary: request validation happens in the analysis
// layer, this layer maps outcomes to status codes and JSON envelopes.
type Server struct {
	svc *analysis.Service
	log *zap.Logger
}

func New(svc *analysis.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log}
}

// FastHTTP wraps the handler in a configured fasthttp server. WriteTimeout
// stays unset: an analyze response may legitimately take the full search
// budget to produce.
func (s *Server) FastHTTP() *fasthttp.Server {
	return &fasthttp.Server{
		Handler:     s.Handler,
		Name:        "engined",
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	requestID := uuid.NewString()
	ctx.Response.Header.Set("X-Request-Id", requestID)
	// The sole intended caller is a desktop application shell without a
	// fixed origin.
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type")

	if string(ctx.Method()) == fasthttp.MethodOptions {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	log := s.log.With(zap.String("request_id", requestID))
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case path == "/analyze" && method == fasthttp.MethodPost:
		s.handleAnalyze(ctx, log)
	case path == "/health" && method == fasthttp.MethodGet:
		s.handleHealth(ctx, log)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "no such endpoint: "+method+" "+path)
	}
}

func (s *Server) handleAnalyze(ctx *fasthttp.RequestCtx, log *zap.Logger) {
	var req enginedto.AnalyzeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, enginedto.CodeValidation, "body: invalid JSON")
		return
	}

	start := time.Now()
	resp, err := s.svc.Analyze(ctx, req)
	if err != nil {
		var verr *analysis.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(ctx, fasthttp.StatusBadRequest, enginedto.CodeValidation, verr.Error())
		case errors.Is(err, uci.ErrTimeout):
			log.Warn("analysis timed out", zap.Int("depth", req.Depth), zap.Duration("elapsed", time.Since(start)))
			writeError(ctx, fasthttp.StatusGatewayTimeout, enginedto.CodeTimeout, err.Error())
		default:
			log.Error("analysis failed", zap.Error(err))
			writeError(ctx, fasthttp.StatusInternalServerError, enginedto.CodeAnalysis, err.Error())
		}
		return
	}

	log.Info("analysis done",
		zap.String("best_move", resp.BestMove),
		zap.Int("depth", resp.Statistics.Depth),
		zap.Int64("timing_ms", resp.TimingMs))
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx, log *zap.Logger) {
	version, err := s.svc.Health(ctx)
	if err != nil {
		log.Warn("health check failed", zap.Error(err))
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, enginedto.HealthResponse{
			Status: "unhealthy",
			Engine: "not ready",
			Error:  err.Error(),
		})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, enginedto.HealthResponse{
		Status:  "healthy",
		Engine:  "ready",
		Version: version,
	})
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	writeJSON(ctx, status, enginedto.ErrorResponse{Error: code, Message: message})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}
