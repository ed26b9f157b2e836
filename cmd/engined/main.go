package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/engine-companion/internal/analysis"
	"github.com/park285/engine-companion/internal/cache"
	appcfg "github.com/park285/engine-companion/internal/config"
	"github.com/park285/engine-companion/internal/obslog"
	"github.com/park285/engine-companion/internal/server"
	"github.com/park285/engine-companion/internal/uci"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	var resultCache *cache.Cache
	if cfg.RedisURL != "" {
		resultCache, err = cache.New(cfg.RedisURL, time.Duration(cfg.CacheTTLSec)*time.Second, logger)
		if err != nil {
			logger.Fatal("cache init error", zap.Error(err))
		}
		logger.Info("analysis cache enabled", zap.Int("ttl_sec", cfg.CacheTTLSec))
	}

	sup := uci.NewSupervisor(uci.Config{
		BinaryPath:   cfg.EnginePath,
		Threads:      cfg.EngineThreads,
		HashMB:       cfg.EngineHashMB,
		ExtraOptions: engineOptions(cfg.EngineOptions),
	}, logger)

	// Eager start: an unstartable executable is fatal here. A crash later is
	// recovered by lazy re-initialization on the next request.
	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := sup.Start(startCtx); err != nil {
		cancel()
		var spawnErr *uci.SpawnError
		if errors.As(err, &spawnErr) {
			logger.Fatal("engine executable unstartable", zap.Error(err))
		}
		logger.Warn("engine init failed, will retry lazily", zap.Error(err))
	} else {
		cancel()
	}

	svc := analysis.NewService(sup, resultCache, logger)
	srv := server.New(svc, logger)
	httpSrv := srv.FastHTTP()

	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("engine", cfg.EnginePath))
		if err := httpSrv.ListenAndServe(addr); err != nil {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := httpSrv.Shutdown(); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	svc.Close()
}

func engineOptions(opts []appcfg.ProfileOption) []uci.EngineOption {
	out := make([]uci.EngineOption, 0, len(opts))
	for _, opt := range opts {
		out = append(out, uci.EngineOption{Name: opt.Name, Value: opt.Value})
	}
	return out
}
