package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/RichardoC/mintchat/internal/api"
	"github.com/RichardoC/mintchat/internal/chain"
	"github.com/RichardoC/mintchat/internal/chat"
	"github.com/RichardoC/mintchat/internal/config"
	"github.com/RichardoC/mintchat/internal/db"
	"github.com/RichardoC/mintchat/internal/llm"
	"github.com/RichardoC/mintchat/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("MINTCHAT_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.Database.Path))
	}
	defer database.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	llmService, err := llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout, m)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	rpc, err := chain.NewClient(chain.Config{RPCURL: cfg.Chain.RPCURL, Timeout: cfg.Chain.Timeout}, m)
	if err != nil {
		logger.Fatal("failed to initialize RPC client", zap.Error(err))
	}
	snapshots := chain.NewBuilder(rpc, cfg.Chain.Timeout, cfg.Chain.MaxHolders, logger, m)

	svc := chat.New(database, llmService, snapshots, chat.Options{
		FreeLimit:         cfg.Gate.FreeLimit,
		HistoryLimit:      cfg.Gate.HistoryLimit,
		SerializeSessions: cfg.Gate.SerializeSessions,
		Persona: llm.Persona{
			Name:               cfg.Persona.Name,
			Bilingual:          cfg.Persona.Bilingual,
			DesignatedContract: cfg.Persona.DesignatedContract,
			DesignatedStance:   cfg.Persona.DesignatedStance,
		},
		Chat:     llm.Sampling(cfg.LLM.Chat),
		Analysis: llm.Sampling(cfg.LLM.Analysis),
	}, logger, m)

	handler := api.NewHandler(svc, logger)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Router(m, api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("model", cfg.LLM.Model),
			zap.Int("freeLimit", cfg.Gate.FreeLimit))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
