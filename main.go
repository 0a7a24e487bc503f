package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/agents"
	"github.com/helicon-ai/inquiro/internal/bus"
	"github.com/helicon-ai/inquiro/internal/checkpoint"
	"github.com/helicon-ai/inquiro/internal/config"
	"github.com/helicon-ai/inquiro/internal/evaluation"
	"github.com/helicon-ai/inquiro/internal/httpapi"
	"github.com/helicon-ai/inquiro/internal/llm"
	"github.com/helicon-ai/inquiro/internal/memory"
	_ "github.com/helicon-ai/inquiro/internal/metrics" // register collectors
	"github.com/helicon-ai/inquiro/internal/orchestrator"
	"github.com/helicon-ai/inquiro/internal/research"
	"github.com/helicon-ai/inquiro/internal/search"
	"github.com/helicon-ai/inquiro/internal/session"
	"github.com/helicon-ai/inquiro/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Clients for the model and search backends
	completions, err := llm.NewClient(cfg.LLM, logger.Named("llm"))
	if err != nil {
		logger.Fatal("Failed to initialize completion client", zap.Error(err))
	}
	gateway, err := search.NewGateway(cfg.Search, logger.Named("search"))
	if err != nil {
		logger.Fatal("Failed to initialize search gateway", zap.Error(err))
	}

	// Hot-reloaded per-strategy search profiles
	if cfg.ProfilesDir != "" {
		profiles, err := config.NewProfileWatcher(cfg.ProfilesDir, logger.Named("profiles"))
		if err != nil {
			logger.Warn("Source profiles unavailable", zap.Error(err))
		} else {
			defer profiles.Stop()
			gateway.SetProfiles(profiles)
		}
	}

	// Stores
	sessions, err := session.NewStore(cfg.Redis.Addr, cfg.Redis.Password, logger.Named("session"))
	if err != nil {
		logger.Fatal("Failed to connect session store", zap.Error(err))
	}
	defer sessions.Close()

	facts := memory.NewFactStore(logger.Named("memory"))

	checkpoints, err := checkpoint.NewStore(cfg.CheckpointDir, logger.Named("checkpoint"))
	if err != nil {
		logger.Fatal("Failed to initialize checkpoint store", zap.Error(err))
	}

	var archive orchestrator.Archiver
	if cfg.ArchiveEnable {
		pg, err := memory.NewArchive(cfg.Archive, logger.Named("archive"))
		if err != nil {
			logger.Fatal("Failed to connect session archive", zap.Error(err))
		}
		defer pg.Close()
		archive = pg
	}

	events := bus.New(cfg.BusCapacity, logger.Named("bus"))

	// Research stage: iterative loop by default, parallel coordinator
	// when configured and the plan has multiple sub-questions.
	gaps := research.NewGapAnalyzer(completions, logger.Named("gaps"))
	loop := research.NewLoop(gateway, gaps, facts, logger.Named("research"),
		research.WithMaxIterations(cfg.Research.MaxIterations),
		research.WithQueriesPerTurn(cfg.Research.QueriesPerTurn),
		research.WithResultsPerQuery(cfg.Research.ResultsPerQuery),
	)
	var researcher orchestrator.Researcher = loop
	if cfg.Research.Parallel {
		coordinator := research.NewCoordinator(gateway, facts, cfg.Research.MaxWorkers, logger.Named("parallel"))
		researcher = &parallelResearcher{loop: loop, coordinator: coordinator}
	}

	orch := orchestrator.New(orchestrator.Deps{
		Planner:     agents.NewPlanner(completions, logger.Named("planner")),
		Researcher:  researcher,
		Synthesizer: agents.NewSynthesizer(completions, logger.Named("synthesizer")),
		Validator:   agents.NewValidator(completions, logger.Named("validator")),
		Generator:   agents.NewGenerator(completions, logger.Named("generator")),
		Sessions:    sessions,
		Facts:       facts,
		Checkpoints: checkpoints,
		Events:      events,
		Archive:     archive,
		Logger:      logger.Named("orchestrator"),
	})

	api := httpapi.NewServer(httpapi.Deps{
		Pipeline:    orch,
		Sessions:    sessions,
		Facts:       facts,
		Checkpoints: checkpoints,
		Evaluator:   evaluation.NewEvaluator(completions, logger.Named("evaluator")),
		Events:      events,
		Logger:      logger.Named("http"),
	})

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
	}

	// Metrics on a separate port
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Service.MetricsPort)
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, metricsMux); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tracing flush error", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Format == "console" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// parallelResearcher fans multi-question plans out to the coordinator
// and keeps single-question plans on the iterative loop so gap-driven
// follow-up still happens.
type parallelResearcher struct {
	loop        *research.Loop
	coordinator *research.Coordinator
}

func (p *parallelResearcher) Run(ctx context.Context, req research.Request) (*research.Result, error) {
	if len(req.SubQuestions) > 1 {
		return p.coordinator.Research(ctx, req)
	}
	return p.loop.Run(ctx, req)
}
