package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/reformbench/internal/artifacts"
	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/internal/evaluate"
	"github.com/haasonsaas/reformbench/internal/methods"
	"github.com/haasonsaas/reformbench/internal/observability"
	"github.com/haasonsaas/reformbench/internal/prompts"
	"github.com/haasonsaas/reformbench/internal/results"
	"github.com/haasonsaas/reformbench/internal/retrieval"
)

// app holds the wired components shared by every subcommand. Construction
// fails fast: config validation, prompt bank parsing, and method parameter
// checks all happen before any external call is made.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	registry  *methods.Registry
	store     *artifacts.Store
	driver    *retrieval.Driver
	evaluator *evaluate.Evaluator
	results   *results.Store
}

func newApp(configPath string, force bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if force {
		cfg.Execution.Force = true
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, nil)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	bank, err := prompts.Load(cfg.Paths.Prompts)
	if err != nil {
		return nil, err
	}
	registry := methods.NewRegistry(bank)

	// Reject bad method parameters before any stage runs.
	for _, name := range cfg.MethodNames() {
		if _, err := registry.ValidateParams(name, cfg.Methods[name]); err != nil {
			return nil, err
		}
	}

	store, err := artifacts.NewStore(cfg.Paths.Output)
	if err != nil {
		return nil, err
	}

	retrievalSem := make(chan struct{}, cfg.Execution.RetrievalConcurrency)
	driver := retrieval.NewDriver(retrieval.NewClient(cfg.Retrieval), cfg.Retrieval, retrievalSem, logger, metrics)

	scorer := evaluate.NewTrecEvalScorer(cfg.Evaluation.TrecEvalBinary)
	evaluator := evaluate.NewEvaluator(scorer, cfg.Paths.Qrels, logger, metrics)

	resultsStore, err := results.Open(cfg.Paths.Results)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		registry:  registry,
		store:     store,
		driver:    driver,
		evaluator: evaluator,
		results:   resultsStore,
	}, nil
}

func (a *app) Close() {
	if a.results != nil {
		a.results.Close()
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
