// Package pipeline orchestrates the full experiment grid. Each (method,
// llm, dataset) triple is one reformulation job; each job crossed with a
// retriever is one cell that flows through reformulate, retrieve, and
// evaluate stages. Failures are isolated at the narrowest scope that makes
// sense: a bad query becomes a fallback row, a dead backend fails its
// cells, and the grid always runs to completion.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/reformbench/internal/artifacts"
	"github.com/haasonsaas/reformbench/internal/backoff"
	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/internal/evaluate"
	"github.com/haasonsaas/reformbench/internal/llm"
	"github.com/haasonsaas/reformbench/internal/methods"
	"github.com/haasonsaas/reformbench/internal/observability"
	"github.com/haasonsaas/reformbench/internal/reformulate"
	"github.com/haasonsaas/reformbench/internal/results"
	"github.com/haasonsaas/reformbench/internal/retrieval"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// Orchestrator runs the experiment grid end to end.
type Orchestrator struct {
	cfg       *config.Config
	registry  *methods.Registry
	store     *artifacts.Store
	retriever *retrieval.Driver
	evaluator *evaluate.Evaluator
	results   *results.Store
	logger    *slog.Logger
	metrics   *observability.Metrics

	clients map[string]llm.Client
	params  map[string]methods.Params
	llmSem  chan struct{}
	policy  backoff.Policy

	// Cached per dataset across jobs.
	queries  map[string]*models.QuerySet
	contexts map[string]map[string][]string
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Registry  *methods.Registry
	Store     *artifacts.Store
	Retriever *retrieval.Driver
	Evaluator *evaluate.Evaluator
	Results   *results.Store
	Logger    *slog.Logger
	Metrics   *observability.Metrics

	// Clients overrides backend client construction when non-nil. Used
	// by tests; production wiring builds clients from the config.
	Clients map[string]llm.Client
}

// New builds an orchestrator from a validated configuration. Method
// parameters are normalized against their schemas and LLM clients are
// constructed up front, so configuration mistakes surface here rather than
// mid-grid.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	params := make(map[string]methods.Params, len(cfg.Methods))
	for _, name := range cfg.MethodNames() {
		p, err := deps.Registry.ValidateParams(name, cfg.Methods[name])
		if err != nil {
			return nil, err
		}
		params[name] = p
	}

	clients := deps.Clients
	if clients == nil {
		clients = make(map[string]llm.Client, len(cfg.LLMs))
		for _, name := range cfg.LLMNames() {
			client, err := llm.New(name, cfg.LLMs[name])
			if err != nil {
				return nil, err
			}
			clients[name] = client
		}
	}

	return &Orchestrator{
		cfg:       cfg,
		registry:  deps.Registry,
		store:     deps.Store,
		retriever: deps.Retriever,
		evaluator: deps.Evaluator,
		results:   deps.Results,
		logger:    logger,
		metrics:   deps.Metrics,
		clients:   clients,
		params:    params,
		llmSem:    make(chan struct{}, cfg.Execution.LLMConcurrency),
		policy: backoff.Policy{
			Initial: cfg.Execution.RetryInitialDelay,
			Max:     cfg.Execution.RetryMaxDelay,
			Factor:  2,
			Jitter:  0.1,
		},
		queries:  make(map[string]*models.QuerySet),
		contexts: make(map[string]map[string][]string),
	}, nil
}

// Run executes every cell of the grid and returns the summary. The error is
// non-nil only for context cancellation; cell failures are reported through
// the summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: uuid.New().String()}
	grid := o.gridJobs()

	o.logger.Info("pipeline started",
		"run_id", summary.RunID,
		"methods", len(o.cfg.Methods),
		"llms", len(o.cfg.LLMs),
		"datasets", len(o.cfg.Datasets),
		"retrievers", len(o.cfg.Retrievers),
		"cells", len(grid)*len(o.cfg.Retrievers))

	start := time.Now()
	for _, jobKey := range grid {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		o.runJob(ctx, jobKey, summary)
	}

	o.logger.Info("pipeline finished",
		"run_id", summary.RunID,
		"done", summary.CellsDone,
		"failed", len(summary.Failures),
		"reformulations_reused", summary.ReformulationsReused,
		"runs_reused", summary.RunsReused,
		"elapsed", time.Since(start).Round(time.Second))
	return summary, nil
}

// gridJobs expands the configured grid into job keys in deterministic
// order: methods and llms sorted, datasets in config order.
func (o *Orchestrator) gridJobs() []models.CellKey {
	var jobs []models.CellKey
	for _, method := range o.cfg.MethodNames() {
		for _, llmName := range o.cfg.LLMNames() {
			for _, dataset := range o.cfg.Datasets {
				jobs = append(jobs, models.CellKey{Method: method, LLM: llmName, Dataset: dataset})
			}
		}
	}
	return jobs
}

// runJob reformulates one (method, llm, dataset) triple and carries each
// retriever's cell through retrieval and evaluation. A reformulation
// failure fails every cell of the job; later stages fail per cell.
func (o *Orchestrator) runJob(ctx context.Context, jobKey models.CellKey, summary *Summary) {
	_, reused, err := o.Reformulate(ctx, jobKey)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		o.failJob(summary, jobKey, StageReformulate, err)
		return
	}
	if reused {
		summary.ReformulationsReused++
	}

	for _, retrieverName := range o.cfg.Retrievers {
		if ctx.Err() != nil {
			return
		}
		key := jobKey
		key.Retriever = retrieverName
		o.runCell(ctx, key, summary)
	}
}

// Reformulate returns the job's reformulated query set, reusing an
// existing artifact when present. The reused flag reports that no LLM calls
// were made.
func (o *Orchestrator) Reformulate(ctx context.Context, jobKey models.CellKey) (*models.ReformulatedQuerySet, bool, error) {
	if o.cfg.Execution.Force {
		if err := o.store.RemoveQueries(jobKey); err != nil {
			return nil, false, fmt.Errorf("remove stale queries: %w", err)
		}
	} else if o.store.HasQueries(jobKey) {
		set, err := o.store.LoadQueries(jobKey)
		if err != nil {
			return nil, false, fmt.Errorf("load cached queries: %w", err)
		}
		o.logger.Debug("reusing reformulated queries",
			"method", jobKey.Method, "llm", jobKey.LLM, "dataset", jobKey.Dataset)
		return set, true, nil
	}

	qs, err := o.querySet(jobKey.Dataset)
	if err != nil {
		return nil, false, err
	}

	job := reformulate.Job{Key: jobKey, Queries: qs, Params: o.params[jobKey.Method]}
	strategy, err := o.registry.Resolve(jobKey.Method)
	if err != nil {
		return nil, false, err
	}
	if strategy.Spec().NeedsContext {
		job.Contexts, err = o.datasetContexts(ctx, jobKey.Dataset)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", methods.ErrMissingContext, err)
		}
	}

	engine := reformulate.NewEngine(reformulate.Options{
		Registry:    o.registry,
		Client:      o.clients[jobKey.LLM],
		Store:       o.store,
		Logger:      o.logger,
		Metrics:     o.metrics,
		Semaphore:   o.llmSem,
		MaxAttempts: o.cfg.Execution.MaxAttempts,
		Policy:      o.policy,
	})

	o.logger.Info("reformulating",
		"method", jobKey.Method, "llm", jobKey.LLM,
		"dataset", jobKey.Dataset, "queries", qs.Len())
	set, err := engine.Run(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if err := o.store.SaveQueries(set); err != nil {
		return nil, false, fmt.Errorf("save queries: %w", err)
	}
	return set, false, nil
}

// runCell retrieves and evaluates one cell.
func (o *Orchestrator) runCell(ctx context.Context, key models.CellKey, summary *Summary) {
	reused, err := o.Retrieve(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		o.failCell(summary, key, StageRetrieve, err)
		return
	}
	if reused {
		summary.RunsReused++
	}

	if _, err := o.EvaluateCell(ctx, key); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		o.failCell(summary, key, StageEvaluate, err)
		return
	}

	summary.CellsDone++
	if o.metrics != nil {
		o.metrics.CellFinished("done")
	}
}

// querySet loads (once per dataset) the topic file for a dataset.
func (o *Orchestrator) querySet(dataset string) (*models.QuerySet, error) {
	if qs, ok := o.queries[dataset]; ok {
		return qs, nil
	}
	path := filepath.Join(o.cfg.Paths.Queries, dataset+".tsv")
	qs, err := artifacts.ReadQueryTSV(path, dataset)
	if err != nil {
		return nil, fmt.Errorf("load topics for %s: %w", dataset, err)
	}
	o.queries[dataset] = qs
	return qs, nil
}

// datasetContexts fetches (once per dataset) the top passages for every
// original query, for corpus-grounded methods.
func (o *Orchestrator) datasetContexts(ctx context.Context, dataset string) (map[string][]string, error) {
	if contexts, ok := o.contexts[dataset]; ok {
		return contexts, nil
	}
	qs, err := o.querySet(dataset)
	if err != nil {
		return nil, err
	}
	ds, ok := config.LookupDataset(dataset)
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q", dataset)
	}
	contexts, err := o.retriever.FetchContexts(ctx, o.cfg.Context.Retriever, ds, qs, o.cfg.Context.K)
	if err != nil {
		return nil, err
	}
	o.contexts[dataset] = contexts
	return contexts, nil
}

func (o *Orchestrator) failJob(summary *Summary, jobKey models.CellKey, stage Stage, err error) {
	o.logger.Error("job failed",
		"method", jobKey.Method, "llm", jobKey.LLM,
		"dataset", jobKey.Dataset, "stage", string(stage), "error", err)
	for _, retrieverName := range o.cfg.Retrievers {
		key := jobKey
		key.Retriever = retrieverName
		summary.Failures = append(summary.Failures, CellFailure{Key: key, Stage: stage, Reason: err.Error()})
		if o.metrics != nil {
			o.metrics.CellFinished("failed")
		}
	}
}

func (o *Orchestrator) failCell(summary *Summary, key models.CellKey, stage Stage, err error) {
	o.logger.Error("cell failed",
		"method", key.Method, "llm", key.LLM,
		"dataset", key.Dataset, "retriever", key.Retriever,
		"stage", string(stage), "error", err)
	summary.Failures = append(summary.Failures, CellFailure{Key: key, Stage: stage, Reason: err.Error()})
	if o.metrics != nil {
		o.metrics.CellFinished("failed")
	}
}

// SortFailures orders failures by cell key for stable reporting.
func SortFailures(failures []CellFailure) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Key.String() < failures[j].Key.String()
	})
}
