// Package reformulate executes reformulation jobs: one method against one
// query set using one LLM backend. The engine is generic over the method's
// session shape; it fans prompt requests out under a shared concurrency
// limit, retries transient provider failures with exponential backoff, and
// never drops a query id: a query whose calls all fail keeps its original
// text, flagged as a fallback.
package reformulate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/haasonsaas/reformbench/internal/artifacts"
	"github.com/haasonsaas/reformbench/internal/backoff"
	"github.com/haasonsaas/reformbench/internal/llm"
	"github.com/haasonsaas/reformbench/internal/methods"
	"github.com/haasonsaas/reformbench/internal/observability"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// maxRounds bounds session rounds as a guard against a strategy that never
// reports completion.
const maxRounds = 8

// Job is one reformulation job, identified by (method, llm, dataset).
type Job struct {
	Key     models.CellKey // retriever field unused
	Queries *models.QuerySet
	Params  methods.Params

	// Contexts maps query id to retrieved passages. Required iff the
	// method declares NeedsContext.
	Contexts map[string][]string
}

// Engine runs reformulation jobs. The LLM semaphore is shared across all
// jobs so the global in-flight call limit holds even when the orchestrator
// reformulates several grid cells at once.
type Engine struct {
	registry *methods.Registry
	client   llm.Client
	store    *artifacts.Store
	logger   *slog.Logger
	metrics  *observability.Metrics

	sem         chan struct{}
	maxAttempts int
	policy      backoff.Policy

	partialMu sync.Mutex
}

// Options configures an Engine.
type Options struct {
	Registry    *methods.Registry
	Client      llm.Client
	Store       *artifacts.Store
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Semaphore   chan struct{} // shared LLM call limiter
	MaxAttempts int
	Policy      backoff.Policy
}

// NewEngine builds an engine from options, applying defaults for unset
// limits.
func NewEngine(opts Options) *Engine {
	sem := opts.Semaphore
	if sem == nil {
		sem = make(chan struct{}, 8)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy.Initial == 0 {
		policy = backoff.DefaultPolicy()
	}
	return &Engine{
		registry:    opts.Registry,
		client:      opts.Client,
		store:       opts.Store,
		logger:      logger,
		metrics:     opts.Metrics,
		sem:         sem,
		maxAttempts: maxAttempts,
		policy:      policy,
	}
}

// Run executes a job and returns the reformulated query set. The output
// covers exactly the query ids of the input, in input order. Completed rows
// are persisted incrementally so cancellation preserves finished work; rows
// already present in a partial artifact are reused without further calls.
func (e *Engine) Run(ctx context.Context, job Job) (*models.ReformulatedQuerySet, error) {
	strategy, err := e.registry.Resolve(job.Key.Method)
	if err != nil {
		return nil, err
	}
	spec := strategy.Spec()
	if spec.NeedsContext && len(job.Contexts) == 0 {
		return nil, fmt.Errorf("method %q: %w", spec.Name, methods.ErrMissingContext)
	}

	var partial map[string]models.ReformulatedQuery
	if e.store != nil {
		partial, err = e.store.LoadPartialQueries(job.Key.JobKey())
		if err != nil {
			return nil, fmt.Errorf("load partial artifact: %w", err)
		}
	}

	queries := job.Queries.Queries
	results := make([]models.ReformulatedQuery, len(queries))

	// Query workers are bounded by the semaphore capacity; the semaphore
	// itself bounds in-flight LLM calls across all jobs.
	workers := cap(e.sem)
	if workers > len(queries) {
		workers = len(queries)
	}
	if workers < 1 {
		workers = 1
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				q := queries[i]
				if row, ok := partial[q.ID]; ok {
					row.Original = q.Text
					results[i] = row
					continue
				}
				row := e.reformulateOne(ctx, strategy, job, q)
				results[i] = row
				e.persistPartial(job.Key.JobKey(), row)
			}
		}()
	}

feed:
	for i := range queries {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := &models.ReformulatedQuerySet{
		Method:  job.Key.Method,
		LLM:     job.Key.LLM,
		Dataset: job.Key.Dataset,
		Queries: results,
	}
	if fallbacks := set.Fallbacks(); len(fallbacks) > 0 {
		e.logger.Warn("reformulation completed with fallback rows",
			"method", job.Key.Method,
			"llm", job.Key.LLM,
			"dataset", job.Key.Dataset,
			"fallbacks", len(fallbacks))
	}
	return set, nil
}

// reformulateOne drives one query's session to completion. Any failure path
// ends in a flagged fallback row carrying the original query text; rows are
// never dropped and never empty.
func (e *Engine) reformulateOne(ctx context.Context, strategy methods.Strategy, job Job, q models.Query) models.ReformulatedQuery {
	fallback := func(reason string, err error) models.ReformulatedQuery {
		e.logger.Warn("query fell back to original text",
			"method", job.Key.Method, "query", q.ID, "reason", reason, "error", err)
		if e.metrics != nil {
			e.metrics.FallbackRows.WithLabelValues(job.Key.Method, job.Key.LLM).Inc()
		}
		return models.ReformulatedQuery{ID: q.ID, Original: q.Text, Text: q.Text, Fallback: true}
	}

	sess, err := strategy.Open(methods.Input{
		Query:    q,
		Params:   job.Params,
		Dataset:  job.Key.Dataset,
		Contexts: job.Contexts[q.ID],
	})
	if err != nil {
		return fallback("open_session", err)
	}

	var prev []string
	succeeded := 0
	for round := 0; round < maxRounds; round++ {
		requests, err := sess.NextRound(prev)
		if err != nil {
			return fallback("build_prompts", err)
		}
		if len(requests) == 0 {
			break
		}
		responses, ok := e.issueRound(ctx, job.Key, requests)
		for _, r := range responses {
			if r != "" {
				succeeded++
			}
		}
		if !ok {
			return fallback("cancelled", ctx.Err())
		}
		prev = responses
	}

	if succeeded == 0 {
		return fallback("all_calls_failed", nil)
	}

	text, meta, err := sess.Assemble()
	if err != nil || strings.TrimSpace(text) == "" {
		return fallback("postprocess", err)
	}
	return models.ReformulatedQuery{ID: q.ID, Original: q.Text, Text: text, Metadata: meta}
}

// issueRound executes a round's requests concurrently under the shared
// call limit. Responses are returned in request order; failed calls yield
// "". The second return is false when the context was cancelled.
func (e *Engine) issueRound(ctx context.Context, key models.CellKey, requests []models.PromptRequest) ([]string, bool) {
	responses := make([]string, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(idx int, req models.PromptRequest) {
			defer wg.Done()
			select {
			case e.sem <- struct{}{}:
				defer func() { <-e.sem }()
			case <-ctx.Done():
				return
			}
			responses[idx] = e.generateWithRetry(ctx, key, req)
		}(i, req)
	}
	wg.Wait()
	return responses, ctx.Err() == nil
}

// generateWithRetry issues one logical LLM call, retrying transient
// failures with backoff up to the attempt cap. Permanent failures stop
// immediately. Returns "" when the call could not be completed.
func (e *Engine) generateWithRetry(ctx context.Context, key models.CellKey, req models.PromptRequest) string {
	result, err := backoff.Retry(ctx, e.policy, e.maxAttempts, llm.IsRetryable,
		func(attempt int) (string, error) {
			text, err := e.client.Generate(ctx, req)
			if e.metrics != nil {
				status := "success"
				if err != nil {
					status = "error"
				}
				e.metrics.LLMCalls.WithLabelValues(key.LLM, status).Inc()
				if attempt > 1 {
					e.metrics.LLMRetries.WithLabelValues(key.LLM).Inc()
				}
			}
			return text, err
		})
	if err != nil {
		e.logger.Debug("llm call failed",
			"llm", key.LLM, "attempts", result.Attempts, "error", result.LastErr)
		return ""
	}
	return result.Value
}

func (e *Engine) persistPartial(key models.CellKey, row models.ReformulatedQuery) {
	if e.store == nil || row.Fallback {
		// Fallback rows are recomputed on resume; only genuine
		// completions are worth preserving.
		return
	}
	e.partialMu.Lock()
	defer e.partialMu.Unlock()
	if err := e.store.AppendPartialQuery(key, row); err != nil {
		e.logger.Warn("failed to persist partial row", "query", row.ID, "error", err)
	}
}
