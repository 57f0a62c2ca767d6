package pipeline

import (
	"context"
	"fmt"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// Retrieve runs the retrieval stage for one cell, consuming the job's saved
// reformulation artifact and writing the run file. The reused flag reports
// that an existing run satisfied the stage without new searches.
func (o *Orchestrator) Retrieve(ctx context.Context, key models.CellKey) (bool, error) {
	ds, ok := config.LookupDataset(key.Dataset)
	if !ok {
		return false, fmt.Errorf("unknown dataset %q", key.Dataset)
	}

	if o.cfg.Execution.Force {
		if err := o.store.RemoveRun(key); err != nil {
			return false, fmt.Errorf("remove stale run: %w", err)
		}
	} else if o.store.HasRun(key) {
		o.logger.Debug("reusing ranked run",
			"method", key.Method, "llm", key.LLM,
			"dataset", key.Dataset, "retriever", key.Retriever)
		return true, nil
	}

	if !o.store.HasQueries(key.JobKey()) {
		return false, fmt.Errorf("no reformulated queries for %s; run the reformulate stage first", key.JobKey())
	}
	set, err := o.store.LoadQueries(key.JobKey())
	if err != nil {
		return false, fmt.Errorf("load reformulated queries: %w", err)
	}

	o.logger.Info("retrieving",
		"method", key.Method, "llm", key.LLM,
		"dataset", key.Dataset, "retriever", key.Retriever,
		"queries", len(set.Queries))
	run, err := o.retriever.Run(ctx, key, ds, set)
	if err != nil {
		return false, err
	}
	if err := o.store.SaveRun(run); err != nil {
		return false, fmt.Errorf("save run: %w", err)
	}
	return false, nil
}

// EvaluateCell scores one cell's run file and records the metric values in
// the results table.
func (o *Orchestrator) EvaluateCell(ctx context.Context, key models.CellKey) (models.EvaluationRecord, error) {
	ds, ok := config.LookupDataset(key.Dataset)
	if !ok {
		return models.EvaluationRecord{}, fmt.Errorf("unknown dataset %q", key.Dataset)
	}
	if !o.store.HasRun(key) {
		return models.EvaluationRecord{}, fmt.Errorf("no run file for %s; run the retrieve stage first", key)
	}

	rec, err := o.evaluator.Evaluate(ctx, key, ds, o.store.RunPath(key))
	if err != nil {
		return models.EvaluationRecord{}, err
	}
	if err := o.results.Upsert(ctx, rec); err != nil {
		return models.EvaluationRecord{}, fmt.Errorf("record results: %w", err)
	}
	return rec, nil
}
