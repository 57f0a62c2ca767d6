package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/internal/observability"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// Evaluator resolves relevance judgments and scores run files.
type Evaluator struct {
	scorer   Scorer
	qrelsDir string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewEvaluator builds an evaluator. qrelsDir holds judgment files; see
// QrelsPath for the naming convention.
func NewEvaluator(scorer Scorer, qrelsDir string, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{scorer: scorer, qrelsDir: qrelsDir, logger: logger, metrics: metrics}
}

// QrelsPath locates the judgments file for a dataset. A file named after
// the dataset ({dir}/{name}.txt) overrides the standard symbol
// ({dir}/qrels.{symbol}.txt). Datasets without a registered symbol, such as
// dlhard, require the override file.
func (e *Evaluator) QrelsPath(ds config.Dataset) (string, error) {
	candidates := []string{filepath.Join(e.qrelsDir, ds.Name+".txt")}
	if ds.Qrels != "" {
		candidates = append(candidates, filepath.Join(e.qrelsDir, "qrels."+ds.Qrels+".txt"))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("dataset %s: %w (looked in %s)", ds.Name, ErrMissingJudgments, e.qrelsDir)
}

// Evaluate scores one run file and returns the record for the results
// table.
func (e *Evaluator) Evaluate(ctx context.Context, key models.CellKey, ds config.Dataset, runPath string) (models.EvaluationRecord, error) {
	qrelsPath, err := e.QrelsPath(ds)
	if err != nil {
		return models.EvaluationRecord{}, err
	}

	start := time.Now()
	values, err := e.scorer.Score(ctx, ds, qrelsPath, runPath)
	if e.metrics != nil {
		e.metrics.EvalDuration.WithLabelValues(ds.Name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return models.EvaluationRecord{}, fmt.Errorf("evaluate %s: %w", key, err)
	}

	e.logger.Info("run evaluated",
		"method", key.Method, "llm", key.LLM,
		"dataset", key.Dataset, "retriever", key.Retriever,
		"metrics", values)
	return models.EvaluationRecord{Key: key, Metrics: values}, nil
}
