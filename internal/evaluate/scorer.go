// Package evaluate scores ranked runs against relevance judgments. Scoring
// shells out to the standard trec_eval binary so numbers are directly
// comparable with published results; the package layers qrels resolution
// and metric handling per dataset group on top.
package evaluate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/haasonsaas/reformbench/internal/config"
)

// ErrMissingJudgments is returned when no qrels file can be located for a
// dataset. The affected cell fails; other cells are unaffected.
var ErrMissingJudgments = errors.New("no relevance judgments found")

// Scorer computes metric values for a run file against a qrels file.
type Scorer interface {
	Score(ctx context.Context, ds config.Dataset, qrelsPath, runPath string) (map[string]float64, error)
}

// TrecEvalScorer invokes the trec_eval binary once per metric.
type TrecEvalScorer struct {
	// Binary is the trec_eval executable, resolved via PATH when bare.
	Binary string
}

// NewTrecEvalScorer returns a scorer using the given binary, defaulting to
// "trec_eval" on PATH.
func NewTrecEvalScorer(binary string) *TrecEvalScorer {
	if binary == "" {
		binary = "trec_eval"
	}
	return &TrecEvalScorer{Binary: binary}
}

// Score runs trec_eval for each of the dataset's metrics and returns the
// aggregate ("all") values keyed by metric name.
func (s *TrecEvalScorer) Score(ctx context.Context, ds config.Dataset, qrelsPath, runPath string) (map[string]float64, error) {
	out := make(map[string]float64, len(ds.Metrics))
	for _, metric := range ds.Metrics {
		value, err := s.scoreOne(ctx, ds, metric, qrelsPath, runPath)
		if err != nil {
			return nil, err
		}
		out[metric] = value
	}
	return out, nil
}

func (s *TrecEvalScorer) scoreOne(ctx context.Context, ds config.Dataset, metric, qrelsPath, runPath string) (float64, error) {
	args := []string{"-c"}
	// TREC DL passage judgments grade 0..3; recall counts grade 2 and up
	// as relevant.
	if ds.Group == config.GroupTREC && strings.HasPrefix(metric, "recall") {
		args = append(args, "-l", "2")
	}
	args = append(args, "-m", metricArg(metric), qrelsPath, runPath)

	cmd := exec.CommandContext(ctx, s.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("trec_eval %s: %w: %s", metric, err, strings.TrimSpace(stderr.String()))
	}
	return parseAll(stdout.String(), metric)
}

// metricArg converts a metric name to trec_eval's -m syntax: the trailing
// cutoff is dot-separated ("ndcg_cut_10" becomes "ndcg_cut.10").
func metricArg(metric string) string {
	i := strings.LastIndex(metric, "_")
	if i < 0 {
		return metric
	}
	if _, err := strconv.Atoi(metric[i+1:]); err != nil {
		return metric
	}
	return metric[:i] + "." + metric[i+1:]
}

// parseAll extracts the aggregate value for metric from trec_eval output,
// which is tab-separated lines of the form "metric<tab>qid<tab>value".
func parseAll(output, metric string) (float64, error) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		if fields[0] != metric || fields[1] != "all" {
			continue
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return 0, fmt.Errorf("trec_eval %s: bad value %q", metric, fields[2])
		}
		return value, nil
	}
	return 0, fmt.Errorf("trec_eval %s: aggregate value not found in output", metric)
}
