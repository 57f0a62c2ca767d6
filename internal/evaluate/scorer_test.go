package evaluate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/pkg/models"
)

func TestMetricArg(t *testing.T) {
	tests := []struct {
		metric string
		want   string
	}{
		{"ndcg_cut_10", "ndcg_cut.10"},
		{"recall_1000", "recall.1000"},
		{"recall_100", "recall.100"},
		{"map", "map"},
		{"ndcg_cut", "ndcg_cut"},
	}
	for _, tt := range tests {
		if got := metricArg(tt.metric); got != tt.want {
			t.Errorf("metricArg(%q) = %q, want %q", tt.metric, got, tt.want)
		}
	}
}

func TestParseAll(t *testing.T) {
	output := "ndcg_cut_10           \t305\t0.6011\n" +
		"ndcg_cut_10           \t833\t0.4190\n" +
		"ndcg_cut_10           \tall\t0.5120\n"

	value, err := parseAll(output, "ndcg_cut_10")
	if err != nil {
		t.Fatalf("parseAll() error = %v", err)
	}
	if value != 0.5120 {
		t.Errorf("parseAll() = %v, want 0.5120", value)
	}
}

func TestParseAll_MissingAggregate(t *testing.T) {
	output := "ndcg_cut_10\t305\t0.6011\n"
	if _, err := parseAll(output, "ndcg_cut_10"); err == nil {
		t.Error("parseAll() error = nil, want error for missing aggregate")
	}
}

func TestParseAll_BadValue(t *testing.T) {
	if _, err := parseAll("map\tall\tn/a\n", "map"); err == nil {
		t.Error("parseAll() error = nil, want error for unparseable value")
	}
}

// fakeScorer records the paths it was handed and returns fixed values.
type fakeScorer struct {
	qrelsPath string
	runPath   string
	values    map[string]float64
	err       error
}

func (f *fakeScorer) Score(ctx context.Context, ds config.Dataset, qrelsPath, runPath string) (map[string]float64, error) {
	f.qrelsPath = qrelsPath
	f.runPath = runPath
	return f.values, f.err
}

func TestQrelsPath(t *testing.T) {
	dir := t.TempDir()
	eval := NewEvaluator(&fakeScorer{}, dir, nil, nil)

	ds := config.Dataset{Name: "dl19", Qrels: "dl19-passage"}

	// Nothing on disk yet.
	if _, err := eval.QrelsPath(ds); !errors.Is(err, ErrMissingJudgments) {
		t.Fatalf("QrelsPath() error = %v, want ErrMissingJudgments", err)
	}

	standard := filepath.Join(dir, "qrels.dl19-passage.txt")
	if err := os.WriteFile(standard, []byte("305 0 d1 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := eval.QrelsPath(ds)
	if err != nil {
		t.Fatalf("QrelsPath() error = %v", err)
	}
	if got != standard {
		t.Errorf("QrelsPath() = %q, want standard symbol file", got)
	}

	// A file named after the dataset takes precedence.
	override := filepath.Join(dir, "dl19.txt")
	if err := os.WriteFile(override, []byte("305 0 d1 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = eval.QrelsPath(ds)
	if err != nil {
		t.Fatalf("QrelsPath() error = %v", err)
	}
	if got != override {
		t.Errorf("QrelsPath() = %q, want dataset-named override", got)
	}
}

func TestQrelsPath_UserSuppliedOnly(t *testing.T) {
	dir := t.TempDir()
	eval := NewEvaluator(&fakeScorer{}, dir, nil, nil)

	// dlhard has no standard symbol; only the dataset-named file works.
	ds := config.Dataset{Name: "dlhard"}
	if _, err := eval.QrelsPath(ds); !errors.Is(err, ErrMissingJudgments) {
		t.Fatalf("QrelsPath() error = %v, want ErrMissingJudgments", err)
	}

	path := filepath.Join(dir, "dlhard.txt")
	if err := os.WriteFile(path, []byte("1 0 d1 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := eval.QrelsPath(ds)
	if err != nil {
		t.Fatalf("QrelsPath() error = %v", err)
	}
	if got != path {
		t.Errorf("QrelsPath() = %q, want %q", got, path)
	}
}

func TestEvaluate(t *testing.T) {
	dir := t.TempDir()
	ds := config.Dataset{Name: "dl19", Qrels: "dl19-passage", Metrics: []string{"ndcg_cut_10"}}
	qrels := filepath.Join(dir, "dl19.txt")
	if err := os.WriteFile(qrels, []byte("305 0 d1 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	scorer := &fakeScorer{values: map[string]float64{"ndcg_cut_10": 0.5120, "recall_1000": 0.7413}}
	eval := NewEvaluator(scorer, dir, nil, nil)

	key := models.CellKey{Method: "genqr", LLM: "gpt4", Dataset: "dl19", Retriever: "bm25"}
	rec, err := eval.Evaluate(context.Background(), key, ds, "/runs/dl19.bm25.run")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if rec.Key != key {
		t.Errorf("record key = %+v", rec.Key)
	}
	if rec.Metrics["ndcg_cut_10"] != 0.5120 {
		t.Errorf("metrics = %+v", rec.Metrics)
	}
	if scorer.qrelsPath != qrels || scorer.runPath != "/runs/dl19.bm25.run" {
		t.Errorf("scorer saw (%q, %q)", scorer.qrelsPath, scorer.runPath)
	}
}

func TestEvaluate_ScorerError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dl19.txt"), []byte("305 0 d1 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	scorer := &fakeScorer{err: errors.New("trec_eval exploded")}
	eval := NewEvaluator(scorer, dir, nil, nil)

	ds := config.Dataset{Name: "dl19", Metrics: []string{"map"}}
	key := models.CellKey{Method: "genqr", LLM: "gpt4", Dataset: "dl19", Retriever: "bm25"}
	if _, err := eval.Evaluate(context.Background(), key, ds, "run"); err == nil {
		t.Error("Evaluate() error = nil, want scorer error surfaced")
	}
}
