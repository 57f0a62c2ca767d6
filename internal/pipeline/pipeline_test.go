package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/reformbench/internal/artifacts"
	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/internal/evaluate"
	"github.com/haasonsaas/reformbench/internal/llm"
	"github.com/haasonsaas/reformbench/internal/methods"
	"github.com/haasonsaas/reformbench/internal/prompts"
	"github.com/haasonsaas/reformbench/internal/results"
	"github.com/haasonsaas/reformbench/internal/retrieval"
	"github.com/haasonsaas/reformbench/pkg/models"
)

type countingClient struct {
	mu    sync.Mutex
	calls int
}

func (c *countingClient) Generate(ctx context.Context, req models.PromptRequest) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return "solar energy production capacity", nil
}

func (c *countingClient) Name() string { return "fake" }

func (c *countingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixedScorer struct {
	values map[string]float64
}

func (f *fixedScorer) Score(ctx context.Context, ds config.Dataset, qrelsPath, runPath string) (map[string]float64, error) {
	return f.values, nil
}

// harness wires a full orchestrator against a fake search service, a fake
// LLM client, and a fake scorer, sharing artifact and result stores across
// rebuilds so reruns exercise the caching paths.
type harness struct {
	cfg     *config.Config
	client  *countingClient
	store   *artifacts.Store
	results *results.Store
}

func newHarness(t *testing.T, searchHandler http.HandlerFunc) *harness {
	t.Helper()
	root := t.TempDir()

	queriesDir := filepath.Join(root, "queries")
	if err := os.MkdirAll(queriesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	topics := "101\twhat is solar power\n102\thow do tides work\n"
	if err := os.WriteFile(filepath.Join(queriesDir, "dl19.tsv"), []byte(topics), 0o644); err != nil {
		t.Fatal(err)
	}

	qrelsDir := filepath.Join(root, "qrels")
	if err := os.MkdirAll(qrelsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(qrelsDir, "dl19.txt"), []byte("101 0 d1 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(searchHandler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Methods = map[string]config.MethodParams{"q2k": nil}
	cfg.LLMs = map[string]config.LLMBackend{"fake": {Provider: "openai", Model: "fake"}}
	cfg.Datasets = []string{"dl19"}
	cfg.Retrievers = []string{"bm25"}
	cfg.Retrieval.Endpoint = srv.URL
	cfg.Retrieval.Depth = 10
	cfg.Execution.MaxAttempts = 2
	cfg.Execution.RetryInitialDelay = time.Millisecond
	cfg.Execution.RetryMaxDelay = 5 * time.Millisecond
	cfg.Paths.Queries = queriesDir
	cfg.Paths.Qrels = qrelsDir
	cfg.Paths.Output = filepath.Join(root, "outputs")

	store, err := artifacts.NewStore(cfg.Paths.Output)
	if err != nil {
		t.Fatal(err)
	}
	resultsStore, err := results.Open(filepath.Join(root, "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resultsStore.Close() })

	return &harness{
		cfg:     cfg,
		client:  &countingClient{},
		store:   store,
		results: resultsStore,
	}
}

// orchestrator builds a fresh orchestrator over the harness's shared stores.
func (h *harness) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	bank, err := prompts.Parse([]byte(`{
		"q2k": {"messages": [{"role": "user", "content": "Keywords: {query}"}]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	registry := methods.NewRegistry(bank)

	searchClient := retrieval.NewClient(h.cfg.Retrieval)
	driver := retrieval.NewDriver(searchClient, h.cfg.Retrieval,
		make(chan struct{}, h.cfg.Execution.RetrievalConcurrency), nil, nil)

	scorer := &fixedScorer{values: map[string]float64{"ndcg_cut_10": 0.73, "recall_1000": 0.81}}
	evaluator := evaluate.NewEvaluator(scorer, h.cfg.Paths.Qrels, nil, nil)

	o, err := New(h.cfg, Deps{
		Registry:  registry,
		Store:     h.store,
		Retriever: driver,
		Evaluator: evaluator,
		Results:   h.results,
		Clients:   map[string]llm.Client{"fake": h.client},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func okSearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"hits": []map[string]any{
			{"docid": "d1", "score": 12.5},
			{"docid": "d2", "score": 11.0},
		}})
	}
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, okSearchHandler())
	summary, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Failed() {
		t.Fatalf("failures = %+v", summary.Failures)
	}
	if summary.CellsDone != 1 {
		t.Errorf("CellsDone = %d, want 1", summary.CellsDone)
	}
	if summary.RunID == "" {
		t.Error("summary missing run id")
	}

	key := models.CellKey{Method: "q2k", LLM: "fake", Dataset: "dl19", Retriever: "bm25"}
	if !h.store.HasQueries(key.JobKey()) {
		t.Error("reformulation artifact missing")
	}
	if !h.store.HasRun(key) {
		t.Error("run artifact missing")
	}

	values, err := h.results.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if values["ndcg_cut_10"] != 0.73 || values["recall_1000"] != 0.81 {
		t.Errorf("recorded metrics = %+v", values)
	}

	// One call per query for a single-call method.
	if got := h.client.callCount(); got != 2 {
		t.Errorf("llm calls = %d, want 2", got)
	}
}

func TestRun_RerunReusesArtifacts(t *testing.T) {
	h := newHarness(t, okSearchHandler())
	if summary, err := h.orchestrator(t).Run(context.Background()); err != nil || summary.Failed() {
		t.Fatalf("first run: err = %v, failures = %+v", err, summary.Failures)
	}
	callsAfterFirst := h.client.callCount()

	summary, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() rerun error = %v", err)
	}
	if summary.Failed() {
		t.Fatalf("rerun failures = %+v", summary.Failures)
	}
	if summary.ReformulationsReused != 1 {
		t.Errorf("ReformulationsReused = %d, want 1", summary.ReformulationsReused)
	}
	if summary.RunsReused != 1 {
		t.Errorf("RunsReused = %d, want 1", summary.RunsReused)
	}
	if got := h.client.callCount(); got != callsAfterFirst {
		t.Errorf("rerun made %d extra llm calls", got-callsAfterFirst)
	}
}

func TestRun_ForceRecomputes(t *testing.T) {
	h := newHarness(t, okSearchHandler())
	if summary, err := h.orchestrator(t).Run(context.Background()); err != nil || summary.Failed() {
		t.Fatalf("first run: err = %v, failures = %+v", err, summary.Failures)
	}
	callsAfterFirst := h.client.callCount()

	h.cfg.Execution.Force = true
	summary, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() forced rerun error = %v", err)
	}
	if summary.ReformulationsReused != 0 || summary.RunsReused != 0 {
		t.Errorf("forced rerun reused artifacts: %+v", summary)
	}
	if got := h.client.callCount(); got <= callsAfterFirst {
		t.Error("forced rerun made no new llm calls")
	}
}

func TestRun_RetrieverOutageFailsCellNotGrid(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index offline", http.StatusInternalServerError)
	})
	summary, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.CellsDone != 0 {
		t.Errorf("CellsDone = %d, want 0", summary.CellsDone)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("failures = %+v, want exactly one", summary.Failures)
	}
	f := summary.Failures[0]
	if f.Stage != StageRetrieve {
		t.Errorf("failure stage = %s, want retrieve", f.Stage)
	}
	if f.Key.Retriever != "bm25" {
		t.Errorf("failure key = %+v", f.Key)
	}

	// The reformulation artifact survives for the next attempt.
	key := models.CellKey{Method: "q2k", LLM: "fake", Dataset: "dl19"}
	if !h.store.HasQueries(key) {
		t.Error("reformulation artifact missing after retrieval failure")
	}
}

func TestRun_OneRetrieverDownOthersComplete(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Index string `json:"index"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if strings.Contains(req.Index, "splade") {
			http.Error(w, "index offline", http.StatusInternalServerError)
			return
		}
		okSearchHandler()(w, r)
	})
	h.cfg.Retrievers = []string{"bm25", "splade", "bge"}

	summary, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.CellsDone != 2 {
		t.Errorf("CellsDone = %d, want 2", summary.CellsDone)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("failures = %+v, want only the splade cell", summary.Failures)
	}
	f := summary.Failures[0]
	if f.Key.Retriever != "splade" || f.Stage != StageRetrieve {
		t.Errorf("failure = %+v, want splade at the retrieve stage", f)
	}

	// The healthy retrievers produced artifacts and recorded results.
	for _, retriever := range []string{"bm25", "bge"} {
		key := models.CellKey{Method: "q2k", LLM: "fake", Dataset: "dl19", Retriever: retriever}
		if !h.store.HasRun(key) {
			t.Errorf("run artifact missing for %s", retriever)
		}
		values, err := h.results.Get(context.Background(), key)
		if err != nil {
			t.Fatal(err)
		}
		if values["ndcg_cut_10"] != 0.73 {
			t.Errorf("%s metrics = %+v", retriever, values)
		}
	}
	failedKey := models.CellKey{Method: "q2k", LLM: "fake", Dataset: "dl19", Retriever: "splade"}
	if h.store.HasRun(failedKey) {
		t.Error("run artifact written for the failed retriever")
	}
}

func TestRun_MissingJudgmentsFailsAtEvaluate(t *testing.T) {
	h := newHarness(t, okSearchHandler())
	h.cfg.Paths.Qrels = t.TempDir() // no judgment files

	summary, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Stage != StageEvaluate {
		t.Fatalf("failures = %+v, want one evaluate-stage failure", summary.Failures)
	}
}

func TestStages_RetrieveRequiresReformulation(t *testing.T) {
	h := newHarness(t, okSearchHandler())
	o := h.orchestrator(t)

	key := models.CellKey{Method: "q2k", LLM: "fake", Dataset: "dl19", Retriever: "bm25"}
	if _, err := o.Retrieve(context.Background(), key); err == nil {
		t.Error("Retrieve() error = nil, want missing-queries error")
	}
	if _, err := o.EvaluateCell(context.Background(), key); err == nil {
		t.Error("EvaluateCell() error = nil, want missing-run error")
	}
}
