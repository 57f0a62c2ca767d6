package artifacts

import (
	"os"
	"strings"
	"testing"

	"github.com/haasonsaas/reformbench/pkg/models"
)

func TestSaveRun_Format(t *testing.T) {
	store := testStore(t)
	key := models.CellKey{Method: "genqr", LLM: "gpt4", Dataset: "dl19", Retriever: "bm25"}

	run := &models.RankedRun{
		Method: "genqr", LLM: "gpt4", Dataset: "dl19", Retriever: "bm25",
		Hits: map[string][]models.ScoredDoc{
			"102": {{DocID: "d7", Score: 3.5}},
			"101": {
				{DocID: "d1", Score: 12.25},
				{DocID: "d2", Score: 11.5},
			},
		},
	}
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if !store.HasRun(key) {
		t.Fatal("HasRun() = false after save")
	}

	data, err := os.ReadFile(store.RunPath(key))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"101 Q0 d1 1 12.250000 genqr.gpt4.bm25",
		"101 Q0 d2 2 11.500000 genqr.gpt4.bm25",
		"102 Q0 d7 1 3.500000 genqr.gpt4.bm25",
	}
	if len(lines) != len(want) {
		t.Fatalf("%d lines, want %d:\n%s", len(lines), len(want), data)
	}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d = %q, want %q", i, line, want[i])
		}
	}
}

func TestLoadRun_RoundTrip(t *testing.T) {
	store := testStore(t)
	key := models.CellKey{Method: "mugi", LLM: "gpt4", Dataset: "scifact", Retriever: "bge"}

	run := &models.RankedRun{
		Method: "mugi", LLM: "gpt4", Dataset: "scifact", Retriever: "bge",
		Hits: map[string][]models.ScoredDoc{
			"q1": {{DocID: "a", Score: 0.9}, {DocID: "b", Score: 0.8}},
		},
	}
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	loaded, err := store.LoadRun(key)
	if err != nil {
		t.Fatalf("LoadRun() error = %v", err)
	}
	hits := loaded.Hits["q1"]
	if len(hits) != 2 {
		t.Fatalf("%d hits, want 2", len(hits))
	}
	if hits[0].DocID != "a" || hits[0].Score != 0.9 {
		t.Errorf("hit 0 = %+v", hits[0])
	}
	if hits[1].DocID != "b" {
		t.Errorf("hit 1 = %+v", hits[1])
	}
}

func TestLoadRun_Missing(t *testing.T) {
	store := testStore(t)
	key := models.CellKey{Method: "x", LLM: "y", Dataset: "z", Retriever: "bm25"}
	if _, err := store.LoadRun(key); err == nil {
		t.Error("LoadRun(missing) error = nil, want error")
	}
}
