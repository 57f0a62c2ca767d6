package models

import "fmt"

// CellKey identifies one cell of the experiment grid. Every persisted
// artifact and results row is keyed by some prefix of this tuple.
type CellKey struct {
	Method    string `json:"method"`
	LLM       string `json:"llm"`
	Dataset   string `json:"dataset"`
	Retriever string `json:"retriever"`
}

// String renders the key as method/llm/dataset/retriever.
func (k CellKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Method, k.LLM, k.Dataset, k.Retriever)
}

// JobKey returns the key of the reformulation job this cell depends on.
// Retrieval and evaluation share one reformulated artifact per job key.
func (k CellKey) JobKey() CellKey {
	return CellKey{Method: k.Method, LLM: k.LLM, Dataset: k.Dataset}
}

// EvaluationRecord is one row of the aggregated results table: metric values
// for a fully-identified grid cell. Recomputing a cell overwrites its row.
type EvaluationRecord struct {
	Key     CellKey            `json:"key"`
	Metrics map[string]float64 `json:"metrics"`
}
