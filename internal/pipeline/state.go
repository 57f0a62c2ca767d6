package pipeline

import "github.com/haasonsaas/reformbench/pkg/models"

// Stage names the pipeline stage a cell was in when it failed.
type Stage string

const (
	StageReformulate Stage = "reformulate"
	StageRetrieve    Stage = "retrieve"
	StageEvaluate    Stage = "evaluate"
)

// CellFailure records one failed grid cell. The grid itself never aborts;
// failures are collected and reported in the summary.
type CellFailure struct {
	Key    models.CellKey
	Stage  Stage
	Reason string
}

// Summary is the outcome of one pipeline run over the full grid.
type Summary struct {
	RunID string

	// CellsDone counts cells whose metrics reached the results table.
	CellsDone int

	// ReformulationsReused and RunsReused count stages satisfied from
	// existing artifacts without new LLM calls or searches.
	ReformulationsReused int
	RunsReused           int

	Failures []CellFailure
}

// Failed reports whether any cell failed.
func (s *Summary) Failed() bool { return len(s.Failures) > 0 }
