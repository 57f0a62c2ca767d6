package models

// ScoredDoc is one retrieved document with its retrieval score.
type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// RankedRun is the output of one retrieval job: for each query id, an
// ordered list of (doc, score) pairs with non-increasing scores, up to the
// configured depth. Queries that produced no candidates are absent.
type RankedRun struct {
	Method    string                 `json:"method"`
	LLM       string                 `json:"llm"`
	Dataset   string                 `json:"dataset"`
	Retriever string                 `json:"retriever"`
	Hits      map[string][]ScoredDoc `json:"hits"`
}

// Tag returns the run tag written into TREC run files.
func (r *RankedRun) Tag() string {
	return r.Method + "." + r.LLM + "." + r.Retriever
}
