package models

// Query is a single benchmark topic: an id and its original text.
type Query struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuerySet is an ordered, immutable collection of queries loaded from a
// topics file. Query ids are unique within a set.
type QuerySet struct {
	Dataset string  `json:"dataset"`
	Queries []Query `json:"queries"`
}

// Len returns the number of queries in the set.
func (s *QuerySet) Len() int { return len(s.Queries) }

// IDs returns the query ids in set order.
func (s *QuerySet) IDs() []string {
	ids := make([]string, len(s.Queries))
	for i, q := range s.Queries {
		ids[i] = q.ID
	}
	return ids
}

// ReformulatedQuery is the per-query output of a reformulation method.
type ReformulatedQuery struct {
	ID       string `json:"id"`
	Original string `json:"original"`
	Text     string `json:"text"`

	// Fallback is true when generation failed for this query and the
	// original text was substituted instead.
	Fallback bool `json:"fallback,omitempty"`

	// Metadata carries method-specific intermediate outputs (generated
	// keywords, pseudo-documents, kept answer indices). Informational only.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ReformulatedQuerySet is the persisted artifact of one reformulation job,
// keyed by (method, llm, dataset). It covers exactly the query ids of its
// source QuerySet, in source order.
type ReformulatedQuerySet struct {
	Method  string              `json:"method"`
	LLM     string              `json:"llm"`
	Dataset string              `json:"dataset"`
	Queries []ReformulatedQuery `json:"queries"`
}

// Fallbacks returns the ids of queries that carry substituted original text.
func (s *ReformulatedQuerySet) Fallbacks() []string {
	var ids []string
	for _, q := range s.Queries {
		if q.Fallback {
			ids = append(ids, q.ID)
		}
	}
	return ids
}
