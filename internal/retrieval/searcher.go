// Package retrieval talks to the search service that hosts the prebuilt
// sparse and dense indexes. One Searcher is bound to a (retriever, dataset)
// pair; the Driver fans a reformulated query set out across bounded workers
// and assembles a ranked run.
package retrieval

import (
	"context"
	"errors"

	"github.com/haasonsaas/reformbench/pkg/models"
)

// ErrUnavailable marks a retriever backend that cannot serve requests at
// all: connection refused, missing index, or persistent server errors. The
// caller aborts the (cell, retriever) pair instead of retrying per query.
var ErrUnavailable = errors.New("retriever unavailable")

// Queries for dense indexes carry an instruction prefix; the document side
// is encoded without one.
const densePrefix = "Represent this sentence for searching relevant passages: "

// Searcher retrieves a ranked document list for one query.
type Searcher interface {
	// Search returns up to depth documents ordered by descending score.
	Search(ctx context.Context, query string, depth int) ([]models.ScoredDoc, error)

	// Retriever names the backend this searcher is bound to.
	Retriever() string
}
