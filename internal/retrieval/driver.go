package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/internal/observability"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// Driver runs the retrieval stage: one reformulated query set against one
// retriever backend. Searches fan out under a shared concurrency limit; the
// first error aborts the run so a dead backend fails the (cell, retriever)
// pair quickly instead of timing out once per query.
type Driver struct {
	client  *Client
	depth   int
	logger  *slog.Logger
	metrics *observability.Metrics

	sem chan struct{}
}

// NewDriver builds a driver. The semaphore is shared across cells so the
// global retrieval limit holds regardless of how many runs are in flight.
func NewDriver(client *Client, cfg config.RetrievalConfig, sem chan struct{}, logger *slog.Logger, metrics *observability.Metrics) *Driver {
	if sem == nil {
		sem = make(chan struct{}, 2)
	}
	if logger == nil {
		logger = slog.Default()
	}
	depth := cfg.Depth
	if depth <= 0 {
		depth = 1000
	}
	return &Driver{client: client, depth: depth, logger: logger, metrics: metrics, sem: sem}
}

// Run retrieves ranked documents for every query in the set and returns the
// assembled run. The run covers exactly the input query ids.
func (d *Driver) Run(ctx context.Context, key models.CellKey, ds config.Dataset, set *models.ReformulatedQuerySet) (*models.RankedRun, error) {
	searcher := d.client.Searcher(key.Retriever, ds)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hits := make([][]models.ScoredDoc, len(set.Queries))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, q := range set.Queries {
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func(idx int, q models.ReformulatedQuery) {
			defer wg.Done()
			defer func() { <-d.sem }()

			start := time.Now()
			docs, err := searcher.Search(ctx, q.Text, d.depth)
			if d.metrics != nil {
				status := "success"
				if err != nil {
					status = "error"
				}
				d.metrics.RecordRetrieval(key.Retriever, status, time.Since(start).Seconds())
			}
			if err != nil {
				fail(fmt.Errorf("retrieve %s query %s: %w", key.Retriever, q.ID, err))
				return
			}
			hits[idx] = docs
		}(i, q)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := &models.RankedRun{
		Method:    key.Method,
		LLM:       key.LLM,
		Dataset:   key.Dataset,
		Retriever: key.Retriever,
		Hits:      make(map[string][]models.ScoredDoc, len(set.Queries)),
	}
	for i, q := range set.Queries {
		run.Hits[q.ID] = dropSelfHit(ds, q.ID, hits[i])
	}
	return run, nil
}

// dropSelfHit removes the query's own document from BEIR results. Some BEIR
// collections draw queries from the corpus, and a query must not count
// itself as a retrieved document.
func dropSelfHit(ds config.Dataset, qid string, docs []models.ScoredDoc) []models.ScoredDoc {
	if ds.Group != config.GroupBEIR {
		return docs
	}
	for i, doc := range docs {
		if doc.DocID == qid {
			return append(docs[:i:i], docs[i+1:]...)
		}
	}
	return docs
}
