package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// ErrNoContents is returned when the search service omits document text
// from its hits. Corpus-grounded methods cannot run without it.
var ErrNoContents = errors.New("search service returned no document contents")

// Document is one retrieved passage with its text, used as prompt context.
type Document struct {
	ID   string
	Text string
}

// ContentSearcher is implemented by searchers able to return document text
// alongside scores.
type ContentSearcher interface {
	SearchContents(ctx context.Context, query string, depth int) ([]Document, error)
}

// FetchContexts retrieves the top-k passage texts for every query, keyed by
// query id. Corpus-grounded methods prompt with these passages. Searches use
// the original query text; retrieval errors abort the whole fetch since a
// partial context map would silently degrade the method.
func (d *Driver) FetchContexts(ctx context.Context, retriever string, ds config.Dataset, qs *models.QuerySet, k int) (map[string][]string, error) {
	searcher, ok := d.client.Searcher(retriever, ds).(ContentSearcher)
	if !ok {
		return nil, fmt.Errorf("retriever %s cannot return document contents", retriever)
	}
	if k <= 0 {
		k = 10
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	contexts := make(map[string][]string, qs.Len())
	var (
		mu       sync.Mutex
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

	for _, q := range qs.Queries {
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
		go func(q models.Query) {
			defer wg.Done()
			defer func() { <-d.sem }()

			docs, err := searcher.SearchContents(ctx, q.Text, k)
			if err != nil {
				fail(fmt.Errorf("fetch contexts for query %s: %w", q.ID, err))
				return
			}
			passages := make([]string, 0, len(docs))
			for _, doc := range docs {
				if text := strings.TrimSpace(doc.Text); text != "" {
					passages = append(passages, text)
				}
			}
			if len(passages) == 0 && len(docs) > 0 {
				fail(fmt.Errorf("query %s: %w", q.ID, ErrNoContents))
				return
			}
			mu.Lock()
			contexts[q.ID] = passages
			mu.Unlock()
		}(q)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return contexts, nil
}
