package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// Client issues searches against the HTTP search service. The service
// exposes one POST /search endpoint; the index identifier selects the
// backend (inverted, impact, or dense) on the service side.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a search client from retrieval configuration.
func NewClient(cfg config.RetrievalConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

// Searcher binds the client to one (retriever, dataset) pair.
func (c *Client) Searcher(retriever string, ds config.Dataset) Searcher {
	s := &httpSearcher{
		client:    c,
		retriever: retriever,
		index:     ds.IndexFor(retriever),
	}
	switch retriever {
	case "bm25":
		s.k1, s.b = ds.BM25K1, ds.BM25B
	case "bge":
		s.queryPrefix = densePrefix
	}
	return s
}

type httpSearcher struct {
	client    *Client
	retriever string
	index     string

	k1, b       float64
	queryPrefix string
}

func (s *httpSearcher) Retriever() string { return s.retriever }

type searchRequest struct {
	Index    string  `json:"index"`
	Query    string  `json:"query"`
	K        int     `json:"k"`
	BM25K1   float64 `json:"bm25_k1,omitempty"`
	BM25B    float64 `json:"bm25_b,omitempty"`
	Contents bool    `json:"contents,omitempty"`
}

type searchHit struct {
	DocID    string  `json:"docid"`
	Score    float64 `json:"score"`
	Contents string  `json:"contents,omitempty"`
}

type searchResponse struct {
	Hits []searchHit `json:"hits"`
}

func (s *httpSearcher) Search(ctx context.Context, query string, depth int) ([]models.ScoredDoc, error) {
	hits, err := s.search(ctx, query, depth, false)
	if err != nil {
		return nil, err
	}
	docs := make([]models.ScoredDoc, len(hits))
	for i, h := range hits {
		docs[i] = models.ScoredDoc{DocID: h.DocID, Score: h.Score}
	}
	return docs, nil
}

// SearchContents is like Search but asks the service to include document
// text, for context retrieval.
func (s *httpSearcher) SearchContents(ctx context.Context, query string, depth int) ([]Document, error) {
	hits, err := s.search(ctx, query, depth, true)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = Document{ID: h.DocID, Text: h.Contents}
	}
	return docs, nil
}

func (s *httpSearcher) search(ctx context.Context, query string, depth int, contents bool) ([]searchHit, error) {
	body, err := json.Marshal(searchRequest{
		Index:    s.index,
		Query:    s.queryPrefix + query,
		K:        depth,
		BM25K1:   s.k1,
		BM25B:    s.b,
		Contents: contents,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.endpoint+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, s.retriever, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusNotFound {
			// 404 means the index is not loaded on the service.
			return nil, fmt.Errorf("%w: %s: status %d: %s", ErrUnavailable, s.retriever, resp.StatusCode, truncate(data, 200))
		}
		return nil, fmt.Errorf("search %s: status %d: %s", s.index, resp.StatusCode, truncate(data, 200))
	}

	var parsed searchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Hits, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
