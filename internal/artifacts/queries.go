package artifacts

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/reformbench/pkg/models"
)

const partialSuffix = ".partial"

// SaveQueries persists a completed reformulated query set atomically and
// removes any partial file left by an interrupted run. Fallback flags are
// kept in a sidecar so the TSV stays two-column.
func (s *Store) SaveQueries(set *models.ReformulatedQuerySet) error {
	key := models.CellKey{Method: set.Method, LLM: set.LLM, Dataset: set.Dataset}
	path := s.QueriesPath(key)

	var sb strings.Builder
	for _, q := range set.Queries {
		sb.WriteString(q.ID)
		sb.WriteString("\t")
		sb.WriteString(Sanitize(q.Text))
		sb.WriteString("\n")
	}
	if err := writeAtomic(path, []byte(sb.String())); err != nil {
		return err
	}

	if fallbacks := set.Fallbacks(); len(fallbacks) > 0 {
		meta, err := json.Marshal(map[string]any{"fallback_ids": fallbacks})
		if err != nil {
			return err
		}
		if err := writeAtomic(metaPath(path), meta); err != nil {
			return err
		}
	}

	os.Remove(path + partialSuffix) //nolint:errcheck
	return nil
}

// LoadQueries reads a persisted reformulated query set.
func (s *Store) LoadQueries(key models.CellKey) (*models.ReformulatedQuerySet, error) {
	path := s.QueriesPath(key)
	rows, err := readTSV(path)
	if err != nil {
		return nil, err
	}

	set := &models.ReformulatedQuerySet{
		Method:  key.Method,
		LLM:     key.LLM,
		Dataset: key.Dataset,
	}
	fallbacks := loadFallbacks(metaPath(path))
	for _, row := range rows {
		set.Queries = append(set.Queries, models.ReformulatedQuery{
			ID:       row[0],
			Text:     row[1],
			Fallback: fallbacks[row[0]],
		})
	}
	return set, nil
}

// LoadPartialQueries returns the rows persisted by an interrupted run,
// keyed by query id. A missing partial file yields an empty map.
func (s *Store) LoadPartialQueries(key models.CellKey) (map[string]models.ReformulatedQuery, error) {
	rows, err := readTSV(s.QueriesPath(key) + partialSuffix)
	if os.IsNotExist(err) {
		return map[string]models.ReformulatedQuery{}, nil
	}
	if err != nil {
		return nil, err
	}
	partial := make(map[string]models.ReformulatedQuery, len(rows))
	for _, row := range rows {
		partial[row[0]] = models.ReformulatedQuery{ID: row[0], Text: row[1]}
	}
	return partial, nil
}

// AppendPartialQuery persists one completed row so cancellation never loses
// finished work. Partial rows are append-only; the final artifact rewrites
// them in source order.
func (s *Store) AppendPartialQuery(key models.CellKey, q models.ReformulatedQuery) error {
	path := s.QueriesPath(key) + partialSuffix
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open partial artifact: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\t%s\n", q.ID, Sanitize(q.Text))
	return err
}

// ReadQueryTSV loads a topics file of qid<TAB>text rows into a QuerySet.
// Blank lines and rows with empty text are skipped.
func ReadQueryTSV(path, dataset string) (*models.QuerySet, error) {
	rows, err := readTSV(path)
	if err != nil {
		return nil, err
	}
	set := &models.QuerySet{Dataset: dataset}
	for _, row := range rows {
		set.Queries = append(set.Queries, models.Query{ID: row[0], Text: row[1]})
	}
	return set, nil
}

func readTSV(path string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][2]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, text, ok := strings.Cut(line, "\t")
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		rows = append(rows, [2]string{strings.TrimSpace(id), strings.TrimSpace(text)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

func metaPath(queriesPath string) string {
	return strings.TrimSuffix(queriesPath, ".tsv") + ".meta.json"
}

func loadFallbacks(path string) map[string]bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var meta struct {
		FallbackIDs []string `json:"fallback_ids"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	flags := make(map[string]bool, len(meta.FallbackIDs))
	for _, id := range meta.FallbackIDs {
		flags[id] = true
	}
	return flags
}
