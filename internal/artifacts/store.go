// Package artifacts persists pipeline outputs on disk: reformulated query
// sets as two-column TSV, ranked runs in six-column TREC format. Artifacts
// are keyed by their identifying tuple through a fixed directory layout:
//
//	<root>/<llm>/<method>/<dataset>.tsv
//	<root>/<llm>/<method>/runs/<dataset>.<retriever>.run
//
// Existence of an artifact is what lets the orchestrator skip completed
// stages. Finished artifacts are written to a temp file and renamed so a
// half-written file is never mistaken for a complete one.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/reformbench/pkg/models"
)

// Store is an on-disk artifact store rooted at one directory.
type Store struct {
	root string
}

// NewStore creates the artifact root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{root: root}, nil
}

// QueriesPath returns the reformulated-query artifact path for a job key.
func (s *Store) QueriesPath(key models.CellKey) string {
	return filepath.Join(s.root, key.LLM, key.Method, key.Dataset+".tsv")
}

// RunPath returns the ranked-run artifact path for a cell key.
func (s *Store) RunPath(key models.CellKey) string {
	return filepath.Join(s.root, key.LLM, key.Method, "runs", key.Dataset+"."+key.Retriever+".run")
}

// HasQueries reports whether the job's reformulated artifact exists.
func (s *Store) HasQueries(key models.CellKey) bool {
	return exists(s.QueriesPath(key))
}

// HasRun reports whether the cell's ranked-run artifact exists.
func (s *Store) HasRun(key models.CellKey) bool {
	return exists(s.RunPath(key))
}

// RemoveQueries deletes the job artifact and its partial file. Used by
// force-recompute.
func (s *Store) RemoveQueries(key models.CellKey) error {
	path := s.QueriesPath(key)
	for _, p := range []string{path, path + partialSuffix, metaPath(path)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// RemoveRun deletes the cell's run artifact. Used by force-recompute.
func (s *Store) RemoveRun(key models.CellKey) error {
	if err := os.Remove(s.RunPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sanitize replaces record-separator characters inside a field with a
// single space. This is lossy and not reversible; it keeps every persisted
// row at exactly two fields.
func Sanitize(text string) string {
	replacer := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")
	text = replacer.Replace(text)
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	return strings.TrimSpace(text)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
