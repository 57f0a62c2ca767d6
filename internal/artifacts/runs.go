package artifacts

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/haasonsaas/reformbench/pkg/models"
)

// SaveRun persists a ranked run in six-column TREC format:
// qid Q0 docid rank score tag. Hits are written in rank order per query,
// queries in sorted id order for stable files.
func (s *Store) SaveRun(run *models.RankedRun) error {
	qids := make([]string, 0, len(run.Hits))
	for qid := range run.Hits {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	tag := run.Tag()
	var sb strings.Builder
	for _, qid := range qids {
		for rank, hit := range run.Hits[qid] {
			fmt.Fprintf(&sb, "%s Q0 %s %d %.6f %s\n", qid, hit.DocID, rank+1, hit.Score, tag)
		}
	}
	return writeAtomic(s.RunPath(models.CellKey{
		Method:    run.Method,
		LLM:       run.LLM,
		Dataset:   run.Dataset,
		Retriever: run.Retriever,
	}), []byte(sb.String()))
}

// LoadRun reads a persisted TREC run file back into a RankedRun.
func (s *Store) LoadRun(key models.CellKey) (*models.RankedRun, error) {
	f, err := os.Open(s.RunPath(key))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	run := &models.RankedRun{
		Method:    key.Method,
		LLM:       key.LLM,
		Dataset:   key.Dataset,
		Retriever: key.Retriever,
		Hits:      make(map[string][]models.ScoredDoc),
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		score, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed run line %q: %w", scanner.Text(), err)
		}
		qid := fields[0]
		run.Hits[qid] = append(run.Hits[qid], models.ScoredDoc{DocID: fields[2], Score: score})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return run, nil
}
