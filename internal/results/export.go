package results

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ExportCSV writes the full results table as CSV, one row per metric value,
// in key order.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.All(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"method", "llm", "dataset", "retriever", "metric", "value"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		k := rec.Key
		for _, metric := range sortedMetrics(rec.Metrics) {
			row := []string{
				k.Method, k.LLM, k.Dataset, k.Retriever,
				metric, strconv.FormatFloat(rec.Metrics[metric], 'f', 4, 64),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
