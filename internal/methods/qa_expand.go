package methods

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/reformbench/internal/prompts"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// qaExpand decomposes the query into sub-questions, answers them, then asks
// the model to filter the answers before assembly. Three dependent rounds:
// sub-question generation, answer generation, refinement.
type qaExpand struct {
	bank *prompts.Bank
}

func (m *qaExpand) Spec() Spec {
	return Spec{
		Name: "qa_expand",
		Params: []ParamSpec{
			{Name: "num_subquestions", Kind: KindInt, Default: 3},
			{Name: "query_repeats", Kind: KindInt, Default: 3},
		},
	}
}

func (m *qaExpand) Open(in Input) (Session, error) {
	return &qaExpandSession{
		bank:    m.bank,
		query:   in.Query.Text,
		numSubQ: in.Params.Int("num_subquestions"),
		repeats: in.Params.Int("query_repeats"),
	}, nil
}

type qaExpandSession struct {
	bank    *prompts.Bank
	query   string
	numSubQ int
	repeats int

	round        int
	subquestions []string
	answers      []string
	kept         []int
}

func (s *qaExpandSession) NextRound(prev []string) ([]models.PromptRequest, error) {
	switch s.round {
	case 0:
		s.round++
		msgs, err := s.bank.Render("qa_expand_subq", map[string]string{"query": s.query})
		if err != nil {
			return nil, err
		}
		return []models.PromptRequest{{Messages: msgs}}, nil

	case 1:
		s.round++
		s.subquestions = parseNumberedList(first(prev), s.numSubQ, "question")
		questions, err := numberedJSON(s.subquestions, "question")
		if err != nil {
			return nil, err
		}
		msgs, err := s.bank.Render("qa_expand_answer", map[string]string{"questions": questions})
		if err != nil {
			return nil, err
		}
		return []models.PromptRequest{{Messages: msgs}}, nil

	case 2:
		s.round++
		s.answers = parseNumberedList(first(prev), s.numSubQ, "answer")
		answers, err := numberedJSON(s.answers, "answer")
		if err != nil {
			return nil, err
		}
		msgs, err := s.bank.Render("qa_expand_refine", map[string]string{
			"query":   s.query,
			"answers": answers,
		})
		if err != nil {
			return nil, err
		}
		return []models.PromptRequest{{Messages: msgs}}, nil

	default:
		if s.round == 3 {
			s.round++
			s.kept = keptIndices(first(prev), s.numSubQ)
		}
		return nil, nil
	}
}

func (s *qaExpandSession) Assemble() (string, map[string]any, error) {
	var selected []string
	for _, i := range s.kept {
		if i < len(s.answers) && strings.TrimSpace(s.answers[i]) != "" {
			selected = append(selected, clean(s.answers[i]))
		}
	}
	text := concatRepeat(s.query, strings.Join(selected, " "), s.repeats)
	meta := map[string]any{
		"subquestions": s.subquestions,
		"answers":      s.answers,
		"kept_indices": s.kept,
	}
	return text, meta, nil
}

func first(responses []string) string {
	if len(responses) == 0 {
		return ""
	}
	return responses[0]
}

// numberedJSON renders values as {"prefix1": v1, "prefix2": v2, ...}.
func numberedJSON(values []string, prefix string) (string, error) {
	numbered := make(map[string]string, len(values))
	for i, v := range values {
		numbered[fmt.Sprintf("%s%d", prefix, i+1)] = v
	}
	data, err := json.Marshal(numbered)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseNumberedList extracts n entries keyed prefix1..prefixN from a JSON
// response, falling back to line splitting when the model did not produce
// valid JSON.
func parseNumberedList(raw string, n int, prefix string) []string {
	if data, err := looseJSON(raw); err == nil {
		out := make([]string, n)
		for i := 0; i < n; i++ {
			out[i] = data[fmt.Sprintf("%s%d", prefix, i+1)]
		}
		return out
	}

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "-•* \t")
		if line != "" {
			lines = append(lines, line)
		}
	}
	for len(lines) < n {
		lines = append(lines, "")
	}
	return lines[:n]
}

// keptIndices returns the indices of answers the refinement round retained.
// When the response cannot be parsed, every answer is kept.
func keptIndices(raw string, n int) []int {
	data, err := looseJSON(raw)
	if err != nil {
		kept := make([]int, n)
		for i := range kept {
			kept[i] = i
		}
		return kept
	}
	var kept []int
	for i := 0; i < n; i++ {
		if strings.TrimSpace(data[fmt.Sprintf("answer%d", i+1)]) != "" {
			kept = append(kept, i)
		}
	}
	return kept
}

// looseJSON extracts a flat string map from LLM output, tolerating markdown
// fences around the document.
func looseJSON(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "```") {
		parts := strings.Split(raw, "```")
		if len(parts) >= 2 {
			raw = parts[1]
		}
		raw = strings.TrimPrefix(raw, "json")
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &data); err != nil {
		return nil, err
	}
	return data, nil
}
