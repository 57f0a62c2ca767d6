package methods

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/reformbench/internal/prompts"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// csqe combines two expansion signals: passages generated from the model's
// parametric knowledge alone, and key sentences extracted from initially
// retrieved documents. Both corpora-grounded, both issued in one round.
type csqe struct {
	bank *prompts.Bank
}

func (m *csqe) Spec() Spec {
	return Spec{
		Name:         "csqe",
		NeedsContext: true,
		Params: []ParamSpec{
			{Name: "n_expansions", Kind: KindInt, Default: 2},
			{Name: "context_k", Kind: KindInt, Default: 10},
		},
	}
}

func (m *csqe) Open(in Input) (Session, error) {
	if len(in.Contexts) == 0 {
		return nil, ErrMissingContext
	}
	// Assemble splits responses at nGen, so the floor must match the one
	// repeated() applies when building the request batches.
	nGen := in.Params.Int("n_expansions")
	if nGen < 1 {
		nGen = 1
	}
	blob, used := contextBlob(in.Contexts, in.Params.Int("context_k"))

	knowledge, err := m.bank.Render("keqe", map[string]string{"query": in.Query.Text})
	if err != nil {
		return nil, err
	}
	extraction, err := m.bank.Render("csqe", map[string]string{
		"query":    in.Query.Text,
		"contexts": blob,
	})
	if err != nil {
		return nil, err
	}

	// First nGen requests generate knowledge passages, the rest extract
	// sentences from the retrieved contexts.
	requests := append(
		repeated(models.PromptRequest{Messages: knowledge}, nGen),
		repeated(models.PromptRequest{Messages: extraction}, nGen)...,
	)

	query := in.Query.Text
	return &singleRound{
		requests: requests,
		assemble: func(responses []string) (string, map[string]any, error) {
			passages := nonEmpty(responses[:nGen])
			var sentences []string
			for _, raw := range responses[nGen:] {
				if s := extractSentences(raw); s != "" {
					sentences = append(sentences, s)
				}
			}

			parts := make([]string, 0, nGen+len(passages)+len(sentences))
			for i := 0; i < nGen; i++ {
				parts = append(parts, query)
			}
			parts = append(parts, passages...)
			parts = append(parts, sentences...)
			text := strings.ToLower(clean(strings.Join(parts, " ")))

			meta := map[string]any{
				"keqe_passages":   passages,
				"csqe_sentences":  sentences,
				"n_contexts_used": used,
			}
			return text, meta, nil
		},
	}, nil
}

var (
	quotedPattern  = regexp.MustCompile(`"([^"]+)"`)
	headerPattern  = regexp.MustCompile(`(?im)^relevant documents?:?\s*\n?`)
	numberedMarker = regexp.MustCompile(`\d+[.:]`)
)

// extractSentences pulls quoted sentences from an extraction response,
// falling back to numbered-list content when the model did not quote.
func extractSentences(text string) string {
	if quoted := quotedPattern.FindAllStringSubmatch(text, -1); len(quoted) > 0 {
		parts := make([]string, len(quoted))
		for i, m := range quoted {
			parts[i] = m[1]
		}
		return strings.Join(parts, " ")
	}

	// Slice the text between item markers; each segment runs to the next
	// marker or the end of the response.
	cleaned := headerPattern.ReplaceAllString(text, "")
	marks := numberedMarker.FindAllStringIndex(cleaned, -1)
	if len(marks) == 0 {
		return ""
	}
	var parts []string
	for i, m := range marks {
		end := len(cleaned)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		if chunk := strings.Join(strings.Fields(cleaned[m[1]:end]), " "); chunk != "" {
			parts = append(parts, chunk)
		}
	}
	return strings.Join(parts, " ")
}

// lameR conditions the model on retrieved evidence to produce several
// rewrites, then interleaves the original query between the generated
// passages. Prompt templates are dataset-specific with a generic fallback.
type lameR struct {
	bank *prompts.Bank
}

func (m *lameR) Spec() Spec {
	return Spec{
		Name:         "lamer",
		NeedsContext: true,
		Params: []ParamSpec{
			{Name: "num_passages", Kind: KindInt, Default: 5},
			{Name: "context_k", Kind: KindInt, Default: 10},
		},
	}
}

func (m *lameR) Open(in Input) (Session, error) {
	if len(in.Contexts) == 0 {
		return nil, ErrMissingContext
	}
	blob, used := contextBlob(in.Contexts, in.Params.Int("context_k"))

	promptID := "lamer_" + in.Dataset
	if !m.bank.Has(promptID) {
		promptID = "lamer_msmarco"
	}
	msgs, err := m.bank.Render(promptID, map[string]string{
		"query":    in.Query.Text,
		"contexts": blob,
	})
	if err != nil {
		return nil, err
	}

	query := in.Query.Text
	return &singleRound{
		requests: repeated(models.PromptRequest{Messages: msgs}, in.Params.Int("num_passages")),
		assemble: func(responses []string) (string, map[string]any, error) {
			var passages []string
			for _, r := range nonEmpty(responses) {
				passages = append(passages, strings.Trim(strings.Trim(strings.TrimSpace(r), `"`), "'"))
			}
			text := concatInterleave(query, passages)
			meta := map[string]any{
				"generated_passages": passages,
				"n_contexts_used":    used,
			}
			return text, meta, nil
		},
	}, nil
}
