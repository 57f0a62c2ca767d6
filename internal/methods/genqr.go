package methods

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/reformbench/internal/prompts"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// genQR expands a query with keywords gathered over several independent LLM
// calls. All keyword sets are concatenated after the original query with no
// query repetition.
type genQR struct {
	bank *prompts.Bank
}

func (m *genQR) Spec() Spec {
	return Spec{
		Name: "genqr",
		Params: []ParamSpec{
			{Name: "num_calls", Kind: KindInt, Default: 5},
		},
	}
}

func (m *genQR) Open(in Input) (Session, error) {
	msgs, err := m.bank.Render("genqr", map[string]string{"query": in.Query.Text})
	if err != nil {
		return nil, err
	}
	query := in.Query.Text
	return &singleRound{
		requests: repeated(models.PromptRequest{Messages: msgs}, in.Params.Int("num_calls")),
		assemble: func(responses []string) (string, map[string]any, error) {
			keywords := nonEmpty(responses)
			text := clean(query + " " + strings.Join(keywords, " "))
			return text, map[string]any{"keywords": keywords}, nil
		},
	}, nil
}

// genQREnsemble issues the same query under every instruction paraphrase in
// the prompt bank (genqr_ens_1 .. genqr_ens_10) and merges the keyword sets
// by deduplication, prefixed by the repeated original query.
type genQREnsemble struct {
	bank *prompts.Bank
}

const ensembleInstructions = 10

func (m *genQREnsemble) Spec() Spec {
	return Spec{
		Name: "genqr_ensemble",
		Params: []ParamSpec{
			{Name: "query_repeats", Kind: KindInt, Default: 5},
		},
	}
}

func (m *genQREnsemble) Open(in Input) (Session, error) {
	requests := make([]models.PromptRequest, 0, ensembleInstructions)
	for i := 1; i <= ensembleInstructions; i++ {
		msgs, err := m.bank.Render(fmt.Sprintf("genqr_ens_%d", i), map[string]string{"query": in.Query.Text})
		if err != nil {
			return nil, err
		}
		requests = append(requests, models.PromptRequest{Messages: msgs})
	}
	query := in.Query.Text
	repeats := in.Params.Int("query_repeats")
	return &singleRound{
		requests: requests,
		assemble: func(responses []string) (string, map[string]any, error) {
			merged := mergeDedup(nonEmpty(responses))
			text := concatRepeat(query, merged, repeats)
			return text, map[string]any{"keyword_sets": nonEmpty(responses)}, nil
		},
	}, nil
}
