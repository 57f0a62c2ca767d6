package methods

import (
	"strings"

	"github.com/haasonsaas/reformbench/internal/prompts"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// mugi samples multiple pseudo-documents and consolidates them into one
// expanded representation. The blend parameter controls the adaptive query
// repetition that balances original-query and generated-text influence at
// retrieval time; it is configurable rather than a fixed formula.
type mugi struct {
	bank *prompts.Bank
}

func (m *mugi) Spec() Spec {
	return Spec{
		Name: "mugi",
		Params: []ParamSpec{
			{Name: "num_docs", Kind: KindInt, Default: 5},
			{Name: "blend", Kind: KindInt, Default: 5},
		},
	}
}

func (m *mugi) Open(in Input) (Session, error) {
	msgs, err := m.bank.Render("mugi", map[string]string{"query": in.Query.Text})
	if err != nil {
		return nil, err
	}
	query := in.Query.Text
	blend := in.Params.Int("blend")
	return &singleRound{
		requests: repeated(models.PromptRequest{Messages: msgs}, in.Params.Int("num_docs")),
		assemble: func(responses []string) (string, map[string]any, error) {
			docs := nonEmpty(responses)
			generated := strings.Join(docs, " ")
			text := concatAdaptive(query, generated, blend)
			return text, map[string]any{"pseudo_docs": docs}, nil
		},
	}, nil
}
