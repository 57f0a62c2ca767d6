package methods

import (
	"strings"

	"github.com/haasonsaas/reformbench/internal/prompts"
	"github.com/haasonsaas/reformbench/pkg/models"
)

// query2Keyword maps a query to related expansion terms in a single call,
// broadening lexical coverage without pseudo-document synthesis.
type query2Keyword struct {
	bank *prompts.Bank
}

func (m *query2Keyword) Spec() Spec {
	return Spec{
		Name: "q2k",
		Params: []ParamSpec{
			{Name: "query_repeats", Kind: KindInt, Default: 5},
		},
	}
}

func (m *query2Keyword) Open(in Input) (Session, error) {
	msgs, err := m.bank.Render("q2k", map[string]string{"query": in.Query.Text})
	if err != nil {
		return nil, err
	}
	query := in.Query.Text
	repeats := in.Params.Int("query_repeats")
	return &singleRound{
		requests: []models.PromptRequest{{Messages: msgs}},
		assemble: func(responses []string) (string, map[string]any, error) {
			keywords := strings.Join(nonEmpty(responses), " ")
			// Terms become space-separated for bag-of-words retrieval.
			keywords = clean(strings.ReplaceAll(keywords, ",", " "))
			text := concatRepeat(query, keywords, repeats)
			return text, map[string]any{"keywords": keywords}, nil
		},
	}, nil
}

// query2Doc generates an answer-style pseudo-document concatenated with the
// repeated original query. The zero-shot, few-shot, and chain-of-thought
// variants differ only in prompt template.
type query2Doc struct {
	bank     *prompts.Bank
	name     string
	promptID string
	fewShot  bool
}

func (m *query2Doc) Spec() Spec {
	params := []ParamSpec{
		{Name: "query_repeats", Kind: KindInt, Default: 5},
	}
	if m.fewShot {
		params = append(params, ParamSpec{Name: "examples", Kind: KindString, Default: ""})
	}
	return Spec{Name: m.name, Params: params}
}

func (m *query2Doc) Open(in Input) (Session, error) {
	vars := map[string]string{"query": in.Query.Text}
	if m.fewShot {
		vars["examples"] = in.Params.String("examples")
	}
	msgs, err := m.bank.Render(m.promptID, vars)
	if err != nil {
		return nil, err
	}
	query := in.Query.Text
	repeats := in.Params.Int("query_repeats")
	return &singleRound{
		requests: []models.PromptRequest{{Messages: msgs}},
		assemble: func(responses []string) (string, map[string]any, error) {
			passage := strings.Join(nonEmpty(responses), " ")
			text := concatRepeat(query, passage, repeats)
			return text, map[string]any{"pseudo_document": passage}, nil
		},
	}, nil
}
