package methods

import (
	"reflect"
	"strings"
	"testing"

	"github.com/haasonsaas/reformbench/pkg/models"
)

func TestQAExpand_ThreeRounds(t *testing.T) {
	bank := testBank(t)
	sess := openSession(t, bank, "qa_expand", Input{Query: models.Query{ID: "1", Text: "q"}})

	rounds := 0
	text, meta := drive(t, sess, func(round int, reqs []models.PromptRequest) []string {
		rounds++
		if len(reqs) != 1 {
			t.Fatalf("round %d: %d requests, want 1", round, len(reqs))
		}
		content := reqs[0].Messages[0].Content
		switch round {
		case 0:
			if !strings.Contains(content, "Decompose") {
				t.Errorf("round 0 prompt = %q", content)
			}
			return []string{`{"question1": "what is q", "question2": "why q", "question3": "how q"}`}
		case 1:
			// Parsed sub-questions are fed back into the answer
			// prompt.
			if !strings.Contains(content, "what is q") {
				t.Errorf("round 1 prompt missing sub-question: %q", content)
			}
			return []string{`{"answer1": "q is a thing", "answer2": "because reasons", "answer3": "carefully"}`}
		case 2:
			if !strings.Contains(content, "q is a thing") {
				t.Errorf("round 2 prompt missing answer: %q", content)
			}
			// The refinement drops answer2.
			return []string{`{"answer1": "q is a thing", "answer2": "", "answer3": "carefully"}`}
		}
		t.Fatalf("unexpected round %d", round)
		return nil
	})

	if rounds != 3 {
		t.Errorf("session ran %d rounds, want 3", rounds)
	}
	if want := "q q q q is a thing carefully"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if kept, ok := meta["kept_indices"].([]int); !ok || !reflect.DeepEqual(kept, []int{0, 2}) {
		t.Errorf("kept_indices = %v, want [0 2]", meta["kept_indices"])
	}
}

func TestQAExpand_MalformedResponsesKeepEverything(t *testing.T) {
	bank := testBank(t)
	sess := openSession(t, bank, "qa_expand", Input{Query: models.Query{ID: "1", Text: "q"}})

	text, _ := drive(t, sess, func(round int, reqs []models.PromptRequest) []string {
		switch round {
		case 0:
			// Line-split fallback.
			return []string{"- what is q\n- why q\n- how q"}
		case 1:
			return []string{"answer one\nanswer two\nanswer three"}
		default:
			// Unparseable refinement keeps every answer.
			return []string{"sure, they all look fine"}
		}
	})

	for _, want := range []string{"answer one", "answer two", "answer three"} {
		if !strings.Contains(text, want) {
			t.Errorf("text = %q, missing %q", text, want)
		}
	}
}

func TestLooseJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantKey string
		wantVal string
		wantErr bool
	}{
		{"plain", `{"a": "1"}`, "a", "1", false},
		{"fenced", "```json\n{\"a\": \"1\"}\n```", "a", "1", false},
		{"fenced no lang", "Here you go:\n```\n{\"a\": \"1\"}\n```", "a", "1", false},
		{"not json", "just text", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := looseJSON(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("looseJSON() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("looseJSON() error = %v", err)
			}
			if data[tt.wantKey] != tt.wantVal {
				t.Errorf("looseJSON()[%s] = %q, want %q", tt.wantKey, data[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestParseNumberedList(t *testing.T) {
	got := parseNumberedList(`{"question1": "a", "question2": "b", "question3": "c"}`, 3, "question")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("parseNumberedList(json) = %v", got)
	}

	got = parseNumberedList("- a\n- b", 3, "question")
	if !reflect.DeepEqual(got, []string{"a", "b", ""}) {
		t.Errorf("parseNumberedList(lines) = %v", got)
	}
}
