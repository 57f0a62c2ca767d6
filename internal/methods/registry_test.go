package methods

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/internal/prompts"
)

func emptyBank(t *testing.T) *prompts.Bank {
	t.Helper()
	bank, err := prompts.Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return bank
}

func TestNewRegistry_Names(t *testing.T) {
	registry := NewRegistry(emptyBank(t))
	want := []string{
		"csqe", "genqr", "genqr_ensemble", "lamer", "mugi",
		"q2d_cot", "q2d_fs", "q2d_zs", "q2k", "qa_expand",
	}
	if got := registry.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestResolve_UnknownMethod(t *testing.T) {
	registry := NewRegistry(emptyBank(t))
	_, err := registry.Resolve("hyde")
	if !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("Resolve(hyde) error = %v, want ErrUnknownMethod", err)
	}
}

func TestValidateParams(t *testing.T) {
	registry := NewRegistry(emptyBank(t))

	t.Run("defaults applied", func(t *testing.T) {
		params, err := registry.ValidateParams("genqr", config.MethodParams{})
		if err != nil {
			t.Fatalf("ValidateParams() error = %v", err)
		}
		if got := params.Int("num_calls"); got != 5 {
			t.Errorf("num_calls = %d, want default 5", got)
		}
	})

	t.Run("explicit value overrides default", func(t *testing.T) {
		params, err := registry.ValidateParams("mugi", config.MethodParams{"num_docs": 3})
		if err != nil {
			t.Fatalf("ValidateParams() error = %v", err)
		}
		if got := params.Int("num_docs"); got != 3 {
			t.Errorf("num_docs = %d, want 3", got)
		}
		if got := params.Int("blend"); got != 5 {
			t.Errorf("blend = %d, want default 5", got)
		}
	})

	t.Run("yaml float coerced to int", func(t *testing.T) {
		params, err := registry.ValidateParams("genqr", config.MethodParams{"num_calls": float64(7)})
		if err != nil {
			t.Fatalf("ValidateParams() error = %v", err)
		}
		if got := params.Int("num_calls"); got != 7 {
			t.Errorf("num_calls = %d, want 7", got)
		}
	})

	t.Run("unknown parameter rejected", func(t *testing.T) {
		_, err := registry.ValidateParams("genqr", config.MethodParams{"temperature": 0.7})
		if err == nil || !strings.Contains(err.Error(), "unknown parameter") {
			t.Errorf("ValidateParams() error = %v, want unknown parameter error", err)
		}
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		_, err := registry.ValidateParams("genqr", config.MethodParams{"num_calls": "five"})
		if err == nil {
			t.Error("ValidateParams() error = nil, want type error")
		}
	})
}

func TestSpec_ContextRequirements(t *testing.T) {
	registry := NewRegistry(emptyBank(t))
	grounded := map[string]bool{"csqe": true, "lamer": true}
	for _, name := range registry.Names() {
		strategy, err := registry.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", name, err)
		}
		if got := strategy.Spec().NeedsContext; got != grounded[name] {
			t.Errorf("%s NeedsContext = %v, want %v", name, got, grounded[name])
		}
	}
}
