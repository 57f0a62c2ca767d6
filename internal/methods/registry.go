package methods

import (
	"fmt"
	"sort"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/internal/prompts"
)

// Registry maps method identifiers to strategies. Construction registers
// every built-in method; lookup and parameter validation are side effect
// free so configuration errors surface before any paid API call.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds the registry of built-in methods over a prompt bank.
func NewRegistry(bank *prompts.Bank) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.register(
		&genQR{bank: bank},
		&genQREnsemble{bank: bank},
		&query2Keyword{bank: bank},
		&query2Doc{bank: bank, name: "q2d_zs", promptID: "q2d_zs"},
		&query2Doc{bank: bank, name: "q2d_fs", promptID: "q2d_fs", fewShot: true},
		&query2Doc{bank: bank, name: "q2d_cot", promptID: "q2d_cot"},
		&qaExpand{bank: bank},
		&mugi{bank: bank},
		&csqe{bank: bank},
		&lameR{bank: bank},
	)
	return r
}

func (r *Registry) register(strategies ...Strategy) {
	for _, s := range strategies {
		r.strategies[s.Spec().Name] = s
	}
}

// Resolve returns the strategy registered under id.
func (r *Registry) Resolve(id string) (Strategy, error) {
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownMethod, id, r.Names())
	}
	return s, nil
}

// Names returns all registered method identifiers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateParams checks configured parameters against the method's schema
// and returns the resolved set with defaults applied. Unknown parameter
// names and missing required parameters are errors.
func (r *Registry) ValidateParams(id string, raw config.MethodParams) (Params, error) {
	strategy, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	spec := strategy.Spec()

	known := make(map[string]ParamSpec, len(spec.Params))
	for _, p := range spec.Params {
		known[p.Name] = p
	}
	for name := range raw {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("method %q: unknown parameter %q", id, name)
		}
	}

	resolved := make(Params, len(spec.Params))
	for _, p := range spec.Params {
		value, ok := raw[p.Name]
		if !ok {
			if p.Default == nil {
				return nil, fmt.Errorf("method %q: required parameter %q is not set", id, p.Name)
			}
			resolved[p.Name] = p.Default
			continue
		}
		normalized, err := normalize(p, value)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", id, err)
		}
		resolved[p.Name] = normalized
	}
	return resolved, nil
}
