// Package methods implements the query-reformulation strategies and their
// registry. Every strategy reduces to the same shape: a per-query session
// that emits one or more rounds of prompt requests (later rounds may depend
// on earlier responses) followed by a deterministic assembly step. The
// reformulation engine is generic over this shape and never special-cases
// method names.
package methods

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/reformbench/pkg/models"
)

// ErrUnknownMethod is returned when resolving a method id that is not
// registered.
var ErrUnknownMethod = errors.New("unknown method")

// ErrMissingContext is returned when a corpus-grounded method is opened
// without retrieved context passages.
var ErrMissingContext = errors.New("missing context for corpus-grounded method")

// ParamKind is the type of a method parameter.
type ParamKind int

const (
	KindInt ParamKind = iota
	KindFloat
	KindString
)

// ParamSpec declares one method parameter: its type and default. Parameters
// without a default are required and their absence is a startup error.
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Default any
}

// Spec describes a method's identity and parameter schema.
type Spec struct {
	// Name is the method identifier used in configuration and artifact paths.
	Name string

	// NeedsContext marks corpus-grounded methods that require retrieved
	// passages per query before prompting.
	NeedsContext bool

	// Params is the parameter schema validated at startup.
	Params []ParamSpec
}

// Params holds a method's resolved parameters: schema defaults merged with
// the configured values, normalized to the declared kinds.
type Params map[string]any

// Int returns an integer parameter.
func (p Params) Int(name string) int {
	if v, ok := p[name].(int); ok {
		return v
	}
	return 0
}

// Float returns a float parameter.
func (p Params) Float(name string) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// String returns a string parameter.
func (p Params) String(name string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return ""
}

// Input carries the per-query inputs to a strategy session.
type Input struct {
	Query    models.Query
	Params   Params
	Dataset  string
	Contexts []string
}

// Strategy is one reformulation method. Implementations are stateless;
// all per-query state lives in the Session.
type Strategy interface {
	// Spec returns the method's identity and parameter schema.
	Spec() Spec

	// Open starts a session for one query. Returns ErrMissingContext when
	// the method needs contexts and none were supplied.
	Open(in Input) (Session, error)
}

// Session produces the prompt requests for one query and assembles the
// final reformulated text. Sessions are used by a single goroutine; the
// engine issues the requests of each round concurrently and feeds the
// responses back in request order.
type Session interface {
	// NextRound returns the next batch of prompt requests. prev holds the
	// previous round's responses in request order, with "" for calls that
	// failed after exhausting their retry budget. An empty batch ends the
	// session.
	NextRound(prev []string) ([]models.PromptRequest, error)

	// Assemble deterministically produces the reformulated text and
	// method-specific metadata from the collected responses.
	Assemble() (string, map[string]any, error)
}

// normalize coerces a configured value to the declared kind.
func normalize(spec ParamSpec, value any) (any, error) {
	switch spec.Kind {
	case KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case float64:
			return int(v), nil
		}
	case KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
	case KindString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("parameter %q: unexpected value %v (%T)", spec.Name, value, value)
}
