package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/lienzo/pkg/schema"
)

// Engine evaluates expressions over diagram node and reference data.
// Three implementations: CEL (predicates), GoJQ (queries), Expr (logic).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Engines holds one engine per language.
type Engines struct {
	byName map[string]Engine
}

// NewEngines creates the CEL, expr and jq engines.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("init cel: %w", err)
	}
	es := &Engines{byName: map[string]Engine{}}
	for _, e := range []Engine{celEngine, NewExprEngine(), NewGoJQEngine()} {
		es.byName[e.Name()] = e
	}
	return es, nil
}

// Get returns the engine for language ("cel", "expr" or "jq").
func (es *Engines) Get(language string) (Engine, error) {
	e, ok := es.byName[language]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown expression language %q; available: cel, expr, jq", language)
	}
	return e, nil
}
