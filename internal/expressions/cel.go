package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rendis/lienzo/pkg/schema"
)

// celVar is one top-level CEL variable and the value it takes when the
// evaluation data leaves it out.
type celVar struct {
	name  string
	typ   *cel.Type
	empty func() any
}

var celVars = []celVar{
	{"node", cel.MapType(cel.StringType, cel.DynType), func() any { return map[string]any{} }},
	{"refs", cel.ListType(cel.DynType), func() any { return []any{} }},
	{"scene", cel.MapType(cel.StringType, cel.DynType), func() any { return map[string]any{} }},
}

// CELEngine evaluates CEL node predicates such as
//
//	node.type == "decision" && node.bounds.x > 100
//	!node.referenced && node.text.startsWith("Ship")
//
// node, refs and scene are the only variables; see Scope.ForNode.
type CELEngine struct {
	env      *cel.Env
	programs *programCache[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	opts := make([]cel.EnvOption, 0, len(celVars))
	for _, v := range celVars {
		opts = append(opts, cel.Variable(v.name, v.typ))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	return &CELEngine{env: env, programs: newProgramCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	prg, err := e.programs.get(expression, e.compile)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(celVars))
	for _, v := range celVars {
		if val, ok := data[v.name]; ok && val != nil {
			vars[v.name] = val
		} else {
			vars[v.name] = v.empty()
		}
	}

	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return nil, evalError("cel", expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if err := issues.Err(); err != nil {
		return nil, compileError("cel", expression, err)
	}
	// Interrupt checks let a cancelled context stop long comprehensions.
	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, compileError("cel", expression, err)
	}
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
