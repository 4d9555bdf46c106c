package expressions

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/lienzo/pkg/schema"
)

// ExprEngine implements Engine with expr-lang/expr. Every key of the data
// map is a top-level variable, and two geometry helpers work on node
// bounds:
//
//	node.type == "decision" && area(node.bounds) > 400
//	filter(nodes, overlaps(#.bounds, nodes[0].bounds))
type ExprEngine struct {
	programs *programCache[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newProgramCache[*vm.Program]()}
}

func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate compiles expression on first use and runs it against data.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}
	prg, err := e.programs.get(expression, func(expression string) (*vm.Program, error) {
		return compileExpr(expression, env)
	})
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, evalError("expr", expression, err)
	}
	return out, nil
}

// compileExpr compiles against the first env seen for expression, which
// fixes the environment's shape for later runs.
func compileExpr(expression string, env map[string]any) (*vm.Program, error) {
	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.Function("area", boundsArea),
		expr.Function("overlaps", boundsOverlap),
	)
	if err != nil {
		return nil, compileError("expr", expression, err)
	}
	return prg, nil
}

type box struct{ x, y, w, h float64 }

func boundsOf(v any) (box, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return box{}, fmt.Errorf("want bounds map, got %T", v)
	}
	num := func(k string) float64 {
		switch n := m[k].(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
		return 0
	}
	return box{num("x"), num("y"), num("w"), num("h")}, nil
}

func boundsArea(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("area: want 1 argument, got %d", len(params))
	}
	b, err := boundsOf(params[0])
	if err != nil {
		return nil, fmt.Errorf("area: %w", err)
	}
	return b.w * b.h, nil
}

func boundsOverlap(params ...any) (any, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("overlaps: want 2 arguments, got %d", len(params))
	}
	a, err := boundsOf(params[0])
	if err != nil {
		return nil, fmt.Errorf("overlaps: %w", err)
	}
	b, err := boundsOf(params[1])
	if err != nil {
		return nil, fmt.Errorf("overlaps: %w", err)
	}
	return a.x < b.x+b.w && b.x < a.x+a.w && a.y < b.y+b.h && b.y < a.y+a.h, nil
}

var _ Engine = (*ExprEngine)(nil)
