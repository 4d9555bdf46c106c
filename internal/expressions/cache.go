package expressions

import (
	"sync"

	"github.com/rendis/lienzo/pkg/schema"
)

// maxPrograms bounds each engine's compiled-program cache; predicates are
// typed by people, so the set of distinct expressions is open-ended.
const maxPrograms = 256

// programCache memoizes compiled expressions. It is dropped wholesale when
// full. Two goroutines compiling the same new expression both do the work;
// the last one stored wins.
type programCache[P any] struct {
	mu       sync.RWMutex
	programs map[string]P
}

func newProgramCache[P any]() *programCache[P] {
	return &programCache[P]{programs: make(map[string]P)}
}

func (c *programCache[P]) get(expression string, compile func(string) (P, error)) (P, error) {
	c.mu.RLock()
	p, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := compile(expression)
	if err != nil {
		return p, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.programs) >= maxPrograms {
		c.programs = make(map[string]P)
	}
	c.programs[expression] = p
	return p, nil
}

func (c *programCache[P]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// compileError reports an expression that does not compile in language.
func compileError(language, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %s", language, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

// evalError reports an expression that failed while running.
func evalError(language, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExpression, "%s: %q failed: %s", language, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}
