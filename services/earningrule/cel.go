package earningrule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"loyalty-engine/pkg/errutil"
)

// expressionEvaluator compiles and caches rule CEL filters. Expressions see
// the trigger context as dyn maps and must yield a bool.
type expressionEvaluator struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

func newExpressionEvaluator() (*expressionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("customer", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("transaction", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, err
	}
	return &expressionEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Matches evaluates the rule expression against the trigger context. An
// empty expression always matches.
func (e *expressionEvaluator) Matches(expression string, vars map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, errutil.UnprocessableEntity(
			fmt.Sprintf("rule expression evaluation failed: %v", err),
		)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errutil.UnprocessableEntity("rule expression must evaluate to a boolean")
	}
	return matched, nil
}

func (e *expressionEvaluator) program(expression string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.programs[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("rule expression does not compile: %v", issues.Err()),
		)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}

	e.programs[expression] = prg
	return prg, nil
}
