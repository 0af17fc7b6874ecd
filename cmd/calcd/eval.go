package main

import (
	"fmt"
	"strconv"

	"github.com/google/cel-go/cel"
)

// evaluator compiles and runs calculator expressions. Each request is an
// independent expression with no variables; the environment is built
// once and reused.
type evaluator struct {
	env *cel.Env
}

func newEvaluator() (*evaluator, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	return &evaluator{env: env}, nil
}

func (e *evaluator) eval(src string) (any, error) {
	ast, issues := e.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.Eval(map[string]any{})
	if err != nil {
		return nil, err
	}
	return out.Value(), nil
}

// calculate evaluates expr, divides by unit unless the unit is the
// neutral "1", and renders the result. Failures are reported as plain
// strings because they travel to a chat user, not a programmer.
func (e *evaluator) calculate(unit, expr string) (string, error) {
	unitVal := 1.0
	if unit != "1" {
		v, err := e.eval(unit)
		if err != nil {
			return "", fmt.Errorf("could not evaluate unit: %v", err)
		}
		f, ok := toFloat(v)
		if !ok {
			return "", fmt.Errorf("could not evaluate unit: %v is not numeric", v)
		}
		unitVal = f
	}

	result, err := e.eval(expr)
	if err != nil {
		return "", fmt.Errorf("could not evaluate expression: %v", err)
	}

	f, numeric := toFloat(result)
	if !numeric {
		if unit != "1" {
			return "", fmt.Errorf("during evaluation: cannot divide %v by a unit", result)
		}
		return fmt.Sprint(result), nil
	}
	if unitVal == 0 {
		return "", fmt.Errorf("during evaluation: division by zero unit")
	}
	return strconv.FormatFloat(f/unitVal, 'g', -1, 64), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
