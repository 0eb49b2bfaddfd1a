// Package expr evaluates user-authored condition and scoring expressions in
// a sandboxed Starlark interpreter. Scripts get no filesystem, network or
// module access; print output is captured as a log instead of written
// anywhere.
package expr

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
)

// Result carries the value a script produced plus its captured print log.
type Result struct {
	Value    interface{}
	Log      []string
	Duration time.Duration
}

// Evaluator executes Starlark expressions and programs with a bounded
// runtime.
type Evaluator struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// New constructs an evaluator. A zero timeout defaults to ten seconds.
func New(timeout time.Duration, logger zerolog.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Evaluator{
		timeout: timeout,
		logger:  logger.With().Str("component", "expr_evaluator").Logger(),
	}
}

// Condition evaluates a boolean expression against the provided environment.
// An empty expression is unconditionally true.
func (e *Evaluator) Condition(ctx context.Context, expression string, env map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	result, err := e.run(ctx, func(thread *starlark.Thread, predeclared starlark.StringDict) (starlark.Value, error) {
		return starlark.Eval(thread, "condition.star", expression, predeclared)
	}, env)
	if err != nil {
		return false, err
	}

	value, ok := result.Value.(starlark.Value)
	if !ok {
		return false, fmt.Errorf("condition yielded no value")
	}
	return bool(value.Truth()), nil
}

// EvalExpression evaluates a single expression and converts the result to a
// Go value. Used for score expressions, where the result is expected to be
// numeric.
func (e *Evaluator) EvalExpression(ctx context.Context, expression string, env map[string]interface{}) (Result, error) {
	result, err := e.run(ctx, func(thread *starlark.Thread, predeclared starlark.StringDict) (starlark.Value, error) {
		return starlark.Eval(thread, "expression.star", expression, predeclared)
	}, env)
	if err != nil {
		return Result{}, err
	}

	value, err := FromStarlark(result.Value.(starlark.Value))
	if err != nil {
		return Result{}, err
	}
	result.Value = value
	return result, nil
}

// EvalProgram executes a multi-statement script and returns the value bound
// to its "result" global, or nil when the script does not set one.
func (e *Evaluator) EvalProgram(ctx context.Context, code string, env map[string]interface{}) (Result, error) {
	result, err := e.run(ctx, func(thread *starlark.Thread, predeclared starlark.StringDict) (starlark.Value, error) {
		globals, err := starlark.ExecFile(thread, "program.star", code, predeclared)
		if err != nil {
			return nil, err
		}
		if value, ok := globals["result"]; ok {
			return value, nil
		}
		return starlark.None, nil
	}, env)
	if err != nil {
		return Result{}, err
	}

	value, err := FromStarlark(result.Value.(starlark.Value))
	if err != nil {
		return Result{}, err
	}
	result.Value = value
	return result, nil
}

type evalFunc func(thread *starlark.Thread, predeclared starlark.StringDict) (starlark.Value, error)

func (e *Evaluator) run(ctx context.Context, eval evalFunc, env map[string]interface{}) (Result, error) {
	start := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	predeclared := starlark.StringDict{}
	for key, raw := range env {
		value, err := ToStarlark(raw)
		if err != nil {
			return Result{}, fmt.Errorf("convert input %q: %w", key, err)
		}
		predeclared[key] = value
	}

	var printed []string
	thread := &starlark.Thread{
		Name: "gradeflow",
		Print: func(_ *starlark.Thread, msg string) {
			printed = append(printed, msg)
		},
	}

	type outcome struct {
		value starlark.Value
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := eval(thread, predeclared)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("timeout")
		e.logger.Warn().Dur("timeout", e.timeout).Msg("expression evaluation timed out")
		return Result{}, fmt.Errorf("expression evaluation timed out after %v", e.timeout)
	case out := <-done:
		if out.err != nil {
			return Result{}, fmt.Errorf("expression evaluation failed: %w", out.err)
		}
		return Result{Value: out.value, Log: printed, Duration: time.Since(start)}, nil
	}
}

// ToStarlark converts a Go value into its Starlark equivalent.
func ToStarlark(value interface{}) (starlark.Value, error) {
	switch v := value.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint:
		return starlark.MakeUint(v), nil
	case float64:
		return starlark.Float(v), nil
	case float32:
		return starlark.Float(float64(v)), nil
	case string:
		return starlark.String(v), nil
	case []string:
		items := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			items = append(items, starlark.String(item))
		}
		return starlark.NewList(items), nil
	case []interface{}:
		items := make([]starlark.Value, 0, len(v))
		for _, raw := range v {
			item, err := ToStarlark(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return starlark.NewList(items), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(v))
		for key, raw := range v {
			item, err := ToStarlark(raw)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), item); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// FromStarlark converts a Starlark value back into a plain Go value.
func FromStarlark(value starlark.Value) (interface{}, error) {
	switch v := value.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return nil, fmt.Errorf("integer out of range")
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case *starlark.List:
		items := make([]interface{}, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := FromStarlark(v.Index(i))
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case *starlark.Dict:
		result := make(map[string]interface{}, v.Len())
		for _, key := range v.Keys() {
			str, ok := key.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("non-string dict key %s", key.String())
			}
			raw, _, err := v.Get(key)
			if err != nil {
				return nil, err
			}
			item, err := FromStarlark(raw)
			if err != nil {
				return nil, err
			}
			result[string(str)] = item
		}
		return result, nil
	default:
		return value.String(), nil
	}
}

// Number coerces an evaluated value into a float64 score.
func Number(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expected a numeric result, got %T", value)
	}
}
