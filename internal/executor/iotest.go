package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
	"github.com/noah-isme/gradeflow-api/pkg/sandbox"
)

// IOTestExecutor feeds each IO test's input to the submission program and
// compares the produced output against the expectation.
type IOTestExecutor struct {
	inner     *RunCodeExecutor
	evaluator *expr.Evaluator
}

// NewIOTestExecutor constructs the IO-test executor. The expression
// evaluator runs a test's optional comparison code with "actual" and
// "expected" bound.
func NewIOTestExecutor(runner sandbox.Runner, cfg SandboxConfig, evaluator *expr.Evaluator, logger zerolog.Logger) *IOTestExecutor {
	return &IOTestExecutor{
		inner:     NewRunCodeExecutor(runner, cfg, logger),
		evaluator: evaluator,
	}
}

// Kind implements Executor.
func (e *IOTestExecutor) Kind() models.ActionKind { return models.ActionKindIOTest }

// Execute runs the IO tests in stored order. Without comparison code the
// check is trimmed string equality of stdout against the expected output.
func (e *IOTestExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	language := strings.ToLower(strings.TrimSpace(req.Context.Submission.Language))
	langCfg, ok := e.inner.languages[language]
	if !ok {
		return Result{}, fmt.Errorf("unsupported language %q", language)
	}

	out := Result{}
	for _, test := range req.Action.IOTests {
		run, runErr := e.inner.runProgram(ctx, langCfg, req.Context.Submission.Source, test.Input)

		actual := strings.TrimSpace(run.Stdout)
		expected := strings.TrimSpace(test.Output)

		passed := runErr == nil && run.ExitCode == 0
		if passed {
			if test.ComparisonCode != "" {
				match, err := e.evaluator.Condition(ctx, test.ComparisonCode, map[string]interface{}{
					"actual":   actual,
					"expected": expected,
				})
				if err != nil {
					out.Log = append(out.Log, fmt.Sprintf("%s: comparison failed: %s", test.Name, err.Error()))
					passed = false
				} else {
					passed = match
				}
			} else {
				passed = actual == expected
			}
		} else if stderr := strings.TrimSpace(run.Stderr); stderr != "" {
			out.Log = append(out.Log, fmt.Sprintf("%s: %s", test.Name, stderr))
		}

		if passed {
			out.Passed++
			out.Text = append(out.Text, fmt.Sprintf("%s passed", test.Name))
		} else {
			out.Failed++
			out.Text = append(out.Text, fmt.Sprintf("%s failed", test.Name))
			if actual != expected {
				out.Log = append(out.Log, fmt.Sprintf("%s: expected %q, got %q", test.Name, expected, actual))
			}
		}
	}

	return out, nil
}
