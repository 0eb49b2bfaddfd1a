package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/pkg/sandbox"
)

// UnitTestExecutor runs each unit test owned by the action against the
// submission source, one sandbox run per test.
type UnitTestExecutor struct {
	inner *RunCodeExecutor
}

// NewUnitTestExecutor constructs the unit-test executor on top of the shared
// sandbox plumbing.
func NewUnitTestExecutor(runner sandbox.Runner, cfg SandboxConfig, logger zerolog.Logger) *UnitTestExecutor {
	return &UnitTestExecutor{inner: NewRunCodeExecutor(runner, cfg, logger)}
}

// Kind implements Executor.
func (e *UnitTestExecutor) Kind() models.ActionKind { return models.ActionKindUnitTest }

// Execute runs the tests in stored order. Each test contributes one feedback
// line: "<name> passed" or "<name> failed".
func (e *UnitTestExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	language := strings.ToLower(strings.TrimSpace(req.Context.Submission.Language))
	langCfg, ok := e.inner.languages[language]
	if !ok {
		return Result{}, fmt.Errorf("unsupported language %q", language)
	}

	out := Result{}
	for _, test := range req.Action.Tests {
		program := joinProgram(req.Action.Imports, req.Context.Submission.Source, test.Code)
		run, runErr := e.inner.runProgram(ctx, langCfg, program, "")

		passed := runErr == nil && run.ExitCode == 0
		if passed {
			out.Passed++
			out.Text = append(out.Text, fmt.Sprintf("%s passed", test.Name))
		} else {
			out.Failed++
			out.Text = append(out.Text, fmt.Sprintf("%s failed", test.Name))
			if stderr := strings.TrimSpace(run.Stderr); stderr != "" {
				out.Log = append(out.Log, fmt.Sprintf("%s: %s", test.Name, stderr))
			} else if runErr != nil {
				out.Log = append(out.Log, fmt.Sprintf("%s: %s", test.Name, runErr.Error()))
			}
		}
	}

	return out, nil
}
