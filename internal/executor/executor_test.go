package executor

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
	"github.com/noah-isme/gradeflow-api/pkg/sandbox"
)

// fakeRunner scripts sandbox outcomes keyed by a substring of the program or
// command being run.
type fakeRunner struct {
	results []sandbox.RunResult
	calls   int
}

func (f *fakeRunner) Run(_ context.Context, req sandbox.RunRequest) (sandbox.RunResult, error) {
	if f.calls >= len(f.results) {
		return sandbox.RunResult{}, nil
	}
	result := f.results[f.calls]
	f.calls++
	return result, nil
}

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

func sandboxCfg(t *testing.T) SandboxConfig {
	t.Helper()
	return SandboxConfig{
		Timeout:       time.Second,
		WorkspaceRoot: t.TempDir(),
	}
}

func TestUnitTestExecutorReportsPerTestOutcome(t *testing.T) {
	runner := &fakeRunner{results: []sandbox.RunResult{
		{ExitCode: 0},
		{ExitCode: 1, Stderr: "assertion failed"},
	}}
	exec := NewUnitTestExecutor(runner, sandboxCfg(t), testLogger())

	action := models.Action{
		Kind: models.ActionKindUnitTest,
		Tests: []models.UnitTest{
			{ID: "1", Name: "t1", Code: "assert(1==1)"},
			{ID: "2", Name: "t2", Code: "assert(1==2)"},
		},
	}
	result, err := exec.Execute(context.Background(), Request{
		Action:  action,
		Context: PipelineContext{Submission: Submission{Language: "python", Source: "x = 1"}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"t1 passed", "t2 failed"}, result.Text)
	require.Equal(t, 1, result.Passed)
	require.Equal(t, 1, result.Failed)
	require.Contains(t, strings.Join(result.Log, "\n"), "assertion failed")
}

func TestUnitTestExecutorRejectsUnknownLanguage(t *testing.T) {
	exec := NewUnitTestExecutor(&fakeRunner{}, sandboxCfg(t), testLogger())

	_, err := exec.Execute(context.Background(), Request{
		Context: PipelineContext{Submission: Submission{Language: "cobol"}},
	})
	require.Error(t, err)
}

func TestIOTestExecutorComparesTrimmedOutput(t *testing.T) {
	runner := &fakeRunner{results: []sandbox.RunResult{
		{ExitCode: 0, Stdout: "42\n"},
		{ExitCode: 0, Stdout: "wrong"},
	}}
	evaluator := expr.New(time.Second, testLogger())
	exec := NewIOTestExecutor(runner, sandboxCfg(t), evaluator, testLogger())

	action := models.Action{
		Kind: models.ActionKindIOTest,
		IOTests: []models.IOTest{
			{ID: "1", Name: "io1", Input: "6 7", Output: "42"},
			{ID: "2", Name: "io2", Input: "1 1", Output: "2"},
		},
	}
	result, err := exec.Execute(context.Background(), Request{
		Action:  action,
		Context: PipelineContext{Submission: Submission{Language: "python", Source: "print(6*7)"}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"io1 passed", "io2 failed"}, result.Text)
	require.Equal(t, 1, result.Passed)
	require.Equal(t, 1, result.Failed)
}

func TestIOTestExecutorComparisonCode(t *testing.T) {
	runner := &fakeRunner{results: []sandbox.RunResult{
		{ExitCode: 0, Stdout: "Hello, WORLD"},
	}}
	evaluator := expr.New(time.Second, testLogger())
	exec := NewIOTestExecutor(runner, sandboxCfg(t), evaluator, testLogger())

	action := models.Action{
		Kind: models.ActionKindIOTest,
		IOTests: []models.IOTest{
			{ID: "1", Name: "io1", Input: "world", Output: "hello, world", ComparisonCode: "actual.lower() == expected"},
		},
	}
	result, err := exec.Execute(context.Background(), Request{
		Action:  action,
		Context: PipelineContext{Submission: Submission{Language: "python", Source: "greet()"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Passed)
}

type fakeComparer struct {
	similarity float64
	err        error
}

func (f fakeComparer) Similarity(context.Context, string, []float32) (float64, error) {
	return f.similarity, f.err
}

func TestEmbeddingCheckThreshold(t *testing.T) {
	action := models.Action{
		Kind:            models.ActionKindEmbeddingCheck,
		Text:            "close enough",
		TextOnMismatch:  "try rephrasing",
		AnswerEmbedding: []float32{1, 0},
	}

	exec := NewEmbeddingCheckExecutor(fakeComparer{similarity: 0.92}, 0, testLogger())
	result, err := exec.Execute(context.Background(), Request{Action: action})
	require.NoError(t, err)
	require.Equal(t, 1, result.Passed)
	require.Equal(t, []string{"close enough"}, result.Text)

	exec = NewEmbeddingCheckExecutor(fakeComparer{similarity: 0.4}, 0, testLogger())
	result, err = exec.Execute(context.Background(), Request{Action: action})
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, []string{"try rephrasing"}, result.Text)
}

func TestScoreExpressionUsesPipelineContext(t *testing.T) {
	evaluator := expr.New(time.Second, testLogger())
	exec := NewScoreExpressionExecutor(evaluator, testLogger())

	action := models.Action{
		Kind:            models.ActionKindScoreExpression,
		ScoreExpression: "passed * 100 / total",
	}
	result, err := exec.Execute(context.Background(), Request{
		Action:  action,
		Context: PipelineContext{Passed: 3, Failed: 1},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Score)
	require.InDelta(t, 75.0, *result.Score, 1e-9)
}

func TestTextFeedbackEmitsConfiguredText(t *testing.T) {
	exec := NewTextFeedbackExecutor()

	result, err := exec.Execute(context.Background(), Request{
		Action: models.Action{Kind: models.ActionKindTextFeedback, Text: "read chapter 3"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"read chapter 3"}, result.Text)
}

func TestRegistryRejectsDuplicateKinds(t *testing.T) {
	_, err := NewRegistry(NewTextFeedbackExecutor(), NewTextFeedbackExecutor())
	require.Error(t, err)

	registry, err := NewRegistry(NewTextFeedbackExecutor())
	require.NoError(t, err)

	_, ok := registry.For(models.ActionKindTextFeedback)
	require.True(t, ok)
	_, ok = registry.For(models.ActionKindRunCode)
	require.False(t, ok)
}
