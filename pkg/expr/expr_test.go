package expr

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testEvaluator() *Evaluator {
	return New(2*time.Second, zerolog.New(io.Discard))
}

func TestConditionEmptyIsTrue(t *testing.T) {
	ok, err := testEvaluator().Condition(context.Background(), "", nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConditionAgainstEnvironment(t *testing.T) {
	env := map[string]interface{}{
		"score":  75.0,
		"passed": int64(3),
		"failed": int64(1),
		"text":   []string{"t1 passed"},
	}

	ok, err := testEvaluator().Condition(context.Background(), "score > 50 and failed < 2", env)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = testEvaluator().Condition(context.Background(), "score == 100", env)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionSyntaxError(t *testing.T) {
	_, err := testEvaluator().Condition(context.Background(), "score >>", map[string]interface{}{"score": 1.0})
	require.Error(t, err)
}

func TestEvalExpressionNumeric(t *testing.T) {
	result, err := testEvaluator().EvalExpression(context.Background(), "passed * 100 / total", map[string]interface{}{
		"passed": int64(3),
		"total":  int64(4),
	})
	require.NoError(t, err)

	score, err := Number(result.Value)
	require.NoError(t, err)
	require.InDelta(t, 75.0, score, 1e-9)
}

func TestEvalProgramResultAndPrintLog(t *testing.T) {
	code := "print(\"computing\")\nresult = {\"mean\": (a + b) / 2}"
	result, err := testEvaluator().EvalProgram(context.Background(), code, map[string]interface{}{
		"a": 10.0,
		"b": 20.0,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"computing"}, result.Log)

	value, ok := result.Value.(map[string]interface{})
	require.True(t, ok)
	require.InDelta(t, 15.0, value["mean"].(float64), 1e-9)
}

func TestEvalProgramTimeout(t *testing.T) {
	evaluator := New(50*time.Millisecond, zerolog.New(io.Discard))
	code := "def spin():\n    x = 0\n    for i in range(1000000000):\n        x += 1\n    return x\nresult = spin()"
	_, err := evaluator.EvalProgram(context.Background(), code, nil)
	require.Error(t, err)
}
