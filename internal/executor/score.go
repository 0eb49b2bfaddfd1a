package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
)

// ScoreExpressionExecutor evaluates the action's scoring expression against
// the accumulated pipeline context. Its result is authoritative: the
// evaluator overwrites any previously folded score with it.
type ScoreExpressionExecutor struct {
	evaluator *expr.Evaluator
	logger    zerolog.Logger
}

// NewScoreExpressionExecutor constructs the scoring executor.
func NewScoreExpressionExecutor(evaluator *expr.Evaluator, logger zerolog.Logger) *ScoreExpressionExecutor {
	return &ScoreExpressionExecutor{
		evaluator: evaluator,
		logger:    logger.With().Str("component", "score_expression_executor").Logger(),
	}
}

// Kind implements Executor.
func (e *ScoreExpressionExecutor) Kind() models.ActionKind { return models.ActionKindScoreExpression }

// Execute evaluates the expression and returns the numeric score. The
// pipeline does not clamp; percentage and bounds semantics belong to the
// expression itself.
func (e *ScoreExpressionExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	expression := req.Action.ScoreExpression
	if expression == "" {
		return Result{}, fmt.Errorf("score action has no expression")
	}

	result, err := e.evaluator.EvalExpression(ctx, expression, req.Context.Env())
	if err != nil {
		return Result{}, fmt.Errorf("evaluate score expression: %w", err)
	}

	score, err := expr.Number(result.Value)
	if err != nil {
		return Result{}, fmt.Errorf("score expression: %w", err)
	}

	return Result{
		Score: &score,
		Log:   append(result.Log, fmt.Sprintf("score expression yielded %g", score)),
	}, nil
}
