package executor

import (
	"context"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// TextFeedbackExecutor emits the action's static feedback text. It exists so
// plain explanatory messages participate in the same condition and
// short-circuit machinery as real checks.
type TextFeedbackExecutor struct{}

// NewTextFeedbackExecutor constructs the text-feedback executor.
func NewTextFeedbackExecutor() *TextFeedbackExecutor { return &TextFeedbackExecutor{} }

// Kind implements Executor.
func (e *TextFeedbackExecutor) Kind() models.ActionKind { return models.ActionKindTextFeedback }

// Execute returns the configured text verbatim.
func (e *TextFeedbackExecutor) Execute(_ context.Context, req Request) (Result, error) {
	if req.Action.Text == "" {
		return Result{}, nil
	}
	return Result{Text: []string{req.Action.Text}}, nil
}
