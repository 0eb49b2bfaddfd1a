package handler_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/config"
	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/executor"
	"github.com/noah-isme/gradeflow-api/internal/handler"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/internal/router"
	"github.com/noah-isme/gradeflow-api/internal/service"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
	"github.com/noah-isme/gradeflow-api/pkg/sandbox"
)

// scriptedRunner returns canned sandbox results in order.
type scriptedRunner struct {
	results []sandbox.RunResult
	calls   int
}

func (r *scriptedRunner) Run(_ context.Context, _ sandbox.RunRequest) (sandbox.RunResult, error) {
	if r.calls >= len(r.results) {
		return sandbox.RunResult{}, nil
	}
	result := r.results[r.calls]
	r.calls++
	return result, nil
}

func setupEvaluationApp(t *testing.T, db *gorm.DB, runner sandbox.Runner, userID uint, role string) *fiber.App {
	t.Helper()

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)
	evaluator := expr.New(time.Second, logger)
	sandboxCfg := executor.SandboxConfig{Timeout: time.Second}

	registry, err := executor.NewRegistry(
		executor.NewRunCodeExecutor(runner, sandboxCfg, logger),
		executor.NewUnitTestExecutor(runner, sandboxCfg, logger),
		executor.NewIOTestExecutor(runner, sandboxCfg, evaluator, logger),
		executor.NewScoreExpressionExecutor(evaluator, logger),
		executor.NewTextFeedbackExecutor(),
	)
	require.NoError(t, err)

	blockRepo := repository.NewBlockRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	auth := service.NewRoleAuthorizer()
	events := service.NewEventPublisher(nil, "", logger)

	evaluationService := service.NewEvaluationService(blockRepo, feedbackRepo, registry, evaluator, auth, events, validate, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test"}, router.Dependencies{
		BlockHandler:      handler.NewBlockHandler(service.NewBlockService(blockRepo, auth, validate, logger), logger),
		EvaluationHandler: handler.NewEvaluationHandler(evaluationService, logger),
		JWTMiddleware:     stubAuth(userID, role),
	})
	return app
}

type feedbackEnvelope struct {
	Success bool                 `json:"success"`
	Data    dto.FeedbackResponse `json:"data"`
	Message string               `json:"message"`
}

func seedPipeline(t *testing.T, db *gorm.DB, actions ...models.Action) {
	t.Helper()
	var block models.Block
	require.NoError(t, db.First(&block, 1).Error)
	block.Actions = actions
	require.NoError(t, db.Save(&block).Error)
}

func TestEvaluationHandlerUnitTestAndScore(t *testing.T) {
	db := setupTestDB(t)

	unitAction, err := models.NewAction(1, models.ActionKindUnitTest, false)
	require.NoError(t, err)
	unitAction.Tests = []models.UnitTest{{ID: "t-1", Name: "t1", Code: "assert add(2, 3) == 5"}}
	scoreAction, err := models.NewAction(1, models.ActionKindScoreExpression, true)
	require.NoError(t, err)
	scoreAction.ScoreExpression = "100"
	seedPipeline(t, db, unitAction, scoreAction)

	runner := &scriptedRunner{results: []sandbox.RunResult{{ExitCode: 0}}}
	app := setupEvaluationApp(t, db, runner, 20, "teacher")

	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/blocks/1/evaluate", dto.EvaluationRequest{
		Language: "python",
		Source:   "def add(a, b):\n    return a + b\n",
	}), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var envelope feedbackEnvelope
	decodeResponse(t, resp, &envelope)
	require.Equal(t, []string{"t1 passed"}, envelope.Data.Text)
	require.NotNil(t, envelope.Data.Score)
	require.Equal(t, float64(100), *envelope.Data.Score)
	require.Equal(t, models.FeedbackCodeOK, envelope.Data.Code)
	require.Equal(t, 1, envelope.Data.AttemptCount)
	require.Equal(t, 1, runner.calls)
}

func TestEvaluationHandlerFailedTestScoresZero(t *testing.T) {
	db := setupTestDB(t)

	unitAction, err := models.NewAction(1, models.ActionKindUnitTest, false)
	require.NoError(t, err)
	unitAction.Tests = []models.UnitTest{{ID: "t-1", Name: "t1", Code: "assert add(2, 3) == 5"}}
	scoreAction, err := models.NewAction(1, models.ActionKindScoreExpression, true)
	require.NoError(t, err)
	scoreAction.ScoreExpression = "100 * passed / total"
	seedPipeline(t, db, unitAction, scoreAction)

	runner := &scriptedRunner{results: []sandbox.RunResult{{ExitCode: 1, Stderr: "AssertionError"}}}
	app := setupEvaluationApp(t, db, runner, 20, "teacher")

	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/blocks/1/evaluate", dto.EvaluationRequest{
		Language: "python",
		Source:   "def add(a, b):\n    return a - b\n",
	}), -1)
	require.NoError(t, err)

	var envelope feedbackEnvelope
	decodeResponse(t, resp, &envelope)
	require.Equal(t, []string{"t1 failed"}, envelope.Data.Text)
	require.NotNil(t, envelope.Data.Score)
	require.Equal(t, float64(0), *envelope.Data.Score)
	require.Equal(t, models.FeedbackCodeFailed, envelope.Data.Code)
	require.Contains(t, envelope.Data.Log[0], "AssertionError")
}

func TestEvaluationHandlerAttemptLineage(t *testing.T) {
	db := setupTestDB(t)

	feedbackAction, err := models.NewAction(1, models.ActionKindTextFeedback, false)
	require.NoError(t, err)
	feedbackAction.Text = "Thanks for submitting"
	seedPipeline(t, db, feedbackAction)

	app := setupEvaluationApp(t, db, &scriptedRunner{}, 20, "student")

	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/blocks/1/evaluate", dto.EvaluationRequest{}), -1)
	require.NoError(t, err)
	var first feedbackEnvelope
	decodeResponse(t, resp, &first)
	require.Equal(t, 1, first.Data.AttemptCount)

	resp, err = app.Test(jsonRequest(t, "POST", "/api/v1/blocks/1/evaluate", dto.EvaluationRequest{}), -1)
	require.NoError(t, err)
	var second feedbackEnvelope
	decodeResponse(t, resp, &second)
	require.Equal(t, 2, second.Data.AttemptCount)

	resp, err = app.Test(jsonRequest(t, "GET", "/api/v1/blocks/1/feedback", nil))
	require.NoError(t, err)
	var latest feedbackEnvelope
	decodeResponse(t, resp, &latest)
	require.Equal(t, 2, latest.Data.AttemptCount)
	require.Equal(t, []string{"Thanks for submitting"}, latest.Data.Text)
}

func TestEvaluationHandlerScoreOverride(t *testing.T) {
	db := setupTestDB(t)

	feedbackAction, err := models.NewAction(1, models.ActionKindTextFeedback, false)
	require.NoError(t, err)
	feedbackAction.Text = "Thanks for submitting"
	seedPipeline(t, db, feedbackAction)

	studentApp := setupEvaluationApp(t, db, &scriptedRunner{}, 20, "student")
	resp, err := studentApp.Test(jsonRequest(t, "POST", "/api/v1/blocks/1/evaluate", dto.EvaluationRequest{}), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	score := 85.0
	teacherApp := setupEvaluationApp(t, db, &scriptedRunner{}, 10, "teacher")
	resp, err = teacherApp.Test(jsonRequest(t, "PATCH", "/api/v1/blocks/1/feedback/score", dto.ScoreOverrideRequest{
		StudentID:     20,
		Score:         &score,
		Justification: "graded by hand",
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var overridden feedbackEnvelope
	decodeResponse(t, resp, &overridden)
	require.NotNil(t, overridden.Data.Score)
	require.Equal(t, 85.0, *overridden.Data.Score)
	require.Equal(t, "graded by hand", overridden.Data.JustificationText)

	// Students cannot override anyone's score, including their own.
	resp, err = studentApp.Test(jsonRequest(t, "PATCH", "/api/v1/blocks/1/feedback/score", dto.ScoreOverrideRequest{
		StudentID: 20,
		Score:     &score,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestEvaluationHandlerUnknownBlock(t *testing.T) {
	db := setupTestDB(t)
	app := setupEvaluationApp(t, db, &scriptedRunner{}, 20, "student")

	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/blocks/99/evaluate", dto.EvaluationRequest{}), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
