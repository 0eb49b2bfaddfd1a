package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/executor"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/observability"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
)

// EvaluationService runs a block's action pipeline against a submission and
// persists the folded feedback.
type EvaluationService interface {
	Evaluate(ctx context.Context, identity Identity, blockID uint, payload dto.EvaluationRequest) (dto.FeedbackResponse, error)
	LatestFeedback(ctx context.Context, identity Identity, blockID uint) (dto.FeedbackResponse, error)
	OverrideScore(ctx context.Context, identity Identity, blockID uint, payload dto.ScoreOverrideRequest) (dto.FeedbackResponse, error)
}

// ErrFeedbackNotFound indicates no attempt exists for the lineage yet.
var ErrFeedbackNotFound = errors.New("feedback not found")

type evaluationService struct {
	blocks    repository.BlockRepository
	feedbacks repository.FeedbackRepository
	registry  *executor.Registry
	expr      *expr.Evaluator
	auth      Authorizer
	events    *EventPublisher
	sanitizer *bluemonday.Policy
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEvaluationService constructs the pipeline evaluation service.
func NewEvaluationService(blocks repository.BlockRepository, feedbacks repository.FeedbackRepository, registry *executor.Registry, evaluator *expr.Evaluator, auth Authorizer, events *EventPublisher, validate *validator.Validate, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		blocks:    blocks,
		feedbacks: feedbacks,
		registry:  registry,
		expr:      evaluator,
		auth:      auth,
		events:    events,
		sanitizer: bluemonday.StrictPolicy(),
		validator: validate,
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
		now:       time.Now,
	}
}

// Evaluate walks the pipeline front to back. Teacher-only actions are skipped
// silently for students, an action's condition gates its execution, and a
// stop-on-match action that ran ends the walk early. A failing executor
// contributes a log entry and a failed check instead of aborting the whole
// attempt.
func (s *evaluationService) Evaluate(ctx context.Context, identity Identity, blockID uint, payload dto.EvaluationRequest) (dto.FeedbackResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.FeedbackResponse{}, err
	}

	tracer := otel.Tracer("github.com/noah-isme/gradeflow-api/internal/service/evaluation")
	ctx, span := tracer.Start(ctx, "pipeline.evaluate")
	span.SetAttributes(attribute.Int("block.id", int(blockID)))
	defer span.End()

	block, err := s.blocks.GetByID(ctx, blockID)
	if err != nil {
		if repository.IsNotFound(err) {
			return dto.FeedbackResponse{}, ErrBlockNotFound
		}
		span.RecordError(err)
		return dto.FeedbackResponse{}, err
	}

	staffMode := s.auth.Can(identity, CapabilityEvaluateAsStaff)
	start := s.now()

	pipeCtx := executor.PipelineContext{
		Submission: executor.Submission{
			StudentID: identity.UserID,
			Language:  payload.Language,
			Source:    payload.Source,
			Answer:    payload.Answer,
		},
		StaffMode: staffMode,
	}

	if block.Assignment.IsPastDue(start) {
		pipeCtx.Log = append(pipeCtx.Log, "submission received after the due date")
	}

	for _, action := range block.Actions {
		if action.TeacherOnly && !staffMode {
			continue
		}

		matched, err := s.expr.Condition(ctx, action.Condition, pipeCtx.Env())
		if err != nil {
			pipeCtx.Log = append(pipeCtx.Log, fmt.Sprintf("condition on %s action failed: %v", action.Kind, err))
			observability.PipelineActions().WithLabelValues(string(action.Kind), "condition_error").Inc()
			continue
		}
		if !matched {
			continue
		}

		result, execErr := s.executeAction(ctx, action, pipeCtx)
		if execErr != nil {
			pipeCtx.Log = append(pipeCtx.Log, fmt.Sprintf("%s action failed: %v", action.Kind, execErr))
			pipeCtx.Failed++
			observability.PipelineActions().WithLabelValues(string(action.Kind), "error").Inc()
			span.RecordError(execErr)
		} else {
			s.fold(&pipeCtx, action, result)
			observability.PipelineActions().WithLabelValues(string(action.Kind), "ok").Inc()
		}

		// The stop is tied to the matched condition, not to the executor
		// outcome: a failing stop-on-match action still ends the walk.
		if action.StopOnMatch {
			pipeCtx.Log = append(pipeCtx.Log, fmt.Sprintf("pipeline stopped by %s action", action.Kind))
			break
		}
	}

	code := models.FeedbackCodeOK
	if pipeCtx.Failed > 0 {
		code = models.FeedbackCodeFailed
	}

	attempt := 1
	if latest, err := s.feedbacks.Latest(ctx, block.ID, identity.UserID); err == nil {
		attempt = latest.AttemptCount + 1
	} else if !repository.IsNotFound(err) {
		span.RecordError(err)
		return dto.FeedbackResponse{}, err
	}

	feedback := models.Feedback{
		BlockID:      block.ID,
		StudentID:    identity.UserID,
		Text:         datatypes.JSONSlice[string](pipeCtx.Text),
		Log:          datatypes.JSONSlice[string](pipeCtx.Log),
		Code:         code,
		AttemptCount: attempt,
		Score:        pipeCtx.Score,
	}
	if err := s.feedbacks.Create(ctx, &feedback); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_feedback_failed")
		return dto.FeedbackResponse{}, err
	}

	duration := s.now().Sub(start)
	observability.Evaluations().WithLabelValues(strconv.Itoa(code)).Inc()
	observability.EvaluationDuration().WithLabelValues(strconv.FormatBool(staffMode)).Observe(duration.Seconds())
	span.SetAttributes(
		attribute.Int("pipeline.passed", pipeCtx.Passed),
		attribute.Int("pipeline.failed", pipeCtx.Failed),
		attribute.Int("pipeline.attempt", attempt),
	)

	s.events.PublishEvaluation(EvaluationEvent{
		BlockID:      block.ID,
		StudentID:    identity.UserID,
		AttemptCount: attempt,
		Code:         code,
		Score:        feedback.Score,
		EvaluatedAt:  s.now().UTC(),
	})

	s.logger.Info().
		Uint("block_id", block.ID).
		Uint("student_id", identity.UserID).
		Int("attempt", attempt).
		Int("code", code).
		Dur("duration", duration).
		Msg("pipeline evaluated")

	return dto.NewFeedbackResponse(feedback), nil
}

func (s *evaluationService) LatestFeedback(ctx context.Context, identity Identity, blockID uint) (dto.FeedbackResponse, error) {
	feedback, err := s.feedbacks.Latest(ctx, blockID, identity.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return dto.FeedbackResponse{}, ErrFeedbackNotFound
		}
		return dto.FeedbackResponse{}, err
	}
	return dto.NewFeedbackResponse(feedback), nil
}

// OverrideScore lets staff replace the latest attempt's score with a manual
// grade. The pipeline-computed value is retained as the original score so the
// override stays auditable.
func (s *evaluationService) OverrideScore(ctx context.Context, identity Identity, blockID uint, payload dto.ScoreOverrideRequest) (dto.FeedbackResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.FeedbackResponse{}, err
	}
	if !s.auth.Can(identity, CapabilityEvaluateAsStaff) {
		return dto.FeedbackResponse{}, ErrForbidden
	}

	feedback, err := s.feedbacks.Latest(ctx, blockID, payload.StudentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return dto.FeedbackResponse{}, ErrFeedbackNotFound
		}
		return dto.FeedbackResponse{}, err
	}

	feedback.OverrideScore(*payload.Score, payload.Justification)
	if err := s.feedbacks.Update(ctx, &feedback); err != nil {
		return dto.FeedbackResponse{}, err
	}

	s.logger.Info().
		Uint("block_id", blockID).
		Uint("student_id", payload.StudentID).
		Float64("score", *payload.Score).
		Msg("score overridden")

	return dto.NewFeedbackResponse(feedback), nil
}

func (s *evaluationService) executeAction(ctx context.Context, action models.Action, pipeCtx executor.PipelineContext) (executor.Result, error) {
	exec, ok := s.registry.For(action.Kind)
	if !ok {
		return executor.Result{}, fmt.Errorf("no executor registered for kind %q", action.Kind)
	}
	return exec.Execute(ctx, executor.Request{Action: action, Context: pipeCtx})
}

// fold merges one action result into the accumulated pipeline state. Counted
// checks add to passed/failed; an executor-provided score is an authoritative
// overwrite. Text is withheld when the action hides feedback, the log never
// is.
func (s *evaluationService) fold(pipeCtx *executor.PipelineContext, action models.Action, result executor.Result) {
	if !action.HideFeedback {
		for _, entry := range result.Text {
			pipeCtx.Text = append(pipeCtx.Text, s.sanitizer.Sanitize(entry))
		}
	}
	pipeCtx.Log = append(pipeCtx.Log, result.Log...)
	pipeCtx.Passed += result.Passed
	pipeCtx.Failed += result.Failed
	if result.Score != nil {
		score := *result.Score
		pipeCtx.Score = &score
	}
}
