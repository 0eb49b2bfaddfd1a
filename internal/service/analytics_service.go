package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/observability"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
)

// AnalyticsService computes analytics blocks and manages their per-target
// result cache.
type AnalyticsService interface {
	GetBlock(ctx context.Context, identity Identity, blockID uint) (dto.AnalyticsBlockResponse, error)
	Compute(ctx context.Context, identity Identity, blockID uint, payload dto.AnalyticsComputeRequest) (dto.AnalyticsComputeResponse, error)
	ListCache(ctx context.Context, identity Identity, blockID uint) ([]dto.AnalyticsCacheEntryResponse, error)
	CourseSummary(ctx context.Context, identity Identity, courseID uint) (dto.CourseSummaryResponse, error)
}

// ErrAnalyticsBlockNotFound indicates the analytics block cannot be located.
var ErrAnalyticsBlockNotFound = errors.New("analytics block not found")

// ErrCourseNotFound indicates the referenced course does not exist.
var ErrCourseNotFound = errors.New("course not found")

// ErrInvalidParams indicates the compute parameters fail the block's schema.
var ErrInvalidParams = errors.New("invalid analytics parameters")

// ErrComputeFailed indicates the block's script raised or timed out.
var ErrComputeFailed = errors.New("analytics computation failed")

type analyticsService struct {
	analytics repository.AnalyticsRepository
	courses   repository.CourseRepository
	feedbacks repository.FeedbackRepository
	expr      *expr.Evaluator
	auth      Authorizer
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAnalyticsService constructs the analytics service. The redis client is
// optional; without it course summaries are recomputed on every call.
func NewAnalyticsService(analytics repository.AnalyticsRepository, courses repository.CourseRepository, feedbacks repository.FeedbackRepository, evaluator *expr.Evaluator, auth Authorizer, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) AnalyticsService {
	return &analyticsService{
		analytics: analytics,
		courses:   courses,
		feedbacks: feedbacks,
		expr:      evaluator,
		auth:      auth,
		cache:     cache,
		cacheTTL:  ttl,
		logger:    logger.With().Str("component", "analytics_service").Logger(),
		now:       time.Now,
	}
}

func (s *analyticsService) GetBlock(ctx context.Context, identity Identity, blockID uint) (dto.AnalyticsBlockResponse, error) {
	block, err := s.getBlock(ctx, blockID)
	if err != nil {
		return dto.AnalyticsBlockResponse{}, err
	}
	if err := s.authorize(ctx, identity, block, nil); err != nil {
		return dto.AnalyticsBlockResponse{}, err
	}
	return dto.NewAnalyticsBlockResponse(block), nil
}

// Compute runs the block's effective script against the requested target and
// replaces the cache row for (block, target). The preset's current code is
// resolved at compute time; it is never copied into the block.
func (s *analyticsService) Compute(ctx context.Context, identity Identity, blockID uint, payload dto.AnalyticsComputeRequest) (dto.AnalyticsComputeResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gradeflow-api/internal/service/analytics")
	ctx, span := tracer.Start(ctx, "analytics.compute")
	span.SetAttributes(attribute.Int("analytics.block_id", int(blockID)))
	defer span.End()

	block, err := s.getBlock(ctx, blockID)
	if err != nil {
		return dto.AnalyticsComputeResponse{}, err
	}
	if err := s.authorize(ctx, identity, block, payload.CourseID); err != nil {
		return dto.AnalyticsComputeResponse{}, err
	}
	if err := s.validateParams(block, payload.Params); err != nil {
		return dto.AnalyticsComputeResponse{}, err
	}

	env, err := s.buildEnv(ctx, payload)
	if err != nil {
		span.RecordError(err)
		return dto.AnalyticsComputeResponse{}, err
	}

	result, err := s.expr.EvalProgram(ctx, block.EffectiveCode(), env)
	if err != nil {
		observability.AnalyticsComputes().WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute_failed")
		s.logger.Warn().Err(err).Uint("block_id", block.ID).Msg("analytics computation failed")
		return dto.AnalyticsComputeResponse{}, fmt.Errorf("%w: %v", ErrComputeFailed, err)
	}

	raw, err := json.Marshal(result.Value)
	if err != nil {
		return dto.AnalyticsComputeResponse{}, fmt.Errorf("encode result: %w", err)
	}

	entry := models.AnalyticsBlockCache{
		AnalyticsBlockID: block.ID,
		TargetID:         payload.TargetID,
		Result:           datatypes.JSON(raw),
		ComputedAt:       s.now().UTC(),
	}
	if err := s.analytics.UpsertCache(ctx, &entry); err != nil {
		span.RecordError(err)
		return dto.AnalyticsComputeResponse{}, err
	}

	observability.AnalyticsComputes().WithLabelValues("ok").Inc()
	return dto.AnalyticsComputeResponse{
		BlockID: block.ID,
		Log:     result.Log,
		Result:  result.Value,
	}, nil
}

func (s *analyticsService) ListCache(ctx context.Context, identity Identity, blockID uint) ([]dto.AnalyticsCacheEntryResponse, error) {
	block, err := s.getBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, identity, block, nil); err != nil {
		return nil, err
	}

	entries, err := s.analytics.ListCache(ctx, blockID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AnalyticsCacheEntryResponse, 0, len(entries))
	for _, entry := range entries {
		var value interface{}
		if len(entry.Result) > 0 {
			if err := json.Unmarshal(entry.Result, &value); err != nil {
				value = string(entry.Result)
			}
		}
		responses = append(responses, dto.AnalyticsCacheEntryResponse{
			ID:         entry.ID,
			TargetID:   entry.TargetID,
			Result:     value,
			ComputedAt: entry.ComputedAt,
		})
	}
	return responses, nil
}

// CourseSummary aggregates all feedback in a course. Summaries are cached in
// redis under a short TTL since they back frequently polled dashboards.
func (s *analyticsService) CourseSummary(ctx context.Context, identity Identity, courseID uint) (dto.CourseSummaryResponse, error) {
	if !s.auth.Can(identity, CapabilityViewAnalytics) {
		return dto.CourseSummaryResponse{}, ErrForbidden
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		if repository.IsNotFound(err) {
			return dto.CourseSummaryResponse{}, ErrCourseNotFound
		}
		return dto.CourseSummaryResponse{}, err
	}

	cacheKey := fmt.Sprintf("analytics:course-summary:%d", courseID)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var response dto.CourseSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read course summary cache")
		}
	}

	feedbacks, err := s.feedbacks.ListForCourse(ctx, courseID)
	if err != nil {
		return dto.CourseSummaryResponse{}, err
	}

	summary := buildCourseSummary(courseID, feedbacks, s.now())

	if s.cache != nil {
		payload, err := json.Marshal(summary)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store course summary cache")
			}
		}
	}
	return summary, nil
}

func (s *analyticsService) getBlock(ctx context.Context, blockID uint) (models.AnalyticsBlock, error) {
	block, err := s.analytics.GetBlockByID(ctx, blockID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.AnalyticsBlock{}, ErrAnalyticsBlockNotFound
		}
		return models.AnalyticsBlock{}, err
	}
	return block, nil
}

// authorize picks the capability required by the block's scope. Presets need
// preset management, organization blocks need the org capability, everything
// else needs analytics view plus a resolvable owning course. When the caller
// supplies no course, a course-scoped block's own subject is the course to
// resolve.
func (s *analyticsService) authorize(ctx context.Context, identity Identity, block models.AnalyticsBlock, courseID *uint) error {
	switch {
	case block.IsGlobalPreset:
		if !s.auth.Can(identity, CapabilityManagePresets) {
			return ErrForbidden
		}
	case block.Type == models.AnalyticsTypeOrganization:
		if !s.auth.Can(identity, CapabilityUpdateOrganization) {
			return ErrForbidden
		}
	default:
		if !s.auth.Can(identity, CapabilityViewAnalytics) {
			return ErrForbidden
		}
		if courseID == nil && block.Type == models.AnalyticsTypeCourse {
			courseID = block.SubjectID
		}
		if courseID != nil {
			if _, err := s.courses.GetByID(ctx, *courseID); err != nil {
				if repository.IsNotFound(err) {
					return ErrCourseNotFound
				}
				return err
			}
		}
	}
	return nil
}

func (s *analyticsService) validateParams(block models.AnalyticsBlock, params map[string]interface{}) error {
	schema := strings.TrimSpace(block.ParamsSchema)
	if schema == "" {
		return nil
	}

	compiled, err := jsonschema.CompileString("params.schema.json", schema)
	if err != nil {
		return fmt.Errorf("compile params schema: %w", err)
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	if err := compiled.Validate(normalizeForSchema(params)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// normalizeForSchema round-trips the params through JSON so numeric types
// match what the schema validator expects.
func normalizeForSchema(params map[string]interface{}) interface{} {
	raw, err := json.Marshal(params)
	if err != nil {
		return params
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return params
	}
	return normalized
}

// buildEnv assembles the globals an analytics script sees: its parameters,
// the target it runs against and the course's attempt rows when a course is
// in scope.
func (s *analyticsService) buildEnv(ctx context.Context, payload dto.AnalyticsComputeRequest) (map[string]interface{}, error) {
	target := ""
	if payload.TargetID != nil {
		target = *payload.TargetID
	}

	params := map[string]interface{}{}
	if payload.Params != nil {
		normalized, ok := normalizeForSchema(payload.Params).(map[string]interface{})
		if ok {
			params = normalized
		}
	}

	env := map[string]interface{}{
		"params":    params,
		"target_id": target,
	}

	if payload.CourseID != nil {
		feedbacks, err := s.feedbacks.ListForCourse(ctx, *payload.CourseID)
		if err != nil {
			return nil, err
		}
		attempts := make([]interface{}, 0, len(feedbacks))
		for _, feedback := range feedbacks {
			row := map[string]interface{}{
				"student_id": int64(feedback.StudentID),
				"block_id":   int64(feedback.BlockID),
				"attempt":    int64(feedback.AttemptCount),
				"code":       int64(feedback.Code),
				"has_score":  feedback.Score != nil,
				"score":      0.0,
			}
			if feedback.Score != nil {
				row["score"] = *feedback.Score
			}
			attempts = append(attempts, row)
		}
		env["attempts"] = attempts
	}
	return env, nil
}

func buildCourseSummary(courseID uint, feedbacks []models.Feedback, now time.Time) dto.CourseSummaryResponse {
	distribution := map[string]int64{
		"90-100": 0,
		"75-89":  0,
		"60-74":  0,
		"0-59":   0,
	}

	graded := int64(0)
	total := 0.0
	for _, feedback := range feedbacks {
		if feedback.Score == nil {
			continue
		}
		graded++
		score := *feedback.Score
		total += score
		switch {
		case score >= 90:
			distribution["90-100"]++
		case score >= 75:
			distribution["75-89"]++
		case score >= 60:
			distribution["60-74"]++
		default:
			distribution["0-59"]++
		}
	}

	average := 0.0
	if graded > 0 {
		average = total / float64(graded)
	}

	return dto.CourseSummaryResponse{
		CourseID:          courseID,
		Attempts:          int64(len(feedbacks)),
		GradedAttempts:    graded,
		AverageScore:      average,
		ScoreDistribution: distribution,
		GeneratedAt:       now,
		CacheHit:          false,
	}
}
