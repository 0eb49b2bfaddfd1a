package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
)

type fakeAnalyticsRepo struct {
	blocks  map[uint]models.AnalyticsBlock
	entries map[string]models.AnalyticsBlockCache
}

func newFakeAnalyticsRepo(blocks ...models.AnalyticsBlock) *fakeAnalyticsRepo {
	repo := &fakeAnalyticsRepo{
		blocks:  map[uint]models.AnalyticsBlock{},
		entries: map[string]models.AnalyticsBlockCache{},
	}
	for _, block := range blocks {
		repo.blocks[block.ID] = block
	}
	return repo
}

func (r *fakeAnalyticsRepo) GetBlockByID(_ context.Context, id uint) (models.AnalyticsBlock, error) {
	block, ok := r.blocks[id]
	if !ok {
		return models.AnalyticsBlock{}, gorm.ErrRecordNotFound
	}
	return block, nil
}

func (r *fakeAnalyticsRepo) GetPreset(_ context.Context, id uint) (models.AnalyticsBlock, error) {
	block, ok := r.blocks[id]
	if !ok || !block.IsGlobalPreset {
		return models.AnalyticsBlock{}, gorm.ErrRecordNotFound
	}
	return block, nil
}

func (r *fakeAnalyticsRepo) UpsertCache(_ context.Context, entry *models.AnalyticsBlockCache) error {
	target := ""
	if entry.TargetID != nil {
		target = *entry.TargetID
	}
	key := fmt.Sprintf("%d/%s", entry.AnalyticsBlockID, target)
	r.entries[key] = *entry
	return nil
}

func (r *fakeAnalyticsRepo) ListCache(_ context.Context, blockID uint) ([]models.AnalyticsBlockCache, error) {
	var entries []models.AnalyticsBlockCache
	for _, entry := range r.entries {
		if entry.AnalyticsBlockID == blockID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type fakeCourseRepo struct {
	courses map[uint]models.Course
}

func (r *fakeCourseRepo) GetByID(_ context.Context, id uint) (models.Course, error) {
	course, ok := r.courses[id]
	if !ok {
		return models.Course{}, gorm.ErrRecordNotFound
	}
	return course, nil
}

var adminIdentity = Identity{UserID: 1, Role: "admin"}

func newAnalyticsFixture(repo *fakeAnalyticsRepo, feedbacks *fakeFeedbackRepo, cache *redis.Client) AnalyticsService {
	if feedbacks == nil {
		feedbacks = &fakeFeedbackRepo{}
	}
	courses := &fakeCourseRepo{courses: map[uint]models.Course{1: {ID: 1, Title: "Algorithms"}}}
	return NewAnalyticsService(repo, courses, feedbacks, expr.New(time.Second, zerolog.Nop()), NewRoleAuthorizer(), cache, time.Minute, zerolog.Nop())
}

func TestComputeStoresResultPerTarget(t *testing.T) {
	repo := newFakeAnalyticsRepo(models.AnalyticsBlock{
		ID:    1,
		Type:  models.AnalyticsTypeStudent,
		Title: "Attempts",
		Code:  "result = {\"target\": target_id}",
	})
	svc := newAnalyticsFixture(repo, nil, nil)

	s1 := "42"
	response, err := svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{TargetID: &s1})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"target": "42"}, response.Result)

	s2 := "43"
	_, err = svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{TargetID: &s2})
	require.NoError(t, err)
	require.Len(t, repo.entries, 2, "distinct targets accumulate distinct cache rows")
}

func TestComputeUsesPresetCodeAtComputeTime(t *testing.T) {
	presetID := uint(2)
	repo := newFakeAnalyticsRepo(models.AnalyticsBlock{
		ID:       1,
		Type:     models.AnalyticsTypeCourse,
		Title:    "Pass rate",
		Code:     "result = 'local stale code'",
		PresetID: &presetID,
		Preset: &models.AnalyticsBlock{
			ID:             2,
			IsGlobalPreset: true,
			Code:           "result = 'from preset'",
		},
	})
	svc := newAnalyticsFixture(repo, nil, nil)

	response, err := svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{})
	require.NoError(t, err)
	require.Equal(t, "from preset", response.Result)
}

func TestComputeValidatesParamsAgainstSchema(t *testing.T) {
	repo := newFakeAnalyticsRepo(models.AnalyticsBlock{
		ID:           1,
		Type:         models.AnalyticsTypeCourse,
		Title:        "Threshold report",
		Code:         "result = params[\"threshold\"]",
		ParamsSchema: `{"type":"object","required":["threshold"],"properties":{"threshold":{"type":"number"}}}`,
	})
	svc := newAnalyticsFixture(repo, nil, nil)

	_, err := svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{})
	require.ErrorIs(t, err, ErrInvalidParams)

	response, err := svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{
		Params: map[string]interface{}{"threshold": 0.5},
	})
	require.NoError(t, err)
	require.Equal(t, 0.5, response.Result)
}

func TestComputeScriptErrorReported(t *testing.T) {
	repo := newFakeAnalyticsRepo(models.AnalyticsBlock{
		ID:    1,
		Type:  models.AnalyticsTypeCourse,
		Title: "Broken",
		Code:  "result = undefined_name",
	})
	svc := newAnalyticsFixture(repo, nil, nil)

	_, err := svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{})
	require.ErrorIs(t, err, ErrComputeFailed)
	require.Empty(t, repo.entries, "a failed compute must not replace the cache")
}

func TestComputeExposesCourseAttempts(t *testing.T) {
	repo := newFakeAnalyticsRepo(models.AnalyticsBlock{
		ID:    1,
		Type:  models.AnalyticsTypeCourse,
		Title: "Attempt count",
		Code:  "result = len(attempts)",
	})
	score := 88.0
	feedbacks := &fakeFeedbackRepo{created: []models.Feedback{
		{BlockID: 1, StudentID: 2, AttemptCount: 1, Score: &score},
		{BlockID: 1, StudentID: 3, AttemptCount: 1},
	}}
	svc := newAnalyticsFixture(repo, feedbacks, nil)

	courseID := uint(1)
	response, err := svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{CourseID: &courseID})
	require.NoError(t, err)
	require.Equal(t, int64(2), response.Result)
}

func TestComputeAuthorizationByScope(t *testing.T) {
	repo := newFakeAnalyticsRepo(
		models.AnalyticsBlock{ID: 1, Type: models.AnalyticsTypeCourse, Code: "result = 1"},
		models.AnalyticsBlock{ID: 2, Type: models.AnalyticsTypeOrganization, Code: "result = 1"},
		models.AnalyticsBlock{ID: 3, Type: models.AnalyticsTypeCourse, Code: "result = 1", IsGlobalPreset: true},
	)
	svc := newAnalyticsFixture(repo, nil, nil)

	_, err := svc.Compute(context.Background(), studentIdentity, 1, dto.AnalyticsComputeRequest{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Compute(context.Background(), teacherIdentity, 2, dto.AnalyticsComputeRequest{})
	require.ErrorIs(t, err, ErrForbidden, "organization blocks need the org capability")

	_, err = svc.Compute(context.Background(), adminIdentity, 2, dto.AnalyticsComputeRequest{})
	require.NoError(t, err)

	_, err = svc.Compute(context.Background(), teacherIdentity, 3, dto.AnalyticsComputeRequest{})
	require.ErrorIs(t, err, ErrForbidden, "presets are admin territory")

	_, err = svc.Compute(context.Background(), adminIdentity, 3, dto.AnalyticsComputeRequest{})
	require.NoError(t, err)
}

func TestComputeMissingCourse(t *testing.T) {
	repo := newFakeAnalyticsRepo(models.AnalyticsBlock{ID: 1, Type: models.AnalyticsTypeCourse, Code: "result = 1"})
	svc := newAnalyticsFixture(repo, nil, nil)

	courseID := uint(99)
	_, err := svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{CourseID: &courseID})
	require.ErrorIs(t, err, ErrCourseNotFound)
}

func TestCourseBlockResolvesOwnSubject(t *testing.T) {
	staleCourse := uint(99)
	ownCourse := uint(1)
	repo := newFakeAnalyticsRepo(
		models.AnalyticsBlock{ID: 1, Type: models.AnalyticsTypeCourse, Code: "result = 1", SubjectID: &staleCourse},
		models.AnalyticsBlock{ID: 2, Type: models.AnalyticsTypeCourse, Code: "result = 1", SubjectID: &ownCourse},
	)
	svc := newAnalyticsFixture(repo, nil, nil)

	// The block's own subject is the course to resolve when the request
	// names none; a dangling subject is a missing course everywhere.
	_, err := svc.GetBlock(context.Background(), teacherIdentity, 1)
	require.ErrorIs(t, err, ErrCourseNotFound)

	_, err = svc.Compute(context.Background(), teacherIdentity, 1, dto.AnalyticsComputeRequest{})
	require.ErrorIs(t, err, ErrCourseNotFound)

	_, err = svc.ListCache(context.Background(), teacherIdentity, 1)
	require.ErrorIs(t, err, ErrCourseNotFound)

	_, err = svc.GetBlock(context.Background(), teacherIdentity, 2)
	require.NoError(t, err)

	_, err = svc.Compute(context.Background(), teacherIdentity, 2, dto.AnalyticsComputeRequest{})
	require.NoError(t, err)
}

func TestGetBlockResolvesPresetCode(t *testing.T) {
	presetID := uint(2)
	repo := newFakeAnalyticsRepo(models.AnalyticsBlock{
		ID:       1,
		Type:     models.AnalyticsTypeCourse,
		Code:     "result = 'own'",
		PresetID: &presetID,
		Preset:   &models.AnalyticsBlock{ID: 2, IsGlobalPreset: true, Code: "result = 'preset'"},
	})
	svc := newAnalyticsFixture(repo, nil, nil)

	block, err := svc.GetBlock(context.Background(), teacherIdentity, 1)
	require.NoError(t, err)
	require.Equal(t, "result = 'preset'", block.Code)
}

func TestCourseSummaryAggregatesAndCaches(t *testing.T) {
	server := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	high := 95.0
	mid := 70.0
	feedbacks := &fakeFeedbackRepo{created: []models.Feedback{
		{BlockID: 1, StudentID: 2, AttemptCount: 1, Score: &high},
		{BlockID: 1, StudentID: 3, AttemptCount: 1, Score: &mid},
		{BlockID: 1, StudentID: 4, AttemptCount: 1},
	}}
	svc := newAnalyticsFixture(newFakeAnalyticsRepo(), feedbacks, cache)

	summary, err := svc.CourseSummary(context.Background(), teacherIdentity, 1)
	require.NoError(t, err)
	require.False(t, summary.CacheHit)
	require.Equal(t, int64(3), summary.Attempts)
	require.Equal(t, int64(2), summary.GradedAttempts)
	require.InDelta(t, 82.5, summary.AverageScore, 0.001)
	require.Equal(t, int64(1), summary.ScoreDistribution["90-100"])
	require.Equal(t, int64(1), summary.ScoreDistribution["60-74"])

	cached, err := svc.CourseSummary(context.Background(), teacherIdentity, 1)
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
}

func TestCourseSummaryForbiddenForStudents(t *testing.T) {
	svc := newAnalyticsFixture(newFakeAnalyticsRepo(), nil, nil)
	_, err := svc.CourseSummary(context.Background(), studentIdentity, 1)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCourseSummaryMissingCourse(t *testing.T) {
	svc := newAnalyticsFixture(newFakeAnalyticsRepo(), nil, nil)
	_, err := svc.CourseSummary(context.Background(), teacherIdentity, 99)
	require.ErrorIs(t, err, ErrCourseNotFound)
}
