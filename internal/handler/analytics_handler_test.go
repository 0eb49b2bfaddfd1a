package handler_test

import (
	"io"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/config"
	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/handler"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/internal/router"
	"github.com/noah-isme/gradeflow-api/internal/service"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
)

func setupAnalyticsApp(t *testing.T, db *gorm.DB, userID uint, role string) *fiber.App {
	t.Helper()

	logger := zerolog.New(io.Discard)
	analyticsService := service.NewAnalyticsService(
		repository.NewAnalyticsRepository(db),
		repository.NewCourseRepository(db),
		repository.NewFeedbackRepository(db),
		expr.New(time.Second, logger),
		service.NewRoleAuthorizer(),
		nil,
		time.Minute,
		logger,
	)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test"}, router.Dependencies{
		AnalyticsHandler: handler.NewAnalyticsHandler(analyticsService, logger),
		JWTMiddleware:    stubAuth(userID, role),
	})
	return app
}

type computeEnvelope struct {
	Success bool                         `json:"success"`
	Data    dto.AnalyticsComputeResponse `json:"data"`
	Message string                       `json:"message"`
}

func TestAnalyticsHandlerComputeAndCache(t *testing.T) {
	db := setupTestDB(t)
	block := models.AnalyticsBlock{
		Type:  models.AnalyticsTypeStudent,
		Title: "Attempts",
		Code:  "result = {\"target\": target_id}",
	}
	require.NoError(t, db.Create(&block).Error)

	app := setupAnalyticsApp(t, db, 10, "teacher")

	target := "42"
	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/analytics/blocks/1/compute", dto.AnalyticsComputeRequest{TargetID: &target}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var computed computeEnvelope
	decodeResponse(t, resp, &computed)
	require.Equal(t, map[string]interface{}{"target": "42"}, computed.Data.Result)

	other := "43"
	resp, err = app.Test(jsonRequest(t, "POST", "/api/v1/analytics/blocks/1/compute", dto.AnalyticsComputeRequest{TargetID: &other}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, "GET", "/api/v1/analytics/blocks/1/cache", nil))
	require.NoError(t, err)
	var cache struct {
		Success bool                              `json:"success"`
		Data    []dto.AnalyticsCacheEntryResponse `json:"data"`
	}
	decodeResponse(t, resp, &cache)
	require.Len(t, cache.Data, 2)
}

func TestAnalyticsHandlerForbiddenForStudents(t *testing.T) {
	db := setupTestDB(t)
	block := models.AnalyticsBlock{Type: models.AnalyticsTypeCourse, Title: "Rates", Code: "result = 1"}
	require.NoError(t, db.Create(&block).Error)

	app := setupAnalyticsApp(t, db, 20, "student")

	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/analytics/blocks/1/compute", dto.AnalyticsComputeRequest{}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAnalyticsHandlerComputeFailure(t *testing.T) {
	db := setupTestDB(t)
	block := models.AnalyticsBlock{Type: models.AnalyticsTypeCourse, Title: "Broken", Code: "result = nope"}
	require.NoError(t, db.Create(&block).Error)

	app := setupAnalyticsApp(t, db, 10, "teacher")

	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/analytics/blocks/1/compute", dto.AnalyticsComputeRequest{}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAnalyticsHandlerCourseSummary(t *testing.T) {
	db := setupTestDB(t)
	score := 85.0
	require.NoError(t, db.Create(&models.Feedback{BlockID: 1, StudentID: 2, AttemptCount: 1, Score: &score}).Error)

	app := setupAnalyticsApp(t, db, 10, "teacher")

	resp, err := app.Test(jsonRequest(t, "GET", "/api/v1/analytics/courses/1/summary", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var summary struct {
		Success bool                      `json:"success"`
		Data    dto.CourseSummaryResponse `json:"data"`
	}
	decodeResponse(t, resp, &summary)
	require.Equal(t, int64(1), summary.Data.Attempts)
	require.InDelta(t, 85.0, summary.Data.AverageScore, 0.001)
	require.Equal(t, int64(1), summary.Data.ScoreDistribution["75-89"])
}
