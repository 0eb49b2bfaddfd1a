package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	// In-memory sqlite gives every pooled connection its own database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Course{},
		&models.Assignment{},
		&models.Block{},
		&models.Feedback{},
		&models.AnalyticsBlock{},
		&models.AnalyticsBlockCache{},
	))
	return db
}

func TestAnalyticsCacheScopedPerTarget(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAnalyticsRepository(db)

	block := models.AnalyticsBlock{Type: models.AnalyticsTypeCourse, Title: "Pass rate", Code: "result = 1"}
	require.NoError(t, db.Create(&block).Error)

	s1 := "s1"
	s2 := "s2"
	require.NoError(t, repo.UpsertCache(context.Background(), &models.AnalyticsBlockCache{
		AnalyticsBlockID: block.ID,
		TargetID:         &s1,
		Result:           datatypes.JSON([]byte(`{"value":1}`)),
	}))
	require.NoError(t, repo.UpsertCache(context.Background(), &models.AnalyticsBlockCache{
		AnalyticsBlockID: block.ID,
		TargetID:         &s2,
		Result:           datatypes.JSON([]byte(`{"value":2}`)),
	}))

	entries, err := repo.ListCache(context.Background(), block.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2, "each target must hold an independent cache row")
}

func TestAnalyticsCacheUpsertReplacesSameKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAnalyticsRepository(db)

	block := models.AnalyticsBlock{Type: models.AnalyticsTypeStudent, Title: "Attempts", Code: "result = 1"}
	require.NoError(t, db.Create(&block).Error)

	target := "s1"
	require.NoError(t, repo.UpsertCache(context.Background(), &models.AnalyticsBlockCache{
		AnalyticsBlockID: block.ID,
		TargetID:         &target,
		Result:           datatypes.JSON([]byte(`{"value":1}`)),
	}))
	require.NoError(t, repo.UpsertCache(context.Background(), &models.AnalyticsBlockCache{
		AnalyticsBlockID: block.ID,
		TargetID:         &target,
		Result:           datatypes.JSON([]byte(`{"value":2}`)),
	}))

	entries, err := repo.ListCache(context.Background(), block.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.JSONEq(t, `{"value":2}`, string(entries[0].Result))
}

func TestAnalyticsCacheNilTargetUsesCourseSentinel(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAnalyticsRepository(db)

	block := models.AnalyticsBlock{Type: models.AnalyticsTypeCourse, Title: "Summary", Code: "result = 1"}
	require.NoError(t, db.Create(&block).Error)

	require.NoError(t, repo.UpsertCache(context.Background(), &models.AnalyticsBlockCache{
		AnalyticsBlockID: block.ID,
		Result:           datatypes.JSON([]byte(`{"value":1}`)),
	}))
	require.NoError(t, repo.UpsertCache(context.Background(), &models.AnalyticsBlockCache{
		AnalyticsBlockID: block.ID,
		Result:           datatypes.JSON([]byte(`{"value":2}`)),
	}))

	entries, err := repo.ListCache(context.Background(), block.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "course-scope computes must share one row")
}

func TestGetPresetRejectsNonPreset(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAnalyticsRepository(db)

	block := models.AnalyticsBlock{Type: models.AnalyticsTypeCourse, Title: "Plain", Code: "result = 1"}
	require.NoError(t, db.Create(&block).Error)

	_, err := repo.GetPreset(context.Background(), block.ID)
	require.True(t, IsNotFound(err))
}

func TestFeedbackLatestTracksLineage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFeedbackRepository(db)

	_, err := repo.Latest(context.Background(), 1, 2)
	require.True(t, IsNotFound(err))

	require.NoError(t, repo.Create(context.Background(), &models.Feedback{BlockID: 1, StudentID: 2, AttemptCount: 1}))
	require.NoError(t, repo.Create(context.Background(), &models.Feedback{BlockID: 1, StudentID: 2, AttemptCount: 2}))
	require.NoError(t, repo.Create(context.Background(), &models.Feedback{BlockID: 1, StudentID: 9, AttemptCount: 7}))

	latest, err := repo.Latest(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, 2, latest.AttemptCount)
}
