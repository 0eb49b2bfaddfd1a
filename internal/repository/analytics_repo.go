package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// AnalyticsRepository defines data operations for analytics blocks and
// their per-target result cache.
type AnalyticsRepository interface {
	GetBlockByID(ctx context.Context, id uint) (models.AnalyticsBlock, error)
	GetPreset(ctx context.Context, id uint) (models.AnalyticsBlock, error)
	UpsertCache(ctx context.Context, entry *models.AnalyticsBlockCache) error
	ListCache(ctx context.Context, blockID uint) ([]models.AnalyticsBlockCache, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) GetBlockByID(ctx context.Context, id uint) (models.AnalyticsBlock, error) {
	var block models.AnalyticsBlock
	if err := r.db.WithContext(ctx).Preload("Preset").First(&block, id).Error; err != nil {
		return models.AnalyticsBlock{}, err
	}
	return block, nil
}

// GetPreset fetches a block and requires it to be a global preset. A block
// that exists but is not a preset is reported as a missing record so callers
// treat a wrong-kind reference like a stale one.
func (r *analyticsRepository) GetPreset(ctx context.Context, id uint) (models.AnalyticsBlock, error) {
	var preset models.AnalyticsBlock
	err := r.db.WithContext(ctx).
		Where("is_global_preset = ?", true).
		First(&preset, id).Error
	if err != nil {
		return models.AnalyticsBlock{}, err
	}
	return preset, nil
}

// UpsertCache writes the result row for (block, target), replacing any
// previous result for the same key. Concurrent computes for one key race
// benignly; the last completed write wins. A nil target is stored as the
// empty-string course-scope sentinel so the unique index covers it.
func (r *analyticsRepository) UpsertCache(ctx context.Context, entry *models.AnalyticsBlockCache) error {
	if entry.TargetID == nil {
		sentinel := ""
		entry.TargetID = &sentinel
	}
	if entry.ComputedAt.IsZero() {
		entry.ComputedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "analytics_block_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"result", "computed_at"}),
		}).
		Create(entry).Error
}

func (r *analyticsRepository) ListCache(ctx context.Context, blockID uint) ([]models.AnalyticsBlockCache, error) {
	var entries []models.AnalyticsBlockCache
	err := r.db.WithContext(ctx).
		Where("analytics_block_id = ?", blockID).
		Order("computed_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
