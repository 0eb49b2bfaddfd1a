package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// BlockRepository defines data operations for content blocks and their
// embedded action pipelines. Saving a block persists the whole pipeline
// document; concurrent saves of the same block are last-writer-wins.
type BlockRepository interface {
	GetByID(ctx context.Context, id uint) (models.Block, error)
	Save(ctx context.Context, block *models.Block) error
	Create(ctx context.Context, block *models.Block) error
}

type blockRepository struct {
	db *gorm.DB
}

// NewBlockRepository instantiates the repository.
func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

func (r *blockRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Block{}).
		Preload("Assignment").
		Preload("Assignment.Course")
}

func (r *blockRepository) GetByID(ctx context.Context, id uint) (models.Block, error) {
	var block models.Block
	if err := r.baseQuery(ctx).First(&block, id).Error; err != nil {
		return models.Block{}, err
	}
	return block, nil
}

func (r *blockRepository) Save(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Save(block).Error
}

func (r *blockRepository) Create(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Create(block).Error
}
