package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// FeedbackRepository defines data operations for evaluation feedback.
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *models.Feedback) error
	Update(ctx context.Context, feedback *models.Feedback) error
	Latest(ctx context.Context, blockID, studentID uint) (models.Feedback, error)
	ListForCourse(ctx context.Context, courseID uint) ([]models.Feedback, error)
}

type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository instantiates the repository.
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

func (r *feedbackRepository) Create(ctx context.Context, feedback *models.Feedback) error {
	return r.db.WithContext(ctx).Create(feedback).Error
}

func (r *feedbackRepository) Update(ctx context.Context, feedback *models.Feedback) error {
	return r.db.WithContext(ctx).Save(feedback).Error
}

// Latest returns the most recent feedback in the (block, student) lineage.
// gorm.ErrRecordNotFound is returned for a first attempt.
func (r *feedbackRepository) Latest(ctx context.Context, blockID, studentID uint) (models.Feedback, error) {
	var feedback models.Feedback
	err := r.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		Where("student_id = ?", studentID).
		Order("attempt_count DESC").
		First(&feedback).Error
	if err != nil {
		return models.Feedback{}, err
	}
	return feedback, nil
}

func (r *feedbackRepository) ListForCourse(ctx context.Context, courseID uint) ([]models.Feedback, error) {
	var feedbacks []models.Feedback
	err := r.db.WithContext(ctx).
		Joins("JOIN blocks ON blocks.id = feedbacks.block_id").
		Joins("JOIN assignments ON assignments.id = blocks.assignment_id").
		Where("assignments.course_id = ?", courseID).
		Find(&feedbacks).Error
	if err != nil {
		return nil, err
	}
	return feedbacks, nil
}

// IsNotFound reports whether the error is the repository's missing-record
// error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
