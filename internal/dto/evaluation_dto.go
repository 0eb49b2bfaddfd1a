package dto

import (
	"time"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// EvaluationRequest submits student work against a block's pipeline.
type EvaluationRequest struct {
	Language string `json:"language" validate:"omitempty,oneof=python javascript go"`
	Source   string `json:"source"`
	Answer   string `json:"answer"`
}

// ScoreOverrideRequest replaces the latest attempt's score with a manual
// grade.
type ScoreOverrideRequest struct {
	StudentID     uint     `json:"student_id" validate:"required"`
	Score         *float64 `json:"score" validate:"required"`
	Justification string   `json:"justification_text"`
}

// FeedbackResponse is the folded pipeline result for one attempt.
type FeedbackResponse struct {
	ID                uint      `json:"id"`
	BlockID           uint      `json:"block_id"`
	StudentID         uint      `json:"student_id"`
	Text              []string  `json:"text"`
	Log               []string  `json:"log"`
	Code              int       `json:"code"`
	AttemptCount      int       `json:"attempt_count"`
	Score             *float64  `json:"score"`
	OriginalScore     *float64  `json:"original_score"`
	JustificationText string    `json:"justification_text,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewFeedbackResponse converts a feedback model into a DTO.
func NewFeedbackResponse(feedback models.Feedback) FeedbackResponse {
	return FeedbackResponse{
		ID:                feedback.ID,
		BlockID:           feedback.BlockID,
		StudentID:         feedback.StudentID,
		Text:              feedback.Text,
		Log:               feedback.Log,
		Code:              feedback.Code,
		AttemptCount:      feedback.AttemptCount,
		Score:             feedback.Score,
		OriginalScore:     feedback.OriginalScore,
		JustificationText: feedback.JustificationText,
		CreatedAt:         feedback.CreatedAt,
	}
}
