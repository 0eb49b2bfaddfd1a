package models

import (
	"time"

	"gorm.io/datatypes"
)

// Feedback terminal status codes.
const (
	FeedbackCodeOK     = 0
	FeedbackCodeFailed = 1
)

// Feedback is the folded result of evaluating a block's action pipeline for
// one submission attempt. A fresh record is created per attempt; the attempt
// count increments monotonically per (block, student) lineage.
type Feedback struct {
	ID                uint                        `gorm:"primaryKey" json:"id"`
	BlockID           uint                        `gorm:"not null;index:idx_feedback_lineage" json:"block_id"`
	StudentID         uint                        `gorm:"not null;index:idx_feedback_lineage" json:"student_id"`
	Text              datatypes.JSONSlice[string] `json:"text"`
	Log               datatypes.JSONSlice[string] `json:"log"`
	Code              int                         `gorm:"not null;default:0" json:"code"`
	AttemptCount      int                         `gorm:"not null;default:1" json:"attempt_count"`
	Score             *float64                    `json:"score"`
	OriginalScore     *float64                    `json:"original_score"`
	JustificationText string                      `gorm:"type:text" json:"justification_text"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// OverrideScore replaces the score while retaining the pre-override value.
func (f *Feedback) OverrideScore(score float64, justification string) {
	if f.OriginalScore == nil && f.Score != nil {
		original := *f.Score
		f.OriginalScore = &original
	}
	f.Score = &score
	f.JustificationText = justification
}
