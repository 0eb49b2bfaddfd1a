package dto

import (
	"time"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// AnalyticsComputeRequest triggers a (re)compute of an analytics block.
type AnalyticsComputeRequest struct {
	TargetID *string                `json:"target_id"`
	CourseID *uint                  `json:"course_id"`
	Params   map[string]interface{} `json:"params"`
}

// AnalyticsComputeResponse returns the computed result plus its log.
type AnalyticsComputeResponse struct {
	BlockID uint        `json:"block_id"`
	Log     []string    `json:"log"`
	Result  interface{} `json:"result"`
}

// AnalyticsCacheEntryResponse serializes one cached result row.
type AnalyticsCacheEntryResponse struct {
	ID         uint        `json:"id"`
	TargetID   *string     `json:"target_id"`
	Result     interface{} `json:"result"`
	ComputedAt time.Time   `json:"computed_at"`
}

// AnalyticsBlockResponse serializes an analytics block with its effective,
// preset-resolved code.
type AnalyticsBlockResponse struct {
	ID             uint   `json:"id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Code           string `json:"code"`
	FullWidth      bool   `json:"full_width"`
	Published      bool   `json:"published"`
	IsGlobalPreset bool   `json:"is_global_preset"`
	PresetID       *uint  `json:"preset_id"`
	SubjectID      *uint  `json:"subject_id"`
}

// NewAnalyticsBlockResponse converts a block model into a DTO. The code
// field always reflects the preset when one is referenced.
func NewAnalyticsBlockResponse(block models.AnalyticsBlock) AnalyticsBlockResponse {
	return AnalyticsBlockResponse{
		ID:             block.ID,
		Type:           block.Type,
		Title:          block.Title,
		Code:           block.EffectiveCode(),
		FullWidth:      block.FullWidth,
		Published:      block.Published,
		IsGlobalPreset: block.IsGlobalPreset,
		PresetID:       block.PresetID,
		SubjectID:      block.SubjectID,
	}
}

// CourseSummaryResponse aggregates pipeline results for one course.
type CourseSummaryResponse struct {
	CourseID          uint             `json:"course_id"`
	Attempts          int64            `json:"attempts"`
	GradedAttempts    int64            `json:"graded_attempts"`
	AverageScore      float64          `json:"average_score"`
	ScoreDistribution map[string]int64 `json:"score_distribution"`
	GeneratedAt       time.Time        `json:"generated_at"`
	CacheHit          bool             `json:"cache_hit"`
}
