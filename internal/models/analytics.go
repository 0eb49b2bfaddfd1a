package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalyticsBlockType scopes what an analytics computation runs against.
const (
	AnalyticsTypeOrganization = "organization"
	AnalyticsTypeCourse       = "course"
	AnalyticsTypeAssignment   = "assignment"
	AnalyticsTypeStudent      = "student"
)

// AnalyticsBlock is a reusable computation descriptor. When PresetID is set
// the block's own code is ignored and the referenced global preset's current
// code is used at both read and compute time; the preset code is never
// copied into this row.
type AnalyticsBlock struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Type           string         `gorm:"size:32;not null" json:"type"`
	Title          string         `gorm:"size:255;not null" json:"title"`
	Code           string         `gorm:"type:text" json:"code"`
	ParamsSchema   string         `gorm:"type:text" json:"params_schema"`
	FullWidth      bool           `gorm:"not null;default:false" json:"full_width"`
	Published      bool           `gorm:"not null;default:false" json:"published"`
	IsGlobalPreset bool           `gorm:"not null;default:false" json:"is_global_preset"`
	PresetID       *uint          `gorm:"index" json:"preset_id"`
	SubjectID      *uint          `gorm:"index" json:"subject_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Preset         *AnalyticsBlock `gorm:"foreignKey:PresetID" json:"preset,omitempty"`
}

// EffectiveCode resolves the code to compute with. The preset, when
// referenced, is always authoritative.
func (b AnalyticsBlock) EffectiveCode() string {
	if b.PresetID != nil && b.Preset != nil {
		return b.Preset.Code
	}
	return b.Code
}

// AnalyticsBlockCache is one computed result scoped to (block, target). A
// block accumulates one row per distinct target it has been computed
// against; rows are only ever replaced by an explicit recompute.
type AnalyticsBlockCache struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	AnalyticsBlockID uint           `gorm:"not null;uniqueIndex:idx_analytics_cache_key" json:"analytics_block_id"`
	TargetID         *string        `gorm:"size:64;uniqueIndex:idx_analytics_cache_key" json:"target_id"`
	Result           datatypes.JSON `json:"result"`
	ComputedAt       time.Time      `json:"computed_at"`
}
