package models

import (
	"time"

	"gorm.io/datatypes"
)

// Block is a unit of assignment content owning an ordered action pipeline.
// The actions column is the whole pipeline document; array position is the
// only ordering, there is no rank field.
type Block struct {
	ID           uint                         `gorm:"primaryKey" json:"id"`
	AssignmentID uint                         `gorm:"not null;index" json:"assignment_id"`
	Title        string                       `gorm:"size:255;not null" json:"title"`
	Actions      datatypes.JSONSlice[Action]  `json:"actions"`
	CreatedAt    time.Time                    `json:"created_at"`
	UpdatedAt    time.Time                    `json:"updated_at"`
	Assignment   Assignment                   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
}

// ActionIndex locates an action by id inside the pipeline, returning -1 when
// absent.
func (b Block) ActionIndex(actionID string) int {
	for i, action := range b.Actions {
		if action.ID == actionID {
			return i
		}
	}
	return -1
}

// ActionByID returns a copy of the action with the given id.
func (b Block) ActionByID(actionID string) (Action, bool) {
	index := b.ActionIndex(actionID)
	if index < 0 {
		return Action{}, false
	}
	return b.Actions[index], true
}
