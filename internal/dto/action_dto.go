package dto

import (
	"time"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// SecretPlaceholder is what readers see in place of a stored secret. The
// original value is never echoed back.
const SecretPlaceholder = "<hidden>"

// ActionCreateRequest adds a new action to a block's pipeline. BeforeIndex
// nil appends.
type ActionCreateRequest struct {
	Kind        string `json:"kind" validate:"required"`
	TeacherOnly bool   `json:"teacher_only"`
	BeforeIndex *int   `json:"before_index" validate:"omitempty,gte=0"`
}

// ActionUpdateRequest patches an existing action. Only non-nil fields are
// applied; kind and block ownership never change after creation.
type ActionUpdateRequest struct {
	Condition          *string    `json:"condition"`
	StopOnMatch        *bool      `json:"stop_on_match"`
	TeacherOnly        *bool      `json:"teacher_only"`
	HideFeedback       *bool      `json:"hide_feedback"`
	ForceOverrideCache *bool      `json:"force_override_cache"`
	Code               *string    `json:"code"`
	Imports            *string    `json:"imports"`
	Text               *string    `json:"text"`
	TextOnMismatch     *string    `json:"text_on_mismatch"`
	ScoreExpression    *string    `json:"score_expression"`
	GitURL             *string    `json:"git_url"`
	GitBranch          *string    `json:"git_branch"`
	GitPrivateKey      *string    `json:"git_private_key"`
	DatabaseFileLabel  *string    `json:"database_file_label"`
	DatabaseDialect    *string    `json:"database_dialect"`
	Path               *string    `json:"path"`
	URL                *string    `json:"url"`
	AnswerEmbedding    *[]float32 `json:"answer_embedding"`
}

// ActionCopyRequest duplicates an action inside its block. KeepIndex places
// the copy immediately after the original instead of at the end.
type ActionCopyRequest struct {
	KeepIndex bool `json:"keep_index"`
}

// ActionMoveRequest relocates an action to an explicit position.
type ActionMoveRequest struct {
	Index int `json:"index" validate:"gte=0"`
}

// UnitTestRequest creates or updates a unit test on an action.
type UnitTestRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Description *string `json:"description"`
	Code        *string `json:"code"`
	IsCode      *bool   `json:"is_code"`
	BeforeIndex *int    `json:"before_index" validate:"omitempty,gte=0"`
}

// IOTestRequest creates or updates an IO test on an action.
type IOTestRequest struct {
	Name           *string `json:"name" validate:"omitempty,min=1"`
	Description    *string `json:"description"`
	Input          *string `json:"input"`
	Output         *string `json:"output"`
	ComparisonCode *string `json:"comparison_code"`
	BeforeIndex    *int    `json:"before_index" validate:"omitempty,gte=0"`
}

// TestMoveRequest relocates a test within its action.
type TestMoveRequest struct {
	Index int `json:"index" validate:"gte=0"`
}

// ActionResponse serializes an action for API clients. The git private key
// is replaced by a fixed placeholder when present and empty otherwise.
type ActionResponse struct {
	ID                 string               `json:"id"`
	BlockID            uint                 `json:"block_id"`
	Kind               string               `json:"kind"`
	Condition          string               `json:"condition,omitempty"`
	StopOnMatch        bool                 `json:"stop_on_match"`
	TeacherOnly        bool                 `json:"teacher_only"`
	HideFeedback       bool                 `json:"hide_feedback"`
	ForceOverrideCache bool                 `json:"force_override_cache"`
	Code               string               `json:"code,omitempty"`
	Imports            string               `json:"imports,omitempty"`
	Text               string               `json:"text,omitempty"`
	TextOnMismatch     string               `json:"text_on_mismatch,omitempty"`
	ScoreExpression    string               `json:"score_expression,omitempty"`
	GitURL             string               `json:"git_url,omitempty"`
	GitBranch          string               `json:"git_branch,omitempty"`
	GitPrivateKey      string               `json:"git_private_key"`
	DatabaseFileLabel  string               `json:"database_file_label,omitempty"`
	DatabaseDialect    string               `json:"database_dialect,omitempty"`
	Path               string               `json:"path,omitempty"`
	URL                string               `json:"url,omitempty"`
	Tests              []UnitTestResponse   `json:"tests"`
	IOTests            []IOTestResponse     `json:"io_tests"`
}

// UnitTestResponse serializes a unit test.
type UnitTestResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code"`
	IsCode      bool   `json:"is_code"`
}

// IOTestResponse serializes an IO test.
type IOTestResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Input          string `json:"input"`
	Output         string `json:"output"`
	ComparisonCode string `json:"comparison_code,omitempty"`
}

// BlockResponse serializes a block with its ordered pipeline.
type BlockResponse struct {
	ID           uint             `json:"id"`
	AssignmentID uint             `json:"assignment_id"`
	Title        string           `json:"title"`
	Actions      []ActionResponse `json:"actions"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewActionResponse converts an action model into a DTO, redacting secrets.
func NewActionResponse(action models.Action) ActionResponse {
	secret := ""
	if action.HasSecret() {
		secret = SecretPlaceholder
	}

	tests := make([]UnitTestResponse, 0, len(action.Tests))
	for _, test := range action.Tests {
		tests = append(tests, UnitTestResponse{
			ID:          test.ID,
			Name:        test.Name,
			Description: test.Description,
			Code:        test.Code,
			IsCode:      test.IsCode,
		})
	}

	ioTests := make([]IOTestResponse, 0, len(action.IOTests))
	for _, test := range action.IOTests {
		ioTests = append(ioTests, IOTestResponse{
			ID:             test.ID,
			Name:           test.Name,
			Description:    test.Description,
			Input:          test.Input,
			Output:         test.Output,
			ComparisonCode: test.ComparisonCode,
		})
	}

	return ActionResponse{
		ID:                 action.ID,
		BlockID:            action.BlockID,
		Kind:               string(action.Kind),
		Condition:          action.Condition,
		StopOnMatch:        action.StopOnMatch,
		TeacherOnly:        action.TeacherOnly,
		HideFeedback:       action.HideFeedback,
		ForceOverrideCache: action.ForceOverrideCache,
		Code:               action.Code,
		Imports:            action.Imports,
		Text:               action.Text,
		TextOnMismatch:     action.TextOnMismatch,
		ScoreExpression:    action.ScoreExpression,
		GitURL:             action.GitURL,
		GitBranch:          action.GitBranch,
		GitPrivateKey:      secret,
		DatabaseFileLabel:  action.DatabaseFileLabel,
		DatabaseDialect:    action.DatabaseDialect,
		Path:               action.Path,
		URL:                action.URL,
		Tests:              tests,
		IOTests:            ioTests,
	}
}

// NewBlockResponse converts a block model into a DTO.
func NewBlockResponse(block models.Block) BlockResponse {
	actions := make([]ActionResponse, 0, len(block.Actions))
	for _, action := range block.Actions {
		actions = append(actions, NewActionResponse(action))
	}
	return BlockResponse{
		ID:           block.ID,
		AssignmentID: block.AssignmentID,
		Title:        block.Title,
		Actions:      actions,
		UpdatedAt:    block.UpdatedAt,
	}
}
