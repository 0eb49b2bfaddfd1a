package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ActionKind discriminates the check variants an action can carry. Only the
// payload fields belonging to the active kind are meaningful.
type ActionKind string

// Known action kinds.
const (
	ActionKindRunCode         ActionKind = "run_code"
	ActionKindUnitTest        ActionKind = "unit_test"
	ActionKindIOTest          ActionKind = "io_test"
	ActionKindDatabaseCheck   ActionKind = "database_check"
	ActionKindGitDiffCheck    ActionKind = "git_diff_check"
	ActionKindEmbeddingCheck  ActionKind = "embedding_check"
	ActionKindScoreExpression ActionKind = "score_expression"
	ActionKindTextFeedback    ActionKind = "text_feedback"
)

// Valid reports whether the kind belongs to the closed variant set.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionKindRunCode, ActionKindUnitTest, ActionKindIOTest,
		ActionKindDatabaseCheck, ActionKindGitDiffCheck, ActionKindEmbeddingCheck,
		ActionKindScoreExpression, ActionKindTextFeedback:
		return true
	}
	return false
}

// Action is one configured check step in a block's grading pipeline. Actions
// are embedded sub-documents of their owning block; order is determined
// solely by position in the block's action list.
type Action struct {
	ID      string     `json:"id"`
	BlockID uint       `json:"block_id"`
	Kind    ActionKind `json:"kind"`

	// Control fields, honored by the pipeline evaluator.
	Condition          string `json:"condition,omitempty"`
	StopOnMatch        bool   `json:"stop_on_match,omitempty"`
	TeacherOnly        bool   `json:"teacher_only,omitempty"`
	HideFeedback       bool   `json:"hide_feedback,omitempty"`
	ForceOverrideCache bool   `json:"force_override_cache,omitempty"`

	// Kind-dependent payload fields.
	Code              string    `json:"code,omitempty"`
	Imports           string    `json:"imports,omitempty"`
	Text              string    `json:"text,omitempty"`
	TextOnMismatch    string    `json:"text_on_mismatch,omitempty"`
	ScoreExpression   string    `json:"score_expression,omitempty"`
	GitURL            string    `json:"git_url,omitempty"`
	GitBranch         string    `json:"git_branch,omitempty"`
	GitPrivateKey     string    `json:"git_private_key,omitempty"`
	DatabaseFileLabel string    `json:"database_file_label,omitempty"`
	DatabaseDialect   string    `json:"database_dialect,omitempty"`
	Path              string    `json:"path,omitempty"`
	URL               string    `json:"url,omitempty"`
	AnswerEmbedding   []float32 `json:"answer_embedding,omitempty"`

	// Owned, independently ordered test lists.
	Tests   []UnitTest `json:"tests,omitempty"`
	IOTests []IOTest   `json:"io_tests,omitempty"`
}

// NewAction constructs an action for a block. A score-expression action is
// always teacher-only regardless of the caller's flag.
func NewAction(blockID uint, kind ActionKind, teacherOnly bool) (Action, error) {
	if !kind.Valid() {
		return Action{}, fmt.Errorf("unknown action kind %q", kind)
	}
	if kind == ActionKindScoreExpression {
		teacherOnly = true
	}
	return Action{
		ID:          uuid.NewString(),
		BlockID:     blockID,
		Kind:        kind,
		TeacherOnly: teacherOnly,
	}, nil
}

// Identity implements ordered.Element.
func (a Action) Identity() string { return a.ID }

// DisplayName implements ordered.Element.
func (a Action) DisplayName() string { return string(a.Kind) }

// HasSecret reports whether the action carries a git private key.
func (a Action) HasSecret() bool { return a.GitPrivateKey != "" }

// Clone deep-copies the action with fresh identities for itself and all of
// its owned tests. BlockID is preserved; it never changes after creation.
func (a Action) Clone() Action {
	copied := a
	copied.ID = uuid.NewString()

	copied.Tests = make([]UnitTest, len(a.Tests))
	for i, test := range a.Tests {
		copied.Tests[i] = test
		copied.Tests[i].ID = uuid.NewString()
	}

	copied.IOTests = make([]IOTest, len(a.IOTests))
	for i, test := range a.IOTests {
		copied.IOTests[i] = test
		copied.IOTests[i].ID = uuid.NewString()
	}

	if a.AnswerEmbedding != nil {
		copied.AnswerEmbedding = append([]float32(nil), a.AnswerEmbedding...)
	}

	return copied
}

// UnitTest is a leaf check definition owned by an action.
type UnitTest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code"`
	IsCode      bool   `json:"is_code,omitempty"`
}

// Identity implements ordered.Element.
func (t UnitTest) Identity() string { return t.ID }

// DisplayName implements ordered.Element.
func (t UnitTest) DisplayName() string { return t.Name }

// IOTest is an input/output check definition owned by an action.
type IOTest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Input          string `json:"input"`
	Output         string `json:"output"`
	ComparisonCode string `json:"comparison_code,omitempty"`
}

// Identity implements ordered.Element.
func (t IOTest) Identity() string { return t.ID }

// DisplayName implements ordered.Element.
func (t IOTest) DisplayName() string { return t.Name }
