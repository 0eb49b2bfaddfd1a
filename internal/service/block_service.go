package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/ordered"
	"github.com/noah-isme/gradeflow-api/internal/repository"
)

// BlockService edits the ordered action pipelines owned by content blocks.
// Every mutation is a read-modify-write of the whole pipeline document;
// concurrent edits of the same block are last-writer-wins.
type BlockService interface {
	GetBlock(ctx context.Context, identity Identity, blockID uint) (dto.BlockResponse, error)

	AddAction(ctx context.Context, identity Identity, blockID uint, payload dto.ActionCreateRequest) (dto.ActionResponse, error)
	UpdateAction(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.ActionUpdateRequest) (dto.ActionResponse, error)
	DeleteAction(ctx context.Context, identity Identity, blockID uint, actionID string) error
	CopyAction(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.ActionCopyRequest) (dto.ActionResponse, error)
	MoveAction(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.ActionMoveRequest) (dto.BlockResponse, error)

	AddUnitTest(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.UnitTestRequest) (dto.ActionResponse, error)
	UpdateUnitTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string, payload dto.UnitTestRequest) (dto.ActionResponse, error)
	DeleteUnitTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string) (dto.ActionResponse, error)
	DuplicateUnitTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string) (dto.ActionResponse, error)
	MoveUnitTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string, payload dto.TestMoveRequest) (dto.ActionResponse, error)

	AddIOTest(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.IOTestRequest) (dto.ActionResponse, error)
	UpdateIOTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string, payload dto.IOTestRequest) (dto.ActionResponse, error)
	DeleteIOTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string) (dto.ActionResponse, error)
	DuplicateIOTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string) (dto.ActionResponse, error)
	MoveIOTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string, payload dto.TestMoveRequest) (dto.ActionResponse, error)
}

// ErrBlockNotFound indicates the block cannot be located.
var ErrBlockNotFound = errors.New("block not found")

// ErrActionNotFound indicates the action is not part of the block's pipeline.
var ErrActionNotFound = errors.New("action not found")

// ErrTestNotFound indicates the test is not part of the action.
var ErrTestNotFound = errors.New("test not found")

// ErrInvalidPosition indicates a placement index outside the list bounds.
var ErrInvalidPosition = errors.New("invalid position")

// ErrCourseArchived indicates the owning course no longer accepts edits.
var ErrCourseArchived = errors.New("course is archived")

// ErrForbidden indicates the caller lacks the required capability.
var ErrForbidden = errors.New("forbidden")

// ErrUnknownActionKind indicates an action kind outside the supported set.
var ErrUnknownActionKind = errors.New("unknown action kind")

const (
	unitTestNamePrefix = "unitTest"
	ioTestNamePrefix   = "ioTest"
)

type blockService struct {
	blocks    repository.BlockRepository
	auth      Authorizer
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewBlockService constructs the block pipeline editing service.
func NewBlockService(blocks repository.BlockRepository, auth Authorizer, validate *validator.Validate, logger zerolog.Logger) BlockService {
	return &blockService{
		blocks:    blocks,
		auth:      auth,
		validator: validate,
		logger:    logger.With().Str("component", "block_service").Logger(),
	}
}

func (s *blockService) GetBlock(ctx context.Context, identity Identity, blockID uint) (dto.BlockResponse, error) {
	block, err := s.getBlock(ctx, blockID)
	if err != nil {
		return dto.BlockResponse{}, err
	}

	if !s.auth.Can(identity, CapabilityEditPipeline) {
		block.Actions = visibleActions(block.Actions)
	}
	return dto.NewBlockResponse(block), nil
}

func (s *blockService) AddAction(ctx context.Context, identity Identity, blockID uint, payload dto.ActionCreateRequest) (dto.ActionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ActionResponse{}, err
	}

	block, err := s.editableBlock(ctx, identity, blockID)
	if err != nil {
		return dto.ActionResponse{}, err
	}

	action, err := models.NewAction(block.ID, models.ActionKind(payload.Kind), payload.TeacherOnly)
	if err != nil {
		return dto.ActionResponse{}, ErrUnknownActionKind
	}

	index := -1
	if payload.BeforeIndex != nil {
		index = *payload.BeforeIndex
	}
	actions, err := ordered.InsertAt(block.Actions, action, index)
	if err != nil {
		return dto.ActionResponse{}, mapOrderedError(err)
	}
	block.Actions = actions

	if err := s.blocks.Save(ctx, &block); err != nil {
		return dto.ActionResponse{}, err
	}
	return dto.NewActionResponse(action), nil
}

func (s *blockService) UpdateAction(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.ActionUpdateRequest) (dto.ActionResponse, error) {
	block, err := s.editableBlock(ctx, identity, blockID)
	if err != nil {
		return dto.ActionResponse{}, err
	}

	index := block.ActionIndex(actionID)
	if index < 0 {
		return dto.ActionResponse{}, ErrActionNotFound
	}

	action := block.Actions[index]
	applyActionPatch(&action, payload)
	block.Actions[index] = action

	if err := s.blocks.Save(ctx, &block); err != nil {
		return dto.ActionResponse{}, err
	}
	return dto.NewActionResponse(action), nil
}

func (s *blockService) DeleteAction(ctx context.Context, identity Identity, blockID uint, actionID string) error {
	block, err := s.editableBlock(ctx, identity, blockID)
	if err != nil {
		return err
	}

	actions, err := ordered.RemoveByID(block.Actions, actionID)
	if err != nil {
		return mapOrderedError(err)
	}
	block.Actions = actions
	return s.blocks.Save(ctx, &block)
}

// CopyAction duplicates an action with fresh identities. KeepIndex places the
// copy immediately after the original; otherwise it lands at the end of the
// pipeline.
func (s *blockService) CopyAction(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.ActionCopyRequest) (dto.ActionResponse, error) {
	block, err := s.editableBlock(ctx, identity, blockID)
	if err != nil {
		return dto.ActionResponse{}, err
	}

	original, ok := block.ActionByID(actionID)
	if !ok {
		return dto.ActionResponse{}, ErrActionNotFound
	}
	copied := original.Clone()

	position := -1
	if payload.KeepIndex {
		position = block.ActionIndex(actionID) + 1
	}
	actions, err := ordered.InsertAt(block.Actions, copied, position)
	if err != nil {
		return dto.ActionResponse{}, mapOrderedError(err)
	}
	block.Actions = actions

	if err := s.blocks.Save(ctx, &block); err != nil {
		return dto.ActionResponse{}, err
	}
	return dto.NewActionResponse(copied), nil
}

func (s *blockService) MoveAction(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.ActionMoveRequest) (dto.BlockResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.BlockResponse{}, err
	}

	block, err := s.editableBlock(ctx, identity, blockID)
	if err != nil {
		return dto.BlockResponse{}, err
	}

	actions, err := ordered.MoveToIndex(block.Actions, actionID, payload.Index)
	if err != nil {
		return dto.BlockResponse{}, mapOrderedError(err)
	}
	block.Actions = actions

	if err := s.blocks.Save(ctx, &block); err != nil {
		return dto.BlockResponse{}, err
	}
	return dto.NewBlockResponse(block), nil
}

func (s *blockService) AddUnitTest(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.UnitTestRequest) (dto.ActionResponse, error) {
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		test := models.UnitTest{
			ID:   newTestID(),
			Name: ordered.UniqueName(action.Tests, unitTestNamePrefix),
		}
		applyUnitTestPatch(&test, payload)

		index := -1
		if payload.BeforeIndex != nil {
			index = *payload.BeforeIndex
		}
		tests, err := ordered.InsertAt(action.Tests, test, index)
		if err != nil {
			return mapOrderedError(err)
		}
		action.Tests = tests
		return nil
	})
}

func (s *blockService) UpdateUnitTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string, payload dto.UnitTestRequest) (dto.ActionResponse, error) {
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		index := ordered.IndexOf(action.Tests, testID)
		if index < 0 {
			return ErrTestNotFound
		}
		applyUnitTestPatch(&action.Tests[index], payload)
		return nil
	})
}

func (s *blockService) DeleteUnitTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string) (dto.ActionResponse, error) {
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		tests, err := ordered.RemoveByID(action.Tests, testID)
		if err != nil {
			return mapTestError(err)
		}
		action.Tests = tests
		return nil
	})
}

// DuplicateUnitTest clones a test right after the original under the next
// free generated name.
func (s *blockService) DuplicateUnitTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string) (dto.ActionResponse, error) {
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		tests, err := ordered.Duplicate(action.Tests, testID, unitTestNamePrefix, func(original models.UnitTest, name string) models.UnitTest {
			copied := original
			copied.ID = newTestID()
			copied.Name = name
			return copied
		})
		if err != nil {
			return mapTestError(err)
		}
		action.Tests = tests
		return nil
	})
}

func (s *blockService) MoveUnitTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string, payload dto.TestMoveRequest) (dto.ActionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ActionResponse{}, err
	}
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		tests, err := ordered.MoveToIndex(action.Tests, testID, payload.Index)
		if err != nil {
			return mapTestError(err)
		}
		action.Tests = tests
		return nil
	})
}

func (s *blockService) AddIOTest(ctx context.Context, identity Identity, blockID uint, actionID string, payload dto.IOTestRequest) (dto.ActionResponse, error) {
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		test := models.IOTest{
			ID:   newTestID(),
			Name: ordered.UniqueName(action.IOTests, ioTestNamePrefix),
		}
		applyIOTestPatch(&test, payload)

		index := -1
		if payload.BeforeIndex != nil {
			index = *payload.BeforeIndex
		}
		tests, err := ordered.InsertAt(action.IOTests, test, index)
		if err != nil {
			return mapOrderedError(err)
		}
		action.IOTests = tests
		return nil
	})
}

func (s *blockService) UpdateIOTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string, payload dto.IOTestRequest) (dto.ActionResponse, error) {
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		index := ordered.IndexOf(action.IOTests, testID)
		if index < 0 {
			return ErrTestNotFound
		}
		applyIOTestPatch(&action.IOTests[index], payload)
		return nil
	})
}

func (s *blockService) DeleteIOTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string) (dto.ActionResponse, error) {
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		tests, err := ordered.RemoveByID(action.IOTests, testID)
		if err != nil {
			return mapTestError(err)
		}
		action.IOTests = tests
		return nil
	})
}

func (s *blockService) DuplicateIOTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string) (dto.ActionResponse, error) {
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		tests, err := ordered.Duplicate(action.IOTests, testID, ioTestNamePrefix, func(original models.IOTest, name string) models.IOTest {
			copied := original
			copied.ID = newTestID()
			copied.Name = name
			return copied
		})
		if err != nil {
			return mapTestError(err)
		}
		action.IOTests = tests
		return nil
	})
}

func (s *blockService) MoveIOTest(ctx context.Context, identity Identity, blockID uint, actionID, testID string, payload dto.TestMoveRequest) (dto.ActionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ActionResponse{}, err
	}
	return s.mutateAction(ctx, identity, blockID, actionID, func(action *models.Action) error {
		tests, err := ordered.MoveToIndex(action.IOTests, testID, payload.Index)
		if err != nil {
			return mapTestError(err)
		}
		action.IOTests = tests
		return nil
	})
}

// mutateAction loads the block, applies the mutation to the addressed action
// in place and saves the whole pipeline document back.
func (s *blockService) mutateAction(ctx context.Context, identity Identity, blockID uint, actionID string, mutate func(action *models.Action) error) (dto.ActionResponse, error) {
	block, err := s.editableBlock(ctx, identity, blockID)
	if err != nil {
		return dto.ActionResponse{}, err
	}

	index := block.ActionIndex(actionID)
	if index < 0 {
		return dto.ActionResponse{}, ErrActionNotFound
	}

	action := block.Actions[index]
	if err := mutate(&action); err != nil {
		return dto.ActionResponse{}, err
	}
	block.Actions[index] = action

	if err := s.blocks.Save(ctx, &block); err != nil {
		return dto.ActionResponse{}, err
	}
	return dto.NewActionResponse(action), nil
}

func (s *blockService) getBlock(ctx context.Context, blockID uint) (models.Block, error) {
	block, err := s.blocks.GetByID(ctx, blockID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Block{}, ErrBlockNotFound
		}
		return models.Block{}, err
	}
	return block, nil
}

// editableBlock loads the block and enforces the mutation guards: the caller
// must hold the pipeline capability and the owning course must not be
// archived.
func (s *blockService) editableBlock(ctx context.Context, identity Identity, blockID uint) (models.Block, error) {
	if !s.auth.Can(identity, CapabilityEditPipeline) {
		return models.Block{}, ErrForbidden
	}

	block, err := s.getBlock(ctx, blockID)
	if err != nil {
		return models.Block{}, err
	}
	if block.Assignment.Course.Archived {
		return models.Block{}, ErrCourseArchived
	}
	return block, nil
}

func visibleActions(actions []models.Action) []models.Action {
	visible := make([]models.Action, 0, len(actions))
	for _, action := range actions {
		if action.TeacherOnly {
			continue
		}
		visible = append(visible, action)
	}
	return visible
}

func applyActionPatch(action *models.Action, payload dto.ActionUpdateRequest) {
	if payload.Condition != nil {
		action.Condition = *payload.Condition
	}
	if payload.StopOnMatch != nil {
		action.StopOnMatch = *payload.StopOnMatch
	}
	if payload.TeacherOnly != nil && action.Kind != models.ActionKindScoreExpression {
		action.TeacherOnly = *payload.TeacherOnly
	}
	if payload.HideFeedback != nil {
		action.HideFeedback = *payload.HideFeedback
	}
	if payload.ForceOverrideCache != nil {
		action.ForceOverrideCache = *payload.ForceOverrideCache
	}
	if payload.Code != nil {
		action.Code = *payload.Code
	}
	if payload.Imports != nil {
		action.Imports = *payload.Imports
	}
	if payload.Text != nil {
		action.Text = *payload.Text
	}
	if payload.TextOnMismatch != nil {
		action.TextOnMismatch = *payload.TextOnMismatch
	}
	if payload.ScoreExpression != nil {
		action.ScoreExpression = *payload.ScoreExpression
	}
	if payload.GitURL != nil {
		action.GitURL = *payload.GitURL
	}
	if payload.GitBranch != nil {
		action.GitBranch = *payload.GitBranch
	}
	if payload.GitPrivateKey != nil && *payload.GitPrivateKey != dto.SecretPlaceholder {
		action.GitPrivateKey = *payload.GitPrivateKey
	}
	if payload.DatabaseFileLabel != nil {
		action.DatabaseFileLabel = *payload.DatabaseFileLabel
	}
	if payload.DatabaseDialect != nil {
		action.DatabaseDialect = *payload.DatabaseDialect
	}
	if payload.Path != nil {
		action.Path = *payload.Path
	}
	if payload.URL != nil {
		action.URL = *payload.URL
	}
	if payload.AnswerEmbedding != nil {
		action.AnswerEmbedding = append([]float32(nil), (*payload.AnswerEmbedding)...)
	}
}

func applyUnitTestPatch(test *models.UnitTest, payload dto.UnitTestRequest) {
	if payload.Name != nil {
		test.Name = *payload.Name
	}
	if payload.Description != nil {
		test.Description = *payload.Description
	}
	if payload.Code != nil {
		test.Code = *payload.Code
	}
	if payload.IsCode != nil {
		test.IsCode = *payload.IsCode
	}
}

func applyIOTestPatch(test *models.IOTest, payload dto.IOTestRequest) {
	if payload.Name != nil {
		test.Name = *payload.Name
	}
	if payload.Description != nil {
		test.Description = *payload.Description
	}
	if payload.Input != nil {
		test.Input = *payload.Input
	}
	if payload.Output != nil {
		test.Output = *payload.Output
	}
	if payload.ComparisonCode != nil {
		test.ComparisonCode = *payload.ComparisonCode
	}
}

func newTestID() string { return uuid.NewString() }

func mapOrderedError(err error) error {
	switch {
	case errors.Is(err, ordered.ErrNotFound):
		return ErrActionNotFound
	case errors.Is(err, ordered.ErrInvalidIndex):
		return ErrInvalidPosition
	default:
		return err
	}
}

func mapTestError(err error) error {
	switch {
	case errors.Is(err, ordered.ErrNotFound):
		return ErrTestNotFound
	case errors.Is(err, ordered.ErrInvalidIndex):
		return ErrInvalidPosition
	default:
		return err
	}
}
