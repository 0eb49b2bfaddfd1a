package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/service"
	"github.com/noah-isme/gradeflow-api/internal/utils"
)

// BlockHandler wires pipeline editing HTTP routes.
type BlockHandler struct {
	service service.BlockService
	logger  zerolog.Logger
}

// NewBlockHandler constructs the handler.
func NewBlockHandler(service service.BlockService, logger zerolog.Logger) *BlockHandler {
	return &BlockHandler{
		service: service,
		logger:  logger.With().Str("component", "block_handler").Logger(),
	}
}

// Register attaches block and pipeline endpoints to the router group.
func (h *BlockHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)

	router.Post("/:id/actions", h.addAction)
	router.Patch("/:id/actions/:actionID", h.updateAction)
	router.Delete("/:id/actions/:actionID", h.deleteAction)
	router.Post("/:id/actions/:actionID/copy", h.copyAction)
	router.Post("/:id/actions/:actionID/move", h.moveAction)

	router.Post("/:id/actions/:actionID/tests", h.addUnitTest)
	router.Patch("/:id/actions/:actionID/tests/:testID", h.updateUnitTest)
	router.Delete("/:id/actions/:actionID/tests/:testID", h.deleteUnitTest)
	router.Post("/:id/actions/:actionID/tests/:testID/duplicate", h.duplicateUnitTest)
	router.Post("/:id/actions/:actionID/tests/:testID/move", h.moveUnitTest)

	router.Post("/:id/actions/:actionID/io-tests", h.addIOTest)
	router.Patch("/:id/actions/:actionID/io-tests/:testID", h.updateIOTest)
	router.Delete("/:id/actions/:actionID/io-tests/:testID", h.deleteIOTest)
	router.Post("/:id/actions/:actionID/io-tests/:testID/duplicate", h.duplicateIOTest)
	router.Post("/:id/actions/:actionID/io-tests/:testID/move", h.moveIOTest)
}

func (h *BlockHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	block, err := h.service.GetBlock(c.Context(), identityFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "block retrieved", block)
}

func (h *BlockHandler) addAction(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ActionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := h.service.AddAction(c.Context(), identityFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "action created", action)
}

func (h *BlockHandler) updateAction(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ActionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := h.service.UpdateAction(c.Context(), identityFromContext(c), id, c.Params("actionID"), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "action updated", action)
}

func (h *BlockHandler) deleteAction(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteAction(c.Context(), identityFromContext(c), id, c.Params("actionID")); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "action deleted", fiber.Map{"id": c.Params("actionID")})
}

func (h *BlockHandler) copyAction(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ActionCopyRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := h.service.CopyAction(c.Context(), identityFromContext(c), id, c.Params("actionID"), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "action copied", action)
}

func (h *BlockHandler) moveAction(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ActionMoveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	block, err := h.service.MoveAction(c.Context(), identityFromContext(c), id, c.Params("actionID"), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "action moved", block)
}

func (h *BlockHandler) addUnitTest(c *fiber.Ctx) error {
	return h.unitTestMutation(c, "test created", func(payload dto.UnitTestRequest, id uint) (dto.ActionResponse, error) {
		return h.service.AddUnitTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), payload)
	})
}

func (h *BlockHandler) updateUnitTest(c *fiber.Ctx) error {
	return h.unitTestMutation(c, "test updated", func(payload dto.UnitTestRequest, id uint) (dto.ActionResponse, error) {
		return h.service.UpdateUnitTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), c.Params("testID"), payload)
	})
}

func (h *BlockHandler) deleteUnitTest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	action, err := h.service.DeleteUnitTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), c.Params("testID"))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "test deleted", action)
}

func (h *BlockHandler) duplicateUnitTest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	action, err := h.service.DuplicateUnitTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), c.Params("testID"))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test duplicated", action)
}

func (h *BlockHandler) moveUnitTest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TestMoveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := h.service.MoveUnitTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), c.Params("testID"), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "test moved", action)
}

func (h *BlockHandler) addIOTest(c *fiber.Ctx) error {
	return h.ioTestMutation(c, "io test created", func(payload dto.IOTestRequest, id uint) (dto.ActionResponse, error) {
		return h.service.AddIOTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), payload)
	})
}

func (h *BlockHandler) updateIOTest(c *fiber.Ctx) error {
	return h.ioTestMutation(c, "io test updated", func(payload dto.IOTestRequest, id uint) (dto.ActionResponse, error) {
		return h.service.UpdateIOTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), c.Params("testID"), payload)
	})
}

func (h *BlockHandler) deleteIOTest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	action, err := h.service.DeleteIOTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), c.Params("testID"))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "io test deleted", action)
}

func (h *BlockHandler) duplicateIOTest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	action, err := h.service.DuplicateIOTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), c.Params("testID"))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "io test duplicated", action)
}

func (h *BlockHandler) moveIOTest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TestMoveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := h.service.MoveIOTest(c.Context(), identityFromContext(c), id, c.Params("actionID"), c.Params("testID"), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "io test moved", action)
}

func (h *BlockHandler) unitTestMutation(c *fiber.Ctx, message string, apply func(payload dto.UnitTestRequest, id uint) (dto.ActionResponse, error)) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.UnitTestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := apply(payload, id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, message, action)
}

func (h *BlockHandler) ioTestMutation(c *fiber.Ctx, message string, apply func(payload dto.IOTestRequest, id uint) (dto.ActionResponse, error)) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.IOTestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	action, err := apply(payload, id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, message, action)
}

func (h *BlockHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrBlockNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "block not found")
	case errors.Is(err, service.ErrActionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "action not found")
	case errors.Is(err, service.ErrTestNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "test not found")
	case errors.Is(err, service.ErrInvalidPosition):
		return utils.SendError(c, fiber.StatusBadRequest, "invalid position")
	case errors.Is(err, service.ErrUnknownActionKind):
		return utils.SendError(c, fiber.StatusBadRequest, "unknown action kind")
	case errors.Is(err, service.ErrCourseArchived):
		return utils.SendError(c, fiber.StatusConflict, "course is archived")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
