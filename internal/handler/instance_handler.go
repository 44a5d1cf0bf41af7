package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/service"
	"github.com/noah-isme/pace-go-api/internal/utils"
)

// InstanceHandler wires shuffled assessment instance HTTP routes.
type InstanceHandler struct {
	service service.ShuffleService
	logger  zerolog.Logger
}

// NewInstanceHandler constructs the handler.
func NewInstanceHandler(service service.ShuffleService, logger zerolog.Logger) *InstanceHandler {
	return &InstanceHandler{
		service: service,
		logger:  logger.With().Str("component", "instance_handler").Logger(),
	}
}

// Register attaches instance endpoints to the router group.
func (h *InstanceHandler) Register(router fiber.Router) {
	router.Get("/:assessmentId/instances", h.list)
	router.Post("/:assessmentId/instances", h.generate)
	router.Delete("/:assessmentId/instances", h.deactivate)
	router.Get("/:assessmentId/instances/validate", h.validate)
}

func (h *InstanceHandler) list(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "assessmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	instances, err := h.service.ListInstances(c.Context(), assessmentID)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "assessment instances retrieved", instances)
}

func (h *InstanceHandler) generate(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "assessmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GenerateInstancesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.AssessmentID = assessmentID

	result, err := h.service.GenerateInstances(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment instances generated", result)
}

func (h *InstanceHandler) deactivate(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "assessmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	count, err := h.service.DeleteInstances(c.Context(), assessmentID)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "assessment instances deactivated", fiber.Map{"deactivated": count})
}

func (h *InstanceHandler) validate(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "assessmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	periodCount, err := parseQueryInt(c, "period_count")
	if err != nil || periodCount < 1 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid period count")
	}

	result, err := h.service.Validate(c.Context(), assessmentID, periodCount)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "shuffle validation computed", result)
}

func (h *InstanceHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrInsufficientQuestions),
		errors.Is(err, service.ErrNoQuestions):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *InstanceHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
