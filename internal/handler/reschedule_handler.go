package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/service"
	"github.com/noah-isme/pace-go-api/internal/utils"
)

// RescheduleHandler wires assessment window reschedule HTTP routes and
// the per-student event stream.
type RescheduleHandler struct {
	service service.RescheduleService
	events  service.RescheduleEventPublisher
	logger  zerolog.Logger
	timeout time.Duration
}

// NewRescheduleHandler constructs the handler. The event publisher is
// optional; without it the stream endpoint responds 503.
func NewRescheduleHandler(service service.RescheduleService, events service.RescheduleEventPublisher, logger zerolog.Logger, timeout time.Duration) *RescheduleHandler {
	return &RescheduleHandler{
		service: service,
		events:  events,
		logger:  logger.With().Str("component", "reschedule_handler").Logger(),
		timeout: timeout,
	}
}

// Register attaches reschedule endpoints to the router group.
func (h *RescheduleHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Post("/:id/cancel", h.cancel)
	router.Get("/stream/:studentId", h.stream)
}

func (h *RescheduleHandler) list(c *fiber.Ctx) error {
	teacherID, err := teacherIDFromRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var studentID *uint
	if value, err := parseQueryInt(c, "student_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	} else if value > 0 {
		id := uint(value)
		studentID = &id
	}

	results, err := h.service.ListByTeacher(c.Context(), teacherID, studentID)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "reschedules retrieved", results)
}

func (h *RescheduleHandler) create(c *fiber.Ctx) error {
	teacherID, err := teacherIDFromRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RescheduleCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Reschedule(c.Context(), teacherID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment window rescheduled", result)
}

func (h *RescheduleHandler) cancel(c *fiber.Ctx) error {
	teacherID, err := teacherIDFromRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RescheduleCancelRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Cancel(c.Context(), teacherID, id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "reschedule cancelled", result)
}

func (h *RescheduleHandler) stream(c *fiber.Ctx) error {
	if h.events == nil {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "event stream unavailable")
	}

	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	stream, cleanup := h.events.Subscribe(studentID)

	keepAliveInterval := h.timeout
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cleanup()

		ticker := time.NewTicker(keepAliveInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-stream:
				if !ok {
					return
				}
				if err := writeRescheduleEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write reschedule event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write reschedule keepalive")
					return
				}
			}
		}
	})

	return nil
}

func (h *RescheduleHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrProgressNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "lesson progress not found")
	case errors.Is(err, service.ErrRescheduleNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "reschedule not found")
	case errors.Is(err, service.ErrNotAuthorized):
		return utils.SendError(c, fiber.StatusForbidden, "teacher not authorized for this subject")
	case errors.Is(err, service.ErrRescheduleTooLate):
		return utils.SendError(c, fiber.StatusConflict, "assessment window already opened")
	case errors.Is(err, service.ErrRescheduleConflict):
		return utils.SendError(c, fiber.StatusConflict, "reschedule superseded concurrently")
	case errors.Is(err, service.ErrRescheduleCancelled):
		return utils.SendError(c, fiber.StatusConflict, "reschedule already cancelled")
	case errors.Is(err, service.ErrCancelWindowOpen):
		return utils.SendError(c, fiber.StatusConflict, "rescheduled window already open")
	case errors.Is(err, service.ErrNoAssessmentWindow):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "lesson progress has no assessment window")
	case errors.Is(err, service.ErrWindowStartNotFuture),
		errors.Is(err, service.ErrReasonTooShort):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *RescheduleHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

func writeRescheduleEvent(w *bufio.Writer, event service.RescheduleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
