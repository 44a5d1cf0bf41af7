package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/middleware"
	"github.com/noah-isme/pace-go-api/internal/models"
	"github.com/noah-isme/pace-go-api/internal/observability"
	"github.com/noah-isme/pace-go-api/internal/repository"
)

var (
	// ErrRescheduleNotFound indicates the requested reschedule does not exist.
	ErrRescheduleNotFound = errors.New("reschedule not found")
	// ErrRescheduleTooLate means the original window has already opened, so
	// the record is no longer reschedulable.
	ErrRescheduleTooLate = errors.New("assessment window already opened")
	// ErrRescheduleConflict means a concurrent reschedule won the race.
	ErrRescheduleConflict = errors.New("reschedule superseded concurrently")
	// ErrRescheduleCancelled means the reschedule was already cancelled.
	ErrRescheduleCancelled = errors.New("reschedule already cancelled")
	// ErrCancelWindowOpen refuses cancellation once the replacement window
	// has opened: students may already be inside it.
	ErrCancelWindowOpen = errors.New("rescheduled window already open, cannot cancel")
	// ErrNotAuthorized means the teacher does not teach the record's subject.
	ErrNotAuthorized = errors.New("teacher not authorized for this subject")
	// ErrNoAssessmentWindow means the progress record has no window to move.
	ErrNoAssessmentWindow = errors.New("lesson progress has no assessment window")
	// ErrWindowStartNotFuture rejects replacement windows opening in the past.
	ErrWindowStartNotFuture = errors.New("new window start must be in the future")
	// ErrReasonTooShort rejects reasons that sanitize down to nothing useful.
	ErrReasonTooShort = errors.New("reason too short after sanitization")
)

// defaultReasonMinLength applies when configuration does not set a
// stricter reason policy.
const defaultReasonMinLength = 10

// RescheduleService moves not-yet-opened assessment windows. Every
// replacement window is exactly one hour long with a thirty minute
// grace, regardless of what the original looked like.
type RescheduleService interface {
	Reschedule(ctx context.Context, teacherID uint, payload dto.RescheduleCreateRequest) (dto.RescheduleResponse, error)
	Cancel(ctx context.Context, teacherID uint, rescheduleID uint, payload dto.RescheduleCancelRequest) (dto.RescheduleResponse, error)
	ListByTeacher(ctx context.Context, teacherID uint, studentID *uint) ([]dto.RescheduleResponse, error)
}

type rescheduleService struct {
	reschedules repository.RescheduleRepository
	progress    repository.ProgressRepository
	teachers    repository.TeacherRepository
	events      RescheduleEventPublisher
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	reasonMin   int
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewRescheduleService builds a reschedule service. The event publisher
// is optional; a non-positive reasonMinLength falls back to the default
// policy.
func NewRescheduleService(reschedules repository.RescheduleRepository, progress repository.ProgressRepository, teachers repository.TeacherRepository, events RescheduleEventPublisher, validate *validator.Validate, reasonMinLength int, logger zerolog.Logger) RescheduleService {
	if reasonMinLength <= 0 {
		reasonMinLength = defaultReasonMinLength
	}

	return &rescheduleService{
		reschedules: reschedules,
		progress:    progress,
		teachers:    teachers,
		events:      events,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		reasonMin:   reasonMinLength,
		logger:      logger.With().Str("component", "reschedule_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/pace-go-api/internal/service/reschedule"),
		now:         time.Now,
	}
}

func (s *rescheduleService) Reschedule(ctx context.Context, teacherID uint, payload dto.RescheduleCreateRequest) (dto.RescheduleResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RescheduleResponse{}, err
	}

	reason, err := s.cleanReason(payload.Reason)
	if err != nil {
		return dto.RescheduleResponse{}, err
	}

	newStart, err := time.Parse(time.RFC3339, payload.NewWindowStart)
	if err != nil {
		return dto.RescheduleResponse{}, fmt.Errorf("invalid new window start: %w", err)
	}

	spanCtx, span := s.tracer.Start(ctx, "reschedules.create", trace.WithAttributes(
		attribute.Int("reschedule.teacher_id", int(teacherID)),
		attribute.Int("reschedule.progress_id", int(payload.LessonProgressID)),
	))
	defer span.End()

	now := s.now()

	if !newStart.After(now) {
		observability.Reschedules().WithLabelValues("rejected").Inc()
		return dto.RescheduleResponse{}, ErrWindowStartNotFuture
	}

	record, err := s.progress.GetByID(spanCtx, payload.LessonProgressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RescheduleResponse{}, ErrProgressNotFound
		}

		span.RecordError(err)
		return dto.RescheduleResponse{}, err
	}

	if err := s.authorize(spanCtx, teacherID, record.SubjectID); err != nil {
		observability.Reschedules().WithLabelValues("unauthorized").Inc()
		return dto.RescheduleResponse{}, err
	}

	if record.AssessmentWindowStart == nil || record.AssessmentWindowEnd == nil {
		observability.Reschedules().WithLabelValues("rejected").Inc()
		return dto.RescheduleResponse{}, ErrNoAssessmentWindow
	}

	active, err := s.reschedules.FindActiveByProgress(spanCtx, record.ID)
	if err != nil {
		span.RecordError(err)
		return dto.RescheduleResponse{}, err
	}

	// The original window is frozen at the first reschedule and carried
	// through every supersede, so the precondition never drifts forward.
	originalStart := *record.AssessmentWindowStart
	originalEnd := *record.AssessmentWindowEnd
	originalGrace := record.GracePeriodEnd
	var expectedActiveID *uint
	if active != nil {
		originalStart = active.OriginalWindowStart
		originalEnd = active.OriginalWindowEnd
		originalGrace = active.OriginalGraceEnd
		activeID := active.ID
		expectedActiveID = &activeID
	}

	if !now.Before(originalStart) {
		observability.Reschedules().WithLabelValues("too_late").Inc()
		return dto.RescheduleResponse{}, ErrRescheduleTooLate
	}

	newEnd := newStart.Add(models.RescheduledWindowDuration)
	reschedule := models.WindowReschedule{
		LessonProgressID:    record.ID,
		StudentID:           record.StudentID,
		TeacherID:           teacherID,
		OriginalWindowStart: originalStart,
		OriginalWindowEnd:   originalEnd,
		OriginalGraceEnd:    originalGrace,
		NewWindowStart:      newStart,
		NewWindowEnd:        newEnd,
		NewGraceEnd:         newEnd.Add(models.RescheduledGraceDuration),
		Reason:              reason,
		RescheduledAt:       now,
		IsActive:            true,
	}
	if record.AssessmentID != nil {
		reschedule.AssessmentID = *record.AssessmentID
	}

	if err := s.reschedules.Supersede(spanCtx, &reschedule, expectedActiveID, "superseded by newer reschedule"); err != nil {
		if errors.Is(err, repository.ErrRescheduleSuperseded) {
			observability.Reschedules().WithLabelValues("conflict").Inc()
			return dto.RescheduleResponse{}, ErrRescheduleConflict
		}

		span.RecordError(err)
		return dto.RescheduleResponse{}, err
	}

	observability.Reschedules().WithLabelValues("created").Inc()
	s.logger.Info().
		Uint("reschedule_id", reschedule.ID).
		Uint("progress_id", record.ID).
		Time("new_window_start", newStart).
		Msg("assessment window rescheduled")

	response := dto.NewRescheduleResponse(reschedule)
	s.publishEvent(spanCtx, RescheduleEvent{Type: RescheduleEventCreated, Reschedule: response})

	return response, nil
}

// publishEvent fans the event out on a context detached from the
// request, so the broker publish is not cut off when the handler
// returns. The correlation identifier is carried over.
func (s *rescheduleService) publishEvent(ctx context.Context, event RescheduleEvent) {
	if s.events == nil {
		return
	}

	eventCtx := middleware.ContextWithCorrelation(context.Background(), middleware.CorrelationIDFromContext(ctx))
	s.events.Publish(eventCtx, event)
}

func (s *rescheduleService) Cancel(ctx context.Context, teacherID uint, rescheduleID uint, payload dto.RescheduleCancelRequest) (dto.RescheduleResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RescheduleResponse{}, err
	}

	reason, err := s.cleanReason(payload.Reason)
	if err != nil {
		return dto.RescheduleResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "reschedules.cancel", trace.WithAttributes(
		attribute.Int("reschedule.teacher_id", int(teacherID)),
		attribute.Int("reschedule.id", int(rescheduleID)),
	))
	defer span.End()

	reschedule, err := s.reschedules.GetByID(spanCtx, rescheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RescheduleResponse{}, ErrRescheduleNotFound
		}

		span.RecordError(err)
		return dto.RescheduleResponse{}, err
	}

	record, err := s.progress.GetByID(spanCtx, reschedule.LessonProgressID)
	if err != nil {
		span.RecordError(err)
		return dto.RescheduleResponse{}, err
	}

	if err := s.authorize(spanCtx, teacherID, record.SubjectID); err != nil {
		observability.Reschedules().WithLabelValues("unauthorized").Inc()
		return dto.RescheduleResponse{}, err
	}

	now := s.now()
	if !reschedule.IsCurrentlyActive(now) {
		return dto.RescheduleResponse{}, ErrRescheduleCancelled
	}
	if !now.Before(reschedule.NewWindowStart) {
		observability.Reschedules().WithLabelValues("cancel_too_late").Inc()
		return dto.RescheduleResponse{}, ErrCancelWindowOpen
	}

	cancelled, err := s.reschedules.CancelAndRevert(spanCtx, rescheduleID, now, reason)
	if err != nil {
		if errors.Is(err, repository.ErrRescheduleInactive) {
			return dto.RescheduleResponse{}, ErrRescheduleCancelled
		}

		span.RecordError(err)
		return dto.RescheduleResponse{}, err
	}

	observability.Reschedules().WithLabelValues("cancelled").Inc()
	s.logger.Info().
		Uint("reschedule_id", rescheduleID).
		Uint("progress_id", reschedule.LessonProgressID).
		Msg("reschedule cancelled, original window restored")

	response := dto.NewRescheduleResponse(cancelled)
	s.publishEvent(spanCtx, RescheduleEvent{Type: RescheduleEventCancelled, Reschedule: response})

	return response, nil
}

func (s *rescheduleService) ListByTeacher(ctx context.Context, teacherID uint, studentID *uint) ([]dto.RescheduleResponse, error) {
	reschedules, err := s.reschedules.ListByTeacher(ctx, teacherID, studentID)
	if err != nil {
		return nil, err
	}

	return dto.NewRescheduleResponseSlice(reschedules), nil
}

func (s *rescheduleService) authorize(ctx context.Context, teacherID, subjectID uint) error {
	teaches, err := s.teachers.TeachesSubject(ctx, teacherID, subjectID)
	if err != nil {
		return err
	}
	if !teaches {
		return ErrNotAuthorized
	}

	return nil
}

func (s *rescheduleService) cleanReason(raw string) (string, error) {
	reason := strings.TrimSpace(s.sanitizer.Sanitize(raw))
	if len(reason) < s.reasonMin {
		return "", fmt.Errorf("%w: need at least %d characters", ErrReasonTooShort, s.reasonMin)
	}

	return reason, nil
}
