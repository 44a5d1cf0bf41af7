package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/repository"
)

// ErrProgressNotFound indicates the requested progress record does not exist.
var ErrProgressNotFound = errors.New("lesson progress not found")

// ProgressService projects stored lesson progress records into
// status-annotated views. Status is derived per call, never persisted.
type ProgressService interface {
	List(ctx context.Context, payload dto.ProgressListRequest) ([]dto.LessonProgressResponse, error)
	Get(ctx context.Context, id uint) (dto.LessonProgressResponse, error)
}

type progressService struct {
	repo          repository.ProgressRepository
	validator     *validator.Validate
	fallbackAfter time.Duration
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewProgressService builds a progress projection service. fallbackAfter
// controls how long a stale pre-window record stays SCHEDULED past its
// scheduled day before being reported MISSED; zero means immediately.
func NewProgressService(repo repository.ProgressRepository, validate *validator.Validate, fallbackAfter time.Duration, logger zerolog.Logger) ProgressService {
	return &progressService{
		repo:          repo,
		validator:     validate,
		fallbackAfter: fallbackAfter,
		logger:        logger.With().Str("component", "progress_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/pace-go-api/internal/service/progress"),
		now:           time.Now,
	}
}

func (s *progressService) List(ctx context.Context, payload dto.ProgressListRequest) ([]dto.LessonProgressResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	filter, err := buildProgressFilter(payload)
	if err != nil {
		return nil, err
	}

	spanCtx, span := s.tracer.Start(ctx, "progress.list", trace.WithAttributes(
		attribute.String("progress.class_name", payload.ClassName),
	))
	defer span.End()

	records, err := s.repo.List(spanCtx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("progress.record_count", len(records)))

	return dto.NewLessonProgressResponseSlice(records, s.now(), s.fallbackAfter), nil
}

func (s *progressService) Get(ctx context.Context, id uint) (dto.LessonProgressResponse, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.LessonProgressResponse{}, ErrProgressNotFound
		}

		return dto.LessonProgressResponse{}, err
	}

	return dto.NewLessonProgressResponse(record, s.now(), s.fallbackAfter), nil
}

// buildProgressFilter maps the request's loose filters onto the
// repository filter, parsing the date bounds.
func buildProgressFilter(payload dto.ProgressListRequest) (repository.ProgressFilter, error) {
	filter := repository.ProgressFilter{ClassName: payload.ClassName}

	if payload.StudentID != 0 {
		studentID := payload.StudentID
		filter.StudentID = &studentID
	}
	if payload.SubjectID != 0 {
		subjectID := payload.SubjectID
		filter.SubjectID = &subjectID
	}
	if payload.WeekNumber != 0 {
		week := payload.WeekNumber
		filter.WeekNumber = &week
	}
	if payload.FromDate != "" {
		from, err := time.Parse("2006-01-02", payload.FromDate)
		if err != nil {
			return repository.ProgressFilter{}, fmt.Errorf("invalid from date: %w", err)
		}
		filter.FromDate = &from
	}
	if payload.ToDate != "" {
		to, err := time.Parse("2006-01-02", payload.ToDate)
		if err != nil {
			return repository.ProgressFilter{}, fmt.Errorf("invalid to date: %w", err)
		}
		filter.ToDate = &to
	}

	return filter, nil
}
