package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/models"
	"github.com/noah-isme/pace-go-api/internal/observability"
	"github.com/noah-isme/pace-go-api/internal/repository"
)

// Report verdict thresholds. Both comparisons are strict, so a student
// sitting exactly on a boundary gets the milder verdict.
const (
	onTrackRateThreshold = 80.0
	atRiskRateThreshold  = 20.0
)

// ReportService rolls projected progress records up into the
// comprehensive reports the dashboards consume.
type ReportService interface {
	Comprehensive(ctx context.Context, payload dto.ReportRequest) (dto.ComprehensiveReport, error)
}

type reportService struct {
	repo          repository.ProgressRepository
	cache         *redis.Client
	cacheTTL      time.Duration
	fallbackAfter time.Duration
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewReportService constructs the report service. The cache client is
// optional.
func NewReportService(repo repository.ProgressRepository, cache *redis.Client, ttl time.Duration, fallbackAfter time.Duration, validate *validator.Validate, logger zerolog.Logger) ReportService {
	return &reportService{
		repo:          repo,
		cache:         cache,
		cacheTTL:      ttl,
		fallbackAfter: fallbackAfter,
		validator:     validate,
		logger:        logger.With().Str("component", "report_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/pace-go-api/internal/service/report"),
		now:           time.Now,
	}
}

func (s *reportService) Comprehensive(ctx context.Context, payload dto.ReportRequest) (dto.ComprehensiveReport, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ComprehensiveReport{}, err
	}

	cacheKey := reportCacheKey(payload)
	spanCtx, span := s.tracer.Start(ctx, "reports.comprehensive", trace.WithAttributes(
		attribute.String("report.cache_key", cacheKey),
	))
	defer span.End()

	// Verdict overrides make the result caller-specific, so they bypass
	// the shared cache entirely.
	useCache := s.cache != nil && payload.IsOnTrack == nil && payload.IsAtRisk == nil

	if useCache {
		cached, err := s.cache.Get(spanCtx, cacheKey).Result()
		if err == nil {
			var report dto.ComprehensiveReport
			if unmarshalErr := json.Unmarshal([]byte(cached), &report); unmarshalErr == nil {
				report.CacheHit = true
				span.SetAttributes(attribute.Bool("report.cache_hit", true))
				return report, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read report cache")
			span.RecordError(err)
		}
	}

	filter, err := buildProgressFilter(dto.ProgressListRequest{
		StudentID: payload.StudentID,
		SubjectID: payload.SubjectID,
		ClassName: payload.ClassName,
		FromDate:  payload.FromDate,
		ToDate:    payload.ToDate,
	})
	if err != nil {
		return dto.ComprehensiveReport{}, err
	}

	started := time.Now()
	records, err := s.repo.List(spanCtx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_progress_failed")
		return dto.ComprehensiveReport{}, err
	}

	report := s.buildReport(payload, records)
	observability.ReportBuildDuration().Observe(time.Since(started).Seconds())
	span.SetAttributes(attribute.Int("report.record_count", len(records)))

	if useCache {
		encoded, err := json.Marshal(report)
		if err == nil {
			if err := s.cache.Set(spanCtx, cacheKey, encoded, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store report cache")
				span.RecordError(err)
			}
		}
	}

	return report, nil
}

// buildReport annotates every record against one shared instant, then
// aggregates. Holding "now" fixed keeps the counts and the per-lesson
// statuses in the same report consistent with each other.
func (s *reportService) buildReport(payload dto.ReportRequest, records []models.LessonProgress) dto.ComprehensiveReport {
	now := s.now()
	lessons := dto.NewLessonProgressResponseSlice(records, now, s.fallbackAfter)

	report := dto.ComprehensiveReport{
		StudentID: payload.StudentID,
		ClassName: payload.ClassName,
		FromDate:  payload.FromDate,
		ToDate:    payload.ToDate,
		LessonsByStatus: map[models.LessonStatus][]dto.LessonProgressResponse{
			models.StatusCompleted:  {},
			models.StatusMissed:     {},
			models.StatusInProgress: {},
			models.StatusScheduled:  {},
		},
		AllLessons: lessons,
	}

	if payload.StudentID != 0 && len(records) > 0 {
		report.StudentName = records[0].Student.Name
		if report.ClassName == "" {
			report.ClassName = records[0].Student.ClassName
		}
	}

	if payload.FromDate != "" && payload.ToDate != "" {
		from, errFrom := time.Parse("2006-01-02", payload.FromDate)
		to, errTo := time.Parse("2006-01-02", payload.ToDate)
		if errFrom == nil && errTo == nil && !to.Before(from) {
			report.DateRangeDays = int(to.Sub(from).Hours()/24) + 1
		}
	}

	groupIndex := map[uint]int{}
	for i, lesson := range lessons {
		report.Counts.Total++
		switch lesson.Status {
		case models.StatusCompleted:
			report.Counts.Completed++
		case models.StatusMissed:
			report.Counts.Missed++
		case models.StatusInProgress:
			report.Counts.InProgress++
		case models.StatusScheduled:
			report.Counts.Scheduled++
		}

		report.LessonsByStatus[lesson.Status] = append(report.LessonsByStatus[lesson.Status], lesson)

		if lesson.Status == models.StatusMissed ||
			(lesson.Status == models.StatusInProgress && lesson.IsOverdue) {
			report.UrgentLessons = append(report.UrgentLessons, lesson)
		}

		// Subject groups keep the order subjects first appeared in the
		// record stream.
		record := records[i]
		index, seen := groupIndex[record.SubjectID]
		if !seen {
			index = len(report.SubjectGroups)
			groupIndex[record.SubjectID] = index
			report.SubjectGroups = append(report.SubjectGroups, dto.SubjectGroup{
				SubjectID:   record.SubjectID,
				SubjectName: record.Subject.Name,
			})
		}
		report.SubjectGroups[index].Lessons = append(report.SubjectGroups[index].Lessons, lesson)
	}

	if report.Counts.Total > 0 {
		total := float64(report.Counts.Total)
		report.CompletionRate = roundRate(float64(report.Counts.Completed) / total * 100)
		report.MissedRate = roundRate(float64(report.Counts.Missed) / total * 100)
		report.OnTrackRate = roundRate(float64(report.Counts.Completed+report.Counts.InProgress) / total * 100)
	}

	report.IsOnTrack = report.CompletionRate > onTrackRateThreshold
	report.IsAtRisk = report.MissedRate > atRiskRateThreshold
	if payload.IsOnTrack != nil {
		report.IsOnTrack = *payload.IsOnTrack
	}
	if payload.IsAtRisk != nil {
		report.IsAtRisk = *payload.IsAtRisk
	}

	return report
}

func reportCacheKey(payload dto.ReportRequest) string {
	return fmt.Sprintf("reports:comprehensive:s%d:c%s:j%d:f%s:t%s",
		payload.StudentID, payload.ClassName, payload.SubjectID, payload.FromDate, payload.ToDate)
}

func roundRate(rate float64) float64 {
	return math.Round(rate*100) / 100
}
