package service

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mathrand "math/rand"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/models"
	"github.com/noah-isme/pace-go-api/internal/observability"
	"github.com/noah-isme/pace-go-api/internal/repository"
)

var (
	// ErrInsufficientQuestions means the pool is smaller than the number of
	// periods, so instances could not meaningfully differ.
	ErrInsufficientQuestions = errors.New("question pool smaller than period count")
	// ErrNoQuestions means the assessment has no question pool at all.
	ErrNoQuestions = errors.New("assessment has no questions")
)

// Shuffle quality grades, derived from the questions-per-period ratio.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityFair      = "fair"
	QualityPoor      = "poor"
)

// ShuffleService generates per-period shuffled instances of a base
// assessment. Orderings are drawn once at generation time and stored;
// reads never re-shuffle.
type ShuffleService interface {
	GenerateInstances(ctx context.Context, payload dto.GenerateInstancesRequest) (dto.GenerateInstancesResponse, error)
	ListInstances(ctx context.Context, assessmentID uint) ([]dto.InstanceResponse, error)
	Validate(ctx context.Context, assessmentID uint, periodCount int) (dto.ShuffleValidationResponse, error)
	DeleteInstances(ctx context.Context, assessmentID uint) (int64, error)
}

type shuffleService struct {
	instances repository.InstanceRepository
	questions repository.QuestionRepository
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	newRand   func() (*mathrand.Rand, error)
}

// NewShuffleService builds a shuffle service seeded from the OS entropy
// source.
func NewShuffleService(instances repository.InstanceRepository, questions repository.QuestionRepository, validate *validator.Validate, logger zerolog.Logger) ShuffleService {
	return &shuffleService{
		instances: instances,
		questions: questions,
		validator: validate,
		logger:    logger.With().Str("component", "shuffle_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/pace-go-api/internal/service/shuffle"),
		newRand:   cryptoSeededRand,
	}
}

func (s *shuffleService) GenerateInstances(ctx context.Context, payload dto.GenerateInstancesRequest) (dto.GenerateInstancesResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GenerateInstancesResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "instances.generate", trace.WithAttributes(
		attribute.Int("shuffle.assessment_id", int(payload.AssessmentID)),
		attribute.Int("shuffle.period_count", payload.PeriodCount),
	))
	defer span.End()

	questions, err := s.questions.ListByAssessment(spanCtx, payload.AssessmentID)
	if err != nil {
		span.RecordError(err)
		return dto.GenerateInstancesResponse{}, err
	}

	quality, warning, err := classifyShuffle(len(questions), payload.PeriodCount)
	if err != nil {
		observability.InstanceGenerations().WithLabelValues("insufficient").Inc()
		return dto.GenerateInstancesResponse{}, err
	}
	if warning != "" {
		s.logger.Warn().
			Uint("assessment_id", payload.AssessmentID).
			Int("question_count", len(questions)).
			Int("period_count", payload.PeriodCount).
			Msg("question pool below recommended size for shuffling")
	}

	rng, err := s.newRand()
	if err != nil {
		span.RecordError(err)
		return dto.GenerateInstancesResponse{}, err
	}

	instances := make([]models.AssessmentInstance, 0, payload.PeriodCount)
	for period := 1; period <= payload.PeriodCount; period++ {
		instance := models.AssessmentInstance{
			BaseAssessmentID: payload.AssessmentID,
			LessonTopicID:    payload.LessonTopicID,
			InstanceSuffix:   instanceSuffix(period),
			PeriodSequence:   period,
			TotalPeriods:     payload.PeriodCount,
			WeekNumber:       payload.WeekNumber,
			IsActive:         true,
		}

		if err := instance.SetQuestionOrder(shuffledQuestionIDs(rng, questions)); err != nil {
			return dto.GenerateInstancesResponse{}, err
		}
		if err := instance.SetAnswerOptionOrder(shuffledAnswerOptions(rng, questions)); err != nil {
			return dto.GenerateInstancesResponse{}, err
		}

		instances = append(instances, instance)
	}

	if err := s.instances.ReplaceForAssessment(spanCtx, payload.AssessmentID, instances); err != nil {
		span.RecordError(err)
		return dto.GenerateInstancesResponse{}, err
	}

	observability.InstanceGenerations().WithLabelValues(quality).Inc()
	s.logger.Info().
		Uint("assessment_id", payload.AssessmentID).
		Int("instance_count", len(instances)).
		Str("quality", quality).
		Msg("assessment instances generated")

	responses, err := dto.NewInstanceResponseSlice(instances)
	if err != nil {
		span.RecordError(err)
		return dto.GenerateInstancesResponse{}, err
	}

	return dto.GenerateInstancesResponse{
		Instances: responses,
		Quality:   quality,
		Warning:   warning,
	}, nil
}

func (s *shuffleService) ListInstances(ctx context.Context, assessmentID uint) ([]dto.InstanceResponse, error) {
	instances, err := s.instances.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	return dto.NewInstanceResponseSlice(instances)
}

func (s *shuffleService) Validate(ctx context.Context, assessmentID uint, periodCount int) (dto.ShuffleValidationResponse, error) {
	if periodCount < 1 {
		return dto.ShuffleValidationResponse{}, fmt.Errorf("period count must be at least 1")
	}

	questions, err := s.questions.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return dto.ShuffleValidationResponse{}, err
	}

	response := dto.ShuffleValidationResponse{
		AssessmentID:  assessmentID,
		QuestionCount: len(questions),
		PeriodCount:   periodCount,
		Sufficient:    len(questions) >= periodCount,
		Recommended:   len(questions) >= 2*periodCount,
	}

	quality, warning, err := classifyShuffle(len(questions), periodCount)
	if err != nil {
		response.Quality = QualityPoor
		response.Warning = err.Error()
		return response, nil
	}

	response.Quality = quality
	response.Warning = warning

	return response, nil
}

func (s *shuffleService) DeleteInstances(ctx context.Context, assessmentID uint) (int64, error) {
	deactivated, err := s.instances.DeactivateForAssessment(ctx, assessmentID)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Uint("assessment_id", assessmentID).
		Int64("instance_count", deactivated).
		Msg("assessment instances deactivated")

	return deactivated, nil
}

// classifyShuffle grades the pool-to-period ratio. A pool smaller than
// the period count is a hard error; below twice the period count it is
// allowed with a warning.
func classifyShuffle(questionCount, periodCount int) (string, string, error) {
	if questionCount == 0 {
		return "", "", ErrNoQuestions
	}
	if questionCount < periodCount {
		return "", "", fmt.Errorf("%w: %d questions for %d periods", ErrInsufficientQuestions, questionCount, periodCount)
	}

	ratio := float64(questionCount) / float64(periodCount)
	quality := QualityPoor
	switch {
	case ratio >= 3:
		quality = QualityExcellent
	case ratio >= 2:
		quality = QualityGood
	case ratio >= 1:
		quality = QualityFair
	}

	warning := ""
	if questionCount < 2*periodCount {
		warning = fmt.Sprintf("only %d questions for %d periods; instances will overlap heavily", questionCount, periodCount)
	}

	return quality, warning, nil
}

// instanceSuffix labels periods A through Z, then falls back to the
// period number itself.
func instanceSuffix(period int) string {
	if period >= 1 && period <= 26 {
		return string(rune('A' + period - 1))
	}

	return strconv.Itoa(period)
}

func shuffledQuestionIDs(rng *mathrand.Rand, questions []models.AssessmentQuestion) []uint {
	ids := make([]uint, len(questions))
	for i, question := range questions {
		ids[i] = question.ID
	}
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	return ids
}

func shuffledAnswerOptions(rng *mathrand.Rand, questions []models.AssessmentQuestion) map[uint][]int {
	options := make(map[uint][]int, len(questions))
	for _, question := range questions {
		count := question.OptionCount
		if count <= 0 {
			count = 4
		}
		order := rng.Perm(count)
		options[question.ID] = order
	}

	return options
}

// cryptoSeededRand builds a math/rand source seeded from the OS entropy
// pool, so orderings are unpredictable without paying the crypto cost
// per swap.
func cryptoSeededRand() (*mathrand.Rand, error) {
	var seed [8]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("failed to seed shuffle: %w", err)
	}

	return mathrand.New(mathrand.NewSource(int64(binary.BigEndian.Uint64(seed[:])))), nil
}
