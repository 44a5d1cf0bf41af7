package service

import (
	"context"
	mathrand "math/rand"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/models"
)

type memoryInstanceRepo struct {
	instances map[uint][]models.AssessmentInstance
	nextID    uint
}

func newMemoryInstanceRepo() *memoryInstanceRepo {
	return &memoryInstanceRepo{
		instances: make(map[uint][]models.AssessmentInstance),
		nextID:    1,
	}
}

func (m *memoryInstanceRepo) ListByAssessment(ctx context.Context, assessmentID uint) ([]models.AssessmentInstance, error) {
	active := make([]models.AssessmentInstance, 0)
	for _, instance := range m.instances[assessmentID] {
		if instance.IsActive {
			active = append(active, instance)
		}
	}
	return active, nil
}

func (m *memoryInstanceRepo) GetByPeriod(ctx context.Context, assessmentID uint, periodSequence int) (models.AssessmentInstance, error) {
	for _, instance := range m.instances[assessmentID] {
		if instance.IsActive && instance.PeriodSequence == periodSequence {
			return instance, nil
		}
	}
	return models.AssessmentInstance{}, gorm.ErrRecordNotFound
}

func (m *memoryInstanceRepo) ReplaceForAssessment(ctx context.Context, assessmentID uint, instances []models.AssessmentInstance) error {
	stored := make([]models.AssessmentInstance, 0, len(instances))
	for i := range instances {
		instances[i].ID = m.nextID
		m.nextID++
		stored = append(stored, instances[i])
	}
	m.instances[assessmentID] = stored
	return nil
}

func (m *memoryInstanceRepo) DeactivateForAssessment(ctx context.Context, assessmentID uint) (int64, error) {
	count := int64(0)
	instances := m.instances[assessmentID]
	for i := range instances {
		if instances[i].IsActive {
			instances[i].IsActive = false
			count++
		}
	}
	m.instances[assessmentID] = instances
	return count, nil
}

type stubQuestionRepo struct {
	questions map[uint][]models.AssessmentQuestion
}

func (s *stubQuestionRepo) ListByAssessment(ctx context.Context, assessmentID uint) ([]models.AssessmentQuestion, error) {
	return append([]models.AssessmentQuestion(nil), s.questions[assessmentID]...), nil
}

func questionPool(assessmentID uint, count int) []models.AssessmentQuestion {
	questions := make([]models.AssessmentQuestion, 0, count)
	for i := 1; i <= count; i++ {
		questions = append(questions, models.AssessmentQuestion{
			ID:           uint(i),
			AssessmentID: assessmentID,
			OrderNumber:  i,
			OptionCount:  4,
		})
	}
	return questions
}

func newShuffleFixture(questionCount int) (*shuffleService, *memoryInstanceRepo) {
	instances := newMemoryInstanceRepo()
	questions := &stubQuestionRepo{questions: map[uint][]models.AssessmentQuestion{
		1: questionPool(1, questionCount),
	}}
	validate := validator.New(validator.WithRequiredStructEnabled())

	svc := NewShuffleService(instances, questions, validate, testLogger()).(*shuffleService)

	// Deterministic source shared across generations.
	rng := mathrand.New(mathrand.NewSource(42))
	svc.newRand = func() (*mathrand.Rand, error) { return rng, nil }

	return svc, instances
}

func TestShuffleServiceGeneratesCompleteInstances(t *testing.T) {
	svc, _ := newShuffleFixture(12)

	result, err := svc.GenerateInstances(context.Background(), dto.GenerateInstancesRequest{
		AssessmentID: 1, LessonTopicID: 5, PeriodCount: 4, WeekNumber: 11,
	})
	require.NoError(t, err)
	require.Len(t, result.Instances, 4)
	require.Equal(t, QualityExcellent, result.Quality)
	require.Empty(t, result.Warning)

	suffixes := make([]string, 0, 4)
	for i, instance := range result.Instances {
		suffixes = append(suffixes, instance.InstanceSuffix)
		require.Equal(t, i+1, instance.PeriodSequence)
		require.Equal(t, 4, instance.TotalPeriods)
		require.Equal(t, 11, instance.WeekNumber)
		require.True(t, instance.IsActive)

		// Every instance contains the full pool, just reordered.
		require.Len(t, instance.QuestionOrder, 12)
		seen := make(map[uint]bool, 12)
		for _, id := range instance.QuestionOrder {
			require.False(t, seen[id])
			seen[id] = true
			require.GreaterOrEqual(t, id, uint(1))
			require.LessOrEqual(t, id, uint(12))
		}
	}
	require.Equal(t, []string{"A", "B", "C", "D"}, suffixes)
}

func TestShuffleServiceShufflesAnswerOptions(t *testing.T) {
	svc, instances := newShuffleFixture(6)

	_, err := svc.GenerateInstances(context.Background(), dto.GenerateInstancesRequest{
		AssessmentID: 1, LessonTopicID: 5, PeriodCount: 2, WeekNumber: 11,
	})
	require.NoError(t, err)

	stored, err := instances.GetByPeriod(context.Background(), 1, 1)
	require.NoError(t, err)

	options, err := stored.AnswerOptionOrder()
	require.NoError(t, err)
	require.Len(t, options, 6)
	for _, order := range options {
		require.ElementsMatch(t, []int{0, 1, 2, 3}, order)
	}
}

func TestShuffleServiceInsufficientQuestions(t *testing.T) {
	svc, _ := newShuffleFixture(3)

	_, err := svc.GenerateInstances(context.Background(), dto.GenerateInstancesRequest{
		AssessmentID: 1, LessonTopicID: 5, PeriodCount: 4, WeekNumber: 11,
	})
	require.ErrorIs(t, err, ErrInsufficientQuestions)
}

func TestShuffleServiceWarnsOnSmallPool(t *testing.T) {
	svc, _ := newShuffleFixture(5)

	result, err := svc.GenerateInstances(context.Background(), dto.GenerateInstancesRequest{
		AssessmentID: 1, LessonTopicID: 5, PeriodCount: 4, WeekNumber: 11,
	})
	require.NoError(t, err)
	require.Equal(t, QualityFair, result.Quality)
	require.NotEmpty(t, result.Warning)
}

func TestShuffleServiceRegenerationReplacesSet(t *testing.T) {
	svc, instances := newShuffleFixture(12)

	_, err := svc.GenerateInstances(context.Background(), dto.GenerateInstancesRequest{
		AssessmentID: 1, LessonTopicID: 5, PeriodCount: 4, WeekNumber: 11,
	})
	require.NoError(t, err)

	_, err = svc.GenerateInstances(context.Background(), dto.GenerateInstancesRequest{
		AssessmentID: 1, LessonTopicID: 5, PeriodCount: 2, WeekNumber: 12,
	})
	require.NoError(t, err)

	active, err := instances.ListByAssessment(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, 12, active[0].WeekNumber)
}

func TestShuffleServiceSuffixBeyondAlphabet(t *testing.T) {
	require.Equal(t, "A", instanceSuffix(1))
	require.Equal(t, "Z", instanceSuffix(26))
	require.Equal(t, "27", instanceSuffix(27))
	require.Equal(t, "40", instanceSuffix(40))
}

func TestShuffleServiceQualityGrades(t *testing.T) {
	cases := []struct {
		questions int
		periods   int
		quality   string
	}{
		{12, 4, QualityExcellent},
		{8, 4, QualityGood},
		{5, 4, QualityFair},
		{4, 4, QualityFair},
	}

	for _, tc := range cases {
		quality, _, err := classifyShuffle(tc.questions, tc.periods)
		require.NoError(t, err)
		require.Equal(t, tc.quality, quality)
	}

	_, _, err := classifyShuffle(0, 4)
	require.ErrorIs(t, err, ErrNoQuestions)
	_, _, err = classifyShuffle(3, 4)
	require.ErrorIs(t, err, ErrInsufficientQuestions)
}

func TestShuffleServiceValidate(t *testing.T) {
	svc, _ := newShuffleFixture(5)

	result, err := svc.Validate(context.Background(), 1, 4)
	require.NoError(t, err)
	require.True(t, result.Sufficient)
	require.False(t, result.Recommended)
	require.Equal(t, QualityFair, result.Quality)
	require.NotEmpty(t, result.Warning)

	result, err = svc.Validate(context.Background(), 1, 8)
	require.NoError(t, err)
	require.False(t, result.Sufficient)
	require.Equal(t, QualityPoor, result.Quality)
}

func TestShuffleServiceListRejectsCorruptOrdering(t *testing.T) {
	svc, instances := newShuffleFixture(6)

	instances.instances[1] = []models.AssessmentInstance{{
		ID:                    1,
		BaseAssessmentID:      1,
		LessonTopicID:         5,
		InstanceSuffix:        "A",
		PeriodSequence:        1,
		TotalPeriods:          1,
		WeekNumber:            11,
		IsActive:              true,
		ShuffledQuestionOrder: datatypes.JSON(`{"broken"`),
	}}

	_, err := svc.ListInstances(context.Background(), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "question order")
}

func TestShuffleServiceDeleteInstances(t *testing.T) {
	svc, instances := newShuffleFixture(12)

	_, err := svc.GenerateInstances(context.Background(), dto.GenerateInstancesRequest{
		AssessmentID: 1, LessonTopicID: 5, PeriodCount: 3, WeekNumber: 11,
	})
	require.NoError(t, err)

	deactivated, err := svc.DeleteInstances(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), deactivated)

	active, err := instances.ListByAssessment(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, active)
}

// Repeated generations should place every question in every position at
// roughly uniform frequency.
func TestShuffleServiceFairness(t *testing.T) {
	svc, _ := newShuffleFixture(5)

	const rounds = 2000
	firstPosition := make(map[uint]int, 5)
	for i := 0; i < rounds; i++ {
		result, err := svc.GenerateInstances(context.Background(), dto.GenerateInstancesRequest{
			AssessmentID: 1, LessonTopicID: 5, PeriodCount: 1, WeekNumber: 11,
		})
		require.NoError(t, err)
		firstPosition[result.Instances[0].QuestionOrder[0]]++
	}

	// Expected 400 per question; allow a generous band around it.
	for id := uint(1); id <= 5; id++ {
		count := firstPosition[id]
		require.Greater(t, count, 300, "question %d starved of first position", id)
		require.Less(t, count, 500, "question %d over-represented in first position", id)
	}
}
