package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/models"
	"github.com/noah-isme/pace-go-api/internal/repository"
)

type memoryRescheduleRepo struct {
	progress    *memoryProgressRepo
	reschedules map[uint]models.WindowReschedule
	nextID      uint
}

func newMemoryRescheduleRepo(progress *memoryProgressRepo) *memoryRescheduleRepo {
	return &memoryRescheduleRepo{
		progress:    progress,
		reschedules: make(map[uint]models.WindowReschedule),
		nextID:      1,
	}
}

func (m *memoryRescheduleRepo) GetByID(ctx context.Context, id uint) (models.WindowReschedule, error) {
	reschedule, ok := m.reschedules[id]
	if !ok {
		return models.WindowReschedule{}, gorm.ErrRecordNotFound
	}
	return reschedule, nil
}

func (m *memoryRescheduleRepo) FindActiveByProgress(ctx context.Context, progressID uint) (*models.WindowReschedule, error) {
	for _, reschedule := range m.reschedules {
		if reschedule.LessonProgressID == progressID && reschedule.IsActive {
			found := reschedule
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memoryRescheduleRepo) ListByTeacher(ctx context.Context, teacherID uint, studentID *uint) ([]models.WindowReschedule, error) {
	results := make([]models.WindowReschedule, 0)
	for _, reschedule := range m.reschedules {
		if reschedule.TeacherID != teacherID {
			continue
		}
		if studentID != nil && reschedule.StudentID != *studentID {
			continue
		}
		results = append(results, reschedule)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].RescheduledAt.After(results[j].RescheduledAt)
	})
	return results, nil
}

func (m *memoryRescheduleRepo) Supersede(ctx context.Context, reschedule *models.WindowReschedule, expectedActiveID *uint, supersededReason string) error {
	active, err := m.FindActiveByProgress(ctx, reschedule.LessonProgressID)
	if err != nil {
		return err
	}

	switch {
	case active == nil:
		if expectedActiveID != nil {
			return repository.ErrRescheduleSuperseded
		}
	default:
		if expectedActiveID == nil || *expectedActiveID != active.ID {
			return repository.ErrRescheduleSuperseded
		}
		active.Cancel(reschedule.RescheduledAt, supersededReason)
		m.reschedules[active.ID] = *active
	}

	reschedule.ID = m.nextID
	m.reschedules[m.nextID] = *reschedule
	m.nextID++

	record, ok := m.progress.records[reschedule.LessonProgressID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	start := reschedule.NewWindowStart
	end := reschedule.NewWindowEnd
	grace := reschedule.NewGraceEnd
	record.AssessmentWindowStart = &start
	record.AssessmentWindowEnd = &end
	record.GracePeriodEnd = &grace
	record.IncompleteReason = ""
	m.progress.records[record.ID] = record

	return nil
}

func (m *memoryRescheduleRepo) CancelAndRevert(ctx context.Context, id uint, now time.Time, reason string) (models.WindowReschedule, error) {
	reschedule, ok := m.reschedules[id]
	if !ok {
		return models.WindowReschedule{}, gorm.ErrRecordNotFound
	}
	if !reschedule.IsActive {
		return models.WindowReschedule{}, repository.ErrRescheduleInactive
	}

	reschedule.Cancel(now, reason)
	m.reschedules[id] = reschedule

	record, ok := m.progress.records[reschedule.LessonProgressID]
	if !ok {
		return models.WindowReschedule{}, gorm.ErrRecordNotFound
	}
	start := reschedule.OriginalWindowStart
	end := reschedule.OriginalWindowEnd
	record.AssessmentWindowStart = &start
	record.AssessmentWindowEnd = &end
	record.GracePeriodEnd = reschedule.OriginalGraceEnd
	m.progress.records[record.ID] = record

	return reschedule, nil
}

type stubTeacherRepo struct {
	subjects map[uint]map[uint]bool
}

func (s *stubTeacherRepo) TeachesSubject(ctx context.Context, teacherID, subjectID uint) (bool, error) {
	return s.subjects[teacherID][subjectID], nil
}

func newRescheduleFixture(t *testing.T, now time.Time) (*rescheduleService, *memoryProgressRepo, *memoryRescheduleRepo, uint) {
	t.Helper()

	progress := newMemoryProgressRepo()
	reschedules := newMemoryRescheduleRepo(progress)
	teachers := &stubTeacherRepo{subjects: map[uint]map[uint]bool{7: {1: true}}}
	validate := validator.New(validator.WithRequiredStructEnabled())

	svc := NewRescheduleService(reschedules, progress, teachers, nil, validate, 0, testLogger()).(*rescheduleService)
	svc.now = func() time.Time { return now }

	windowStart := now.Add(4 * time.Hour)
	windowEnd := windowStart.Add(2 * time.Hour)
	graceEnd := windowEnd.Add(30 * time.Minute)
	assessmentID := uint(3)
	record := models.LessonProgress{
		StudentID: 1, SubjectID: 1, LessonTopicID: 1, PeriodNumber: 1,
		ScheduledDate:         now,
		AssessmentID:          &assessmentID,
		AssessmentWindowStart: &windowStart,
		AssessmentWindowEnd:   &windowEnd,
		GracePeriodEnd:        &graceEnd,
	}
	require.NoError(t, progress.Create(context.Background(), &record))

	return svc, progress, reschedules, record.ID
}

func TestRescheduleServiceCreatesFixedWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, progress, _, progressID := newRescheduleFixture(t, now)

	newStart := now.Add(26 * time.Hour)
	result, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   newStart.Format(time.RFC3339),
		Reason:           "school assembly moved into the original slot",
	})
	require.NoError(t, err)
	require.True(t, result.IsActive)
	require.Equal(t, newStart.Format(time.RFC3339), result.NewWindowStart)
	require.Equal(t, newStart.Add(time.Hour).Format(time.RFC3339), result.NewWindowEnd)
	require.Equal(t, newStart.Add(90*time.Minute).Format(time.RFC3339), result.NewGraceEnd)

	record := progress.records[progressID]
	require.True(t, record.AssessmentWindowStart.Equal(newStart))
	require.True(t, record.AssessmentWindowEnd.Equal(newStart.Add(time.Hour)))
	require.True(t, record.GracePeriodEnd.Equal(newStart.Add(90*time.Minute)))
}

func TestRescheduleServiceClearsIncompleteReason(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, progress, _, progressID := newRescheduleFixture(t, now)

	record := progress.records[progressID]
	record.IncompleteReason = models.IncompleteMissedGracePeriod
	progress.records[progressID] = record

	_, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(26 * time.Hour).Format(time.RFC3339),
		Reason:           "student was absent with a medical note",
	})
	require.NoError(t, err)
	require.Empty(t, progress.records[progressID].IncompleteReason)
}

func TestRescheduleServiceRefusesAfterWindowOpens(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, progress, _, progressID := newRescheduleFixture(t, now)

	// Advance past the original window start.
	record := progress.records[progressID]
	svc.now = func() time.Time { return record.AssessmentWindowStart.Add(time.Minute) }

	_, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(48 * time.Hour).Format(time.RFC3339),
		Reason:           "attempting to move an already opened window",
	})
	require.ErrorIs(t, err, ErrRescheduleTooLate)
}

func TestRescheduleServiceFreezesOriginalAcrossSupersede(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, progress, _, progressID := newRescheduleFixture(t, now)

	originalStart := *progress.records[progressID].AssessmentWindowStart

	first, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(26 * time.Hour).Format(time.RFC3339),
		Reason:           "first move to the next school day",
	})
	require.NoError(t, err)

	second, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(50 * time.Hour).Format(time.RFC3339),
		Reason:           "second move because the lab is unavailable",
	})
	require.NoError(t, err)
	require.Equal(t, first.OriginalWindowStart, second.OriginalWindowStart)
	require.Equal(t, originalStart.Format(time.RFC3339), second.OriginalWindowStart)

	// The first reschedule moved the effective window into the future,
	// but the precondition still judges against the frozen original.
	svc.now = func() time.Time { return originalStart.Add(time.Minute) }
	_, err = svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(72 * time.Hour).Format(time.RFC3339),
		Reason:           "third move after the original start passed",
	})
	require.ErrorIs(t, err, ErrRescheduleTooLate)
}

func TestRescheduleServiceConflictWhenSupersededConcurrently(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, _, reschedules, progressID := newRescheduleFixture(t, now)

	_, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(26 * time.Hour).Format(time.RFC3339),
		Reason:           "initial reschedule before the race",
	})
	require.NoError(t, err)

	// Simulate a rival writer landing between this caller's read of the
	// active reschedule and its write.
	rival := models.WindowReschedule{
		LessonProgressID: progressID,
		TeacherID:        7,
		StudentID:        1,
		NewWindowStart:   now.Add(30 * time.Hour),
		NewWindowEnd:     now.Add(31 * time.Hour),
		NewGraceEnd:      now.Add(31*time.Hour + 30*time.Minute),
		RescheduledAt:    now,
		IsActive:         true,
	}
	stale := reschedules.nextID - 1
	require.NoError(t, reschedules.Supersede(context.Background(), &rival, &stale, "rival won"))

	staleAgain := stale
	loser := models.WindowReschedule{LessonProgressID: progressID, RescheduledAt: now, IsActive: true}
	err = reschedules.Supersede(context.Background(), &loser, &staleAgain, "loser attempt")
	require.ErrorIs(t, err, repository.ErrRescheduleSuperseded)
}

func TestRescheduleServiceUnauthorizedTeacher(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, _, _, progressID := newRescheduleFixture(t, now)

	_, err := svc.Reschedule(context.Background(), 99, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(26 * time.Hour).Format(time.RFC3339),
		Reason:           "teacher of an unrelated subject",
	})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestRescheduleServiceSanitizesReason(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, _, _, progressID := newRescheduleFixture(t, now)

	result, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(26 * time.Hour).Format(time.RFC3339),
		Reason:           "<script>alert(1)</script>moved for the sports carnival",
	})
	require.NoError(t, err)
	require.Equal(t, "moved for the sports carnival", result.Reason)

	_, err = svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(27 * time.Hour).Format(time.RFC3339),
		Reason:           "<b>短</b>",
	})
	require.Error(t, err)
}

func TestRescheduleServiceCancelRevertsOriginalWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, progress, _, progressID := newRescheduleFixture(t, now)

	originalStart := *progress.records[progressID].AssessmentWindowStart
	originalEnd := *progress.records[progressID].AssessmentWindowEnd

	created, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(26 * time.Hour).Format(time.RFC3339),
		Reason:           "moved ahead of the holiday break",
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), 7, created.ID, dto.RescheduleCancelRequest{
		Reason: "holiday plans changed back again",
	})
	require.NoError(t, err)
	require.False(t, cancelled.IsActive)
	require.NotEmpty(t, cancelled.CancelledAt)

	record := progress.records[progressID]
	require.True(t, record.AssessmentWindowStart.Equal(originalStart))
	require.True(t, record.AssessmentWindowEnd.Equal(originalEnd))
}

func TestRescheduleServiceCancelRefusedOnceNewWindowOpen(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, _, _, progressID := newRescheduleFixture(t, now)

	newStart := now.Add(26 * time.Hour)
	created, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   newStart.Format(time.RFC3339),
		Reason:           "moved to the following morning",
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return newStart }
	_, err = svc.Cancel(context.Background(), 7, created.ID, dto.RescheduleCancelRequest{
		Reason: "too late to change course now",
	})
	require.ErrorIs(t, err, ErrCancelWindowOpen)
}

func TestRescheduleServiceCancelTwice(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, _, _, progressID := newRescheduleFixture(t, now)

	created, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(26 * time.Hour).Format(time.RFC3339),
		Reason:           "initial move for the excursion",
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), 7, created.ID, dto.RescheduleCancelRequest{
		Reason: "excursion cancelled outright",
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), 7, created.ID, dto.RescheduleCancelRequest{
		Reason: "cancelling a second time by mistake",
	})
	require.ErrorIs(t, err, ErrRescheduleCancelled)
}

func TestRescheduleServiceListByTeacher(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc, _, _, progressID := newRescheduleFixture(t, now)

	_, err := svc.Reschedule(context.Background(), 7, dto.RescheduleCreateRequest{
		LessonProgressID: progressID,
		NewWindowStart:   now.Add(26 * time.Hour).Format(time.RFC3339),
		Reason:           "listing fixture reschedule entry",
	})
	require.NoError(t, err)

	results, err := svc.ListByTeacher(context.Background(), 7, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = svc.ListByTeacher(context.Background(), 99, nil)
	require.NoError(t, err)
	require.Empty(t, results)
}
