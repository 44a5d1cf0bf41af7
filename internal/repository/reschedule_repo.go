package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/pace-go-api/internal/models"
)

// ErrRescheduleSuperseded signals that the active reschedule observed at
// precheck time no longer matches the row state: a concurrent reschedule
// won the race and the caller must not overwrite it silently.
var ErrRescheduleSuperseded = errors.New("active reschedule changed concurrently")

// ErrRescheduleInactive signals a cancellation attempt against a
// reschedule that is already inactive.
var ErrRescheduleInactive = errors.New("reschedule is not active")

// RescheduleRepository defines persistence operations for assessment
// window reschedules. Supersede and CancelAndRevert are single
// transactions: the one-active-reschedule-per-record invariant must hold
// at every observation point.
type RescheduleRepository interface {
	GetByID(ctx context.Context, id uint) (models.WindowReschedule, error)
	FindActiveByProgress(ctx context.Context, progressID uint) (*models.WindowReschedule, error)
	ListByTeacher(ctx context.Context, teacherID uint, studentID *uint) ([]models.WindowReschedule, error)
	Supersede(ctx context.Context, reschedule *models.WindowReschedule, expectedActiveID *uint, supersededReason string) error
	CancelAndRevert(ctx context.Context, id uint, now time.Time, reason string) (models.WindowReschedule, error)
}

type rescheduleRepository struct {
	db *gorm.DB
}

// NewRescheduleRepository instantiates a GORM-backed repository.
func NewRescheduleRepository(db *gorm.DB) RescheduleRepository {
	return &rescheduleRepository{db: db}
}

// lockForUpdate adds a row lock on dialects that support it. SQLite has
// no FOR UPDATE; its single-writer model serializes these transactions
// anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *rescheduleRepository) GetByID(ctx context.Context, id uint) (models.WindowReschedule, error) {
	var reschedule models.WindowReschedule
	if err := r.db.WithContext(ctx).First(&reschedule, id).Error; err != nil {
		return models.WindowReschedule{}, err
	}

	return reschedule, nil
}

func (r *rescheduleRepository) FindActiveByProgress(ctx context.Context, progressID uint) (*models.WindowReschedule, error) {
	var reschedule models.WindowReschedule
	err := r.db.WithContext(ctx).
		Where("lesson_progress_id = ? AND is_active = ?", progressID, true).
		Order("created_at DESC").
		First(&reschedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &reschedule, nil
}

func (r *rescheduleRepository) ListByTeacher(ctx context.Context, teacherID uint, studentID *uint) ([]models.WindowReschedule, error) {
	query := r.db.WithContext(ctx).Where("teacher_id = ?", teacherID)
	if studentID != nil {
		query = query.Where("student_id = ?", *studentID)
	}

	var reschedules []models.WindowReschedule
	if err := query.Order("rescheduled_at DESC").Find(&reschedules).Error; err != nil {
		return nil, err
	}

	return reschedules, nil
}

// Supersede cancels the current active reschedule (if any), persists the
// new one and moves the progress record onto the new window, all inside
// one transaction holding a row lock on the progress record. Concurrent
// attempts serialize on that lock; the loser observes a different active
// reschedule than expected and gets ErrRescheduleSuperseded.
func (r *rescheduleRepository) Supersede(ctx context.Context, reschedule *models.WindowReschedule, expectedActiveID *uint, supersededReason string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var progress models.LessonProgress
		if err := lockForUpdate(tx).
			First(&progress, reschedule.LessonProgressID).Error; err != nil {
			return err
		}

		var active models.WindowReschedule
		err := tx.Where("lesson_progress_id = ? AND is_active = ?", reschedule.LessonProgressID, true).
			Order("created_at DESC").
			First(&active).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if expectedActiveID != nil {
				return ErrRescheduleSuperseded
			}
		case err != nil:
			return err
		default:
			if expectedActiveID == nil || *expectedActiveID != active.ID {
				return ErrRescheduleSuperseded
			}
			active.Cancel(reschedule.RescheduledAt, supersededReason)
			if err := tx.Save(&active).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(reschedule).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"assessment_window_start": reschedule.NewWindowStart,
			"assessment_window_end":   reschedule.NewWindowEnd,
			"grace_period_end":        reschedule.NewGraceEnd,
			"incomplete_reason":       "",
		}
		return tx.Model(&models.LessonProgress{}).
			Where("id = ?", reschedule.LessonProgressID).
			Updates(updates).Error
	})
}

// CancelAndRevert deactivates the reschedule and restores the progress
// record's frozen original window in one transaction.
func (r *rescheduleRepository) CancelAndRevert(ctx context.Context, id uint, now time.Time, reason string) (models.WindowReschedule, error) {
	var reschedule models.WindowReschedule

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			First(&reschedule, id).Error; err != nil {
			return err
		}

		if !reschedule.IsActive {
			return ErrRescheduleInactive
		}

		reschedule.Cancel(now, reason)
		if err := tx.Save(&reschedule).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"assessment_window_start": reschedule.OriginalWindowStart,
			"assessment_window_end":   reschedule.OriginalWindowEnd,
			"grace_period_end":        reschedule.OriginalGraceEnd,
		}
		return tx.Model(&models.LessonProgress{}).
			Where("id = ?", reschedule.LessonProgressID).
			Updates(updates).Error
	})
	if err != nil {
		return models.WindowReschedule{}, err
	}

	return reschedule, nil
}
