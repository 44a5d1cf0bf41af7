package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/pace-go-api/internal/models"
)

// InstanceRepository defines persistence operations for shuffled
// assessment instances.
type InstanceRepository interface {
	ListByAssessment(ctx context.Context, assessmentID uint) ([]models.AssessmentInstance, error)
	GetByPeriod(ctx context.Context, assessmentID uint, periodSequence int) (models.AssessmentInstance, error)
	ReplaceForAssessment(ctx context.Context, assessmentID uint, instances []models.AssessmentInstance) error
	DeactivateForAssessment(ctx context.Context, assessmentID uint) (int64, error)
}

type instanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository instantiates a GORM-backed repository.
func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

func (r *instanceRepository) ListByAssessment(ctx context.Context, assessmentID uint) ([]models.AssessmentInstance, error) {
	var instances []models.AssessmentInstance
	err := r.db.WithContext(ctx).
		Where("base_assessment_id = ? AND is_active = ?", assessmentID, true).
		Order("period_sequence ASC").
		Find(&instances).Error
	if err != nil {
		return nil, err
	}

	return instances, nil
}

func (r *instanceRepository) GetByPeriod(ctx context.Context, assessmentID uint, periodSequence int) (models.AssessmentInstance, error) {
	var instance models.AssessmentInstance
	err := r.db.WithContext(ctx).
		Where("base_assessment_id = ? AND period_sequence = ? AND is_active = ?", assessmentID, periodSequence, true).
		First(&instance).Error
	if err != nil {
		return models.AssessmentInstance{}, err
	}

	return instance, nil
}

// ReplaceForAssessment swaps the assessment's whole instance set in one
// transaction: readers observe either the prior set or the new one,
// never a partial mix. Each new instance is attached to the progress
// records occupying its period slot; links into the replaced set are
// cleared first so no record keeps pointing at a deleted instance.
func (r *instanceRepository) ReplaceForAssessment(ctx context.Context, assessmentID uint, instances []models.AssessmentInstance) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearProgressLinks(tx, assessmentID); err != nil {
			return err
		}
		if err := tx.Where("base_assessment_id = ?", assessmentID).
			Delete(&models.AssessmentInstance{}).Error; err != nil {
			return err
		}

		for i := range instances {
			if err := tx.Create(&instances[i]).Error; err != nil {
				return err
			}
			if err := linkProgress(tx, &instances[i]); err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *instanceRepository) DeactivateForAssessment(ctx context.Context, assessmentID uint) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearProgressLinks(tx, assessmentID); err != nil {
			return err
		}

		result := tx.Model(&models.AssessmentInstance{}).
			Where("base_assessment_id = ? AND is_active = ?", assessmentID, true).
			Update("is_active", false)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected

		return nil
	})
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// linkProgress attaches the instance to every progress record scheduled
// for its topic, week and period slot. Records outside a multi-period
// sequence (period sequence zero) are never linked.
func linkProgress(tx *gorm.DB, instance *models.AssessmentInstance) error {
	if instance.LessonTopicID == 0 || instance.PeriodSequence == 0 {
		return nil
	}

	return tx.Model(&models.LessonProgress{}).
		Where("lesson_topic_id = ? AND week_number = ? AND period_sequence = ?",
			instance.LessonTopicID, instance.WeekNumber, instance.PeriodSequence).
		Update("assessment_instance_id", instance.ID).Error
}

// clearProgressLinks detaches progress records from the assessment's
// current instance set.
func clearProgressLinks(tx *gorm.DB, assessmentID uint) error {
	current := tx.Session(&gorm.Session{NewDB: true}).
		Model(&models.AssessmentInstance{}).
		Select("id").
		Where("base_assessment_id = ?", assessmentID)

	return tx.Model(&models.LessonProgress{}).
		Where("assessment_instance_id IN (?)", current).
		Update("assessment_instance_id", nil).Error
}
