package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/pace-go-api/internal/models"
)

// ProgressFilter narrows a progress listing before projection. Filters
// are applied in SQL so dashboards never pay for records they discard.
type ProgressFilter struct {
	StudentID  *uint
	SubjectID  *uint
	ClassName  string
	WeekNumber *int
	FromDate   *time.Time
	ToDate     *time.Time
}

// ProgressRepository defines persistence operations for lesson progress
// records. Completion and incompleteness fields are owned by the
// submission pipeline and are never written here.
type ProgressRepository interface {
	List(ctx context.Context, filter ProgressFilter) ([]models.LessonProgress, error)
	GetByID(ctx context.Context, id uint) (models.LessonProgress, error)
	Create(ctx context.Context, record *models.LessonProgress) error
}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository instantiates a GORM-backed repository.
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) List(ctx context.Context, filter ProgressFilter) ([]models.LessonProgress, error) {
	query := r.db.WithContext(ctx).Model(&models.LessonProgress{}).
		Preload("Student").
		Preload("Subject").
		Preload("LessonTopic").
		Preload("Assessment")

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.SubjectID != nil {
		query = query.Where("subject_id = ?", *filter.SubjectID)
	}
	if filter.ClassName != "" {
		query = query.Joins("JOIN students ON students.id = lesson_progresses.student_id").
			Where("students.class_name = ?", filter.ClassName)
	}
	if filter.WeekNumber != nil {
		query = query.Where("week_number = ?", *filter.WeekNumber)
	}
	if filter.FromDate != nil {
		query = query.Where("scheduled_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("scheduled_date <= ?", *filter.ToDate)
	}

	var records []models.LessonProgress
	if err := query.Order("scheduled_date ASC, period_number ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *progressRepository) GetByID(ctx context.Context, id uint) (models.LessonProgress, error) {
	var record models.LessonProgress
	err := r.db.WithContext(ctx).
		Preload("Student").
		Preload("Subject").
		Preload("LessonTopic").
		Preload("Assessment").
		First(&record, id).Error
	if err != nil {
		return models.LessonProgress{}, err
	}

	return record, nil
}

func (r *progressRepository) Create(ctx context.Context, record *models.LessonProgress) error {
	return r.db.WithContext(ctx).Create(record).Error
}
