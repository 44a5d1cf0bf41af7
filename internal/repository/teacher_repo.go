package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/pace-go-api/internal/models"
)

// TeacherRepository answers ownership questions for the reschedule
// authorization check.
type TeacherRepository interface {
	TeachesSubject(ctx context.Context, teacherID, subjectID uint) (bool, error)
}

type teacherRepository struct {
	db *gorm.DB
}

// NewTeacherRepository instantiates a GORM-backed repository.
func NewTeacherRepository(db *gorm.DB) TeacherRepository {
	return &teacherRepository{db: db}
}

func (r *teacherRepository) TeachesSubject(ctx context.Context, teacherID, subjectID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.TeacherSubject{}).
		Where("teacher_id = ? AND subject_id = ?", teacherID, subjectID).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
