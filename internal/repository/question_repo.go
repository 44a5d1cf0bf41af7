package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/pace-go-api/internal/models"
)

// QuestionRepository provides the ordered question pool of a base
// assessment.
type QuestionRepository interface {
	ListByAssessment(ctx context.Context, assessmentID uint) ([]models.AssessmentQuestion, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository instantiates a GORM-backed repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) ListByAssessment(ctx context.Context, assessmentID uint) ([]models.AssessmentQuestion, error) {
	var questions []models.AssessmentQuestion
	err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("order_number ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}

	return questions, nil
}
