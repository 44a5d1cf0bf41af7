package dto

import (
	"fmt"

	"github.com/noah-isme/pace-go-api/internal/models"
)

// GenerateInstancesRequest asks for a fresh instance set for one
// multi-period topic.
type GenerateInstancesRequest struct {
	AssessmentID  uint `json:"assessment_id" validate:"required"`
	LessonTopicID uint `json:"lesson_topic_id" validate:"required"`
	PeriodCount   int  `json:"period_count" validate:"required,min=1,max=50"`
	WeekNumber    int  `json:"week_number" validate:"required,min=1"`
}

// InstanceResponse is the serialized assessment instance.
type InstanceResponse struct {
	ID               uint   `json:"id"`
	BaseAssessmentID uint   `json:"base_assessment_id"`
	LessonTopicID    uint   `json:"lesson_topic_id"`
	InstanceSuffix   string `json:"instance_suffix"`
	PeriodSequence   int    `json:"period_sequence"`
	TotalPeriods     int    `json:"total_periods"`
	WeekNumber       int    `json:"week_number"`
	QuestionOrder    []uint `json:"question_order"`
	IsActive         bool   `json:"is_active"`
}

// NewInstanceResponse converts a model into a DTO. A stored question
// order that no longer decodes is surfaced as an error rather than
// serialized as an empty list.
func NewInstanceResponse(model models.AssessmentInstance) (InstanceResponse, error) {
	order, err := model.QuestionOrder()
	if err != nil {
		return InstanceResponse{}, fmt.Errorf("decode question order for instance %d: %w", model.ID, err)
	}

	return InstanceResponse{
		ID:               model.ID,
		BaseAssessmentID: model.BaseAssessmentID,
		LessonTopicID:    model.LessonTopicID,
		InstanceSuffix:   model.InstanceSuffix,
		PeriodSequence:   model.PeriodSequence,
		TotalPeriods:     model.TotalPeriods,
		WeekNumber:       model.WeekNumber,
		QuestionOrder:    order,
		IsActive:         model.IsActive,
	}, nil
}

// NewInstanceResponseSlice converts a slice of models into DTOs.
func NewInstanceResponseSlice(instances []models.AssessmentInstance) ([]InstanceResponse, error) {
	responses := make([]InstanceResponse, 0, len(instances))
	for _, instance := range instances {
		response, err := NewInstanceResponse(instance)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}

	return responses, nil
}

// GenerateInstancesResponse bundles the generated set with any non-fatal
// shuffle-quality warning.
type GenerateInstancesResponse struct {
	Instances []InstanceResponse `json:"instances"`
	Quality   string             `json:"quality"`
	Warning   string             `json:"warning,omitempty"`
}

// ShuffleValidationResponse is the read-only precheck result for a
// planned generation.
type ShuffleValidationResponse struct {
	AssessmentID  uint   `json:"assessment_id"`
	QuestionCount int    `json:"question_count"`
	PeriodCount   int    `json:"period_count"`
	Sufficient    bool   `json:"sufficient"`
	Recommended   bool   `json:"recommended"`
	Quality       string `json:"quality"`
	Warning       string `json:"warning,omitempty"`
}
