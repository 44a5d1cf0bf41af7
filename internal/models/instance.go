package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AssessmentInstance is one shuffled variant of a base assessment, bound
// to one period occurrence of a multi-period lesson topic. The shuffled
// ordering is fixed at generation time and never re-derived on read.
type AssessmentInstance struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	BaseAssessmentID uint   `gorm:"not null;index;uniqueIndex:idx_instance_period" json:"base_assessment_id"`
	LessonTopicID    uint   `gorm:"index" json:"lesson_topic_id"`
	InstanceSuffix   string `gorm:"size:5;not null" json:"instance_suffix"`
	PeriodSequence   int    `gorm:"not null;uniqueIndex:idx_instance_period" json:"period_sequence"`
	TotalPeriods     int    `gorm:"not null" json:"total_periods"`
	WeekNumber       int    `gorm:"index" json:"week_number"`

	ShuffledQuestionOrder datatypes.JSON `gorm:"type:json" json:"shuffled_question_order"`
	ShuffledAnswerOptions datatypes.JSON `gorm:"type:json" json:"shuffled_answer_options"`
	IsActive              bool           `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuestionOrder decodes the stored question-id ordering.
func (i AssessmentInstance) QuestionOrder() ([]uint, error) {
	if len(i.ShuffledQuestionOrder) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal(i.ShuffledQuestionOrder, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetQuestionOrder encodes and stores the question-id ordering.
func (i *AssessmentInstance) SetQuestionOrder(ids []uint) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	i.ShuffledQuestionOrder = datatypes.JSON(payload)
	return nil
}

// AnswerOptionOrder decodes the per-question shuffled answer options,
// keyed by question id.
func (i AssessmentInstance) AnswerOptionOrder() (map[uint][]int, error) {
	if len(i.ShuffledAnswerOptions) == 0 {
		return nil, nil
	}
	var options map[uint][]int
	if err := json.Unmarshal(i.ShuffledAnswerOptions, &options); err != nil {
		return nil, err
	}
	return options, nil
}

// SetAnswerOptionOrder encodes and stores the per-question answer-option
// orderings.
func (i *AssessmentInstance) SetAnswerOptionOrder(options map[uint][]int) error {
	if len(options) == 0 {
		i.ShuffledAnswerOptions = nil
		return nil
	}
	payload, err := json.Marshal(options)
	if err != nil {
		return err
	}
	i.ShuffledAnswerOptions = datatypes.JSON(payload)
	return nil
}
