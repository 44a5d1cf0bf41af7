package models

import "time"

// Assessment is the base question set attached to a lesson topic.
type Assessment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	LessonTopicID uint      `gorm:"not null;index" json:"lesson_topic_id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	TotalMarks    int       `json:"total_marks"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AssessmentQuestion is one entry of an assessment's ordered question pool.
type AssessmentQuestion struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AssessmentID uint      `gorm:"not null;index" json:"assessment_id"`
	OrderNumber  int       `gorm:"not null" json:"order_number"`
	Text         string    `gorm:"type:text" json:"text"`
	OptionCount  int       `gorm:"not null;default:4" json:"option_count"`
	CreatedAt    time.Time `json:"created_at"`
}
