package models

import "time"

// Teacher represents a staff member that may reschedule assessment windows.
type Teacher struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeacherSubject links a teacher to a subject they are responsible for.
type TeacherSubject struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeacherID uint      `gorm:"not null;uniqueIndex:idx_teacher_subject" json:"teacher_id"`
	SubjectID uint      `gorm:"not null;uniqueIndex:idx_teacher_subject" json:"subject_id"`
	CreatedAt time.Time `json:"created_at"`
}
