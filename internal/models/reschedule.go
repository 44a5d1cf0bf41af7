package models

import "time"

const (
	// RescheduledWindowDuration is the fixed length of every rescheduled
	// assessment window, regardless of what the teacher requested.
	RescheduledWindowDuration = time.Hour
	// RescheduledGraceDuration is the grace period appended to every
	// rescheduled window.
	RescheduledGraceDuration = 30 * time.Minute
)

// WindowReschedule is a teacher-issued replacement of a not-yet-opened
// assessment window. The original window fields are frozen at creation
// so cancellation can revert them; rows are never deleted (audit trail).
type WindowReschedule struct {
	ID               uint `gorm:"primaryKey" json:"id"`
	LessonProgressID uint `gorm:"not null;index:idx_reschedule_progress_active,unique,where:is_active" json:"lesson_progress_id"`
	AssessmentID     uint `gorm:"not null;index" json:"assessment_id"`
	StudentID        uint `gorm:"not null;index" json:"student_id"`
	TeacherID        uint `gorm:"not null;index" json:"teacher_id"`

	OriginalWindowStart time.Time  `gorm:"not null" json:"original_window_start"`
	OriginalWindowEnd   time.Time  `gorm:"not null" json:"original_window_end"`
	OriginalGraceEnd    *time.Time `json:"original_grace_end"`

	NewWindowStart time.Time `gorm:"not null" json:"new_window_start"`
	NewWindowEnd   time.Time `gorm:"not null" json:"new_window_end"`
	NewGraceEnd    time.Time `gorm:"not null" json:"new_grace_end"`

	Reason        string    `gorm:"size:500;not null" json:"reason"`
	RescheduledAt time.Time `gorm:"not null" json:"rescheduled_at"`

	IsActive        bool       `gorm:"not null;default:true;index" json:"is_active"`
	CancelledAt     *time.Time `json:"cancelled_at"`
	CancelledReason string     `gorm:"size:500" json:"cancelled_reason"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LessonProgress LessonProgress `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Cancel marks the reschedule inactive at the given instant.
func (r *WindowReschedule) Cancel(now time.Time, reason string) {
	r.IsActive = false
	cancelledAt := now
	r.CancelledAt = &cancelledAt
	r.CancelledReason = reason
}

// IsCurrentlyActive reports whether the reschedule governs the record's
// effective window at the given instant. A cancellation timestamp in the
// future counts as not yet cancelled.
func (r WindowReschedule) IsCurrentlyActive(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.CancelledAt != nil && r.CancelledAt.Before(now) {
		return false
	}
	return true
}

// WasIssuedBeforeOriginalStart reports whether the reschedule respected
// the pre-window precondition at creation time.
func (r WindowReschedule) WasIssuedBeforeOriginalStart() bool {
	return r.RescheduledAt.Before(r.OriginalWindowStart)
}

// HasOneHourWindow reports whether the replacement window honours the
// fixed duration.
func (r WindowReschedule) HasOneHourWindow() bool {
	return r.NewWindowEnd.Sub(r.NewWindowStart) == RescheduledWindowDuration
}

// ShiftFromOriginal is the signed offset between the original and the
// replacement window start.
func (r WindowReschedule) ShiftFromOriginal() time.Duration {
	return r.NewWindowStart.Sub(r.OriginalWindowStart)
}
