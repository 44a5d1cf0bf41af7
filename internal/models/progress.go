package models

import "time"

// LessonStatus is the derived state of one scheduled lesson occurrence.
// It is never persisted: it is recomputed from the stored facts on every
// read so that it can never go stale as the clock advances.
type LessonStatus string

const (
	StatusScheduled  LessonStatus = "SCHEDULED"
	StatusInProgress LessonStatus = "IN_PROGRESS"
	StatusCompleted  LessonStatus = "COMPLETED"
	StatusMissed     LessonStatus = "MISSED"
)

// IncompleteReason records why a lesson was marked incomplete by the
// submission pipeline. An empty value means no reason has been set.
type IncompleteReason string

const (
	IncompleteMissedGracePeriod IncompleteReason = "MISSED_GRACE_PERIOD"
	IncompleteLateSubmission    IncompleteReason = "LATE_SUBMISSION"
	IncompleteNoSubmission      IncompleteReason = "NO_SUBMISSION"
)

// immediateActionOverdueDays is the overdue threshold beyond which an
// uncompleted lesson demands immediate attention.
const immediateActionOverdueDays = 3

// LessonProgress is one student's one scheduled attempt at one lesson
// topic. Window fields are owned by scheduling/rescheduling, completion
// and incompleteness fields by the submission pipeline; this package
// only derives from them.
type LessonProgress struct {
	ID                     uint             `gorm:"primaryKey" json:"id"`
	StudentID              uint             `gorm:"not null;uniqueIndex:idx_progress_occurrence;index" json:"student_id"`
	LessonTopicID          uint             `gorm:"not null;uniqueIndex:idx_progress_occurrence;index" json:"lesson_topic_id"`
	SubjectID              uint             `gorm:"not null;index" json:"subject_id"`
	AssessmentID           *uint            `gorm:"index" json:"assessment_id"`
	AssessmentInstanceID   *uint            `json:"assessment_instance_id"`
	AssessmentSubmissionID *uint            `json:"assessment_submission_id"`
	ScheduledDate          time.Time        `gorm:"not null;uniqueIndex:idx_progress_occurrence" json:"scheduled_date"`
	PeriodNumber           int              `gorm:"not null;uniqueIndex:idx_progress_occurrence" json:"period_number"`
	WeekNumber             int              `gorm:"index" json:"week_number"`
	PeriodSequence         int              `json:"period_sequence"`
	TotalPeriodsInSequence int              `json:"total_periods_in_sequence"`
	AssessmentWindowStart  *time.Time       `json:"assessment_window_start"`
	AssessmentWindowEnd    *time.Time       `json:"assessment_window_end"`
	GracePeriodEnd         *time.Time       `json:"grace_period_end"`
	Completed              bool             `gorm:"not null;default:false" json:"completed"`
	CompletedAt            *time.Time       `json:"completed_at"`
	IncompleteReason       IncompleteReason `gorm:"size:100" json:"incomplete_reason"`
	AutoMarkedIncompleteAt *time.Time       `json:"auto_marked_incomplete_at"`
	AssessmentScore        *float64         `json:"assessment_score"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`

	Student     Student     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	Subject     Subject     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"subject"`
	LessonTopic LessonTopic `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"lesson_topic"`
	Assessment  *Assessment `json:"assessment"`
}

// StatusAt derives the lesson status at the given instant using the
// default fallback policy (stale pre-window records are MISSED
// immediately once their scheduled day has passed).
func (p LessonProgress) StatusAt(now time.Time) LessonStatus {
	return p.StatusWithFallback(now, 0)
}

// StatusWithFallback derives the lesson status at the given instant.
// Priority order: completion always wins, then an explicit incomplete
// reason, then an expired grace period, then an open window, then a
// scheduled day that has not passed. Records that fall through all of
// those (old lessons whose window was never closed out) become MISSED
// once they are older than fallbackAfter past their scheduled day;
// fallbackAfter <= 0 reclassifies them immediately.
func (p LessonProgress) StatusWithFallback(now time.Time, fallbackAfter time.Duration) LessonStatus {
	if p.Completed {
		return StatusCompleted
	}

	if p.IncompleteReason != "" {
		return StatusMissed
	}

	if p.GracePeriodEnd != nil && now.After(*p.GracePeriodEnd) {
		return StatusMissed
	}

	if p.AssessmentWindowStart != nil && !now.Before(*p.AssessmentWindowStart) &&
		(p.GracePeriodEnd == nil || !now.After(*p.GracePeriodEnd)) {
		return StatusInProgress
	}

	scheduled := dateOf(p.ScheduledDate)
	if !scheduled.Before(dateOf(now)) {
		return StatusScheduled
	}

	if fallbackAfter > 0 && now.Sub(scheduled) <= fallbackAfter {
		return StatusScheduled
	}

	return StatusMissed
}

// DaysSinceScheduledAt returns calendar days elapsed since the scheduled
// date; negative values mean the lesson is still in the future.
func (p LessonProgress) DaysSinceScheduledAt(now time.Time) int {
	return int(dateOf(now).Sub(dateOf(p.ScheduledDate)).Hours() / 24)
}

// DaysUntilDueAt is the calendar-day distance to the scheduled date;
// negative once the lesson is past due.
func (p LessonProgress) DaysUntilDueAt(now time.Time) int {
	return -p.DaysSinceScheduledAt(now)
}

// IsOverdueAt reports whether the lesson is past due without completion:
// its scheduled day has passed, or its assessment window has already
// closed.
func (p LessonProgress) IsOverdueAt(now time.Time) bool {
	if p.Completed {
		return false
	}
	if p.DaysSinceScheduledAt(now) > 0 {
		return true
	}
	return p.AssessmentWindowEnd != nil && p.AssessmentWindowEnd.Before(now)
}

// RequiresImmediateActionAt flags lessons that are MISSED or overdue by
// more than three days.
func (p LessonProgress) RequiresImmediateActionAt(now time.Time, status LessonStatus) bool {
	if status == StatusMissed {
		return true
	}
	return p.IsOverdueAt(now) && p.DaysSinceScheduledAt(now) > immediateActionOverdueDays
}

// CanStillCompleteAt reports whether completion is still possible: not
// yet completed and either no window end is set or it is still open.
func (p LessonProgress) CanStillCompleteAt(now time.Time) bool {
	if p.Completed {
		return false
	}
	return p.AssessmentWindowEnd == nil || p.AssessmentWindowEnd.After(now)
}

// CanRetakeAt reports whether an incomplete lesson may still be retaken
// inside its window.
func (p LessonProgress) CanRetakeAt(now time.Time) bool {
	if p.IncompleteReason == "" {
		return false
	}
	return p.AssessmentWindowEnd != nil && p.AssessmentWindowEnd.After(now)
}

// GraceRemainingAt returns the time left until the grace period closes.
// The boolean is false when no grace end is set or it has already
// passed.
func (p LessonProgress) GraceRemainingAt(now time.Time) (time.Duration, bool) {
	if p.GracePeriodEnd == nil || !p.GracePeriodEnd.After(now) {
		return 0, false
	}
	return p.GracePeriodEnd.Sub(now), true
}

// IsMultiPeriod reports whether the lesson topic recurs more than once
// in its week.
func (p LessonProgress) IsMultiPeriod() bool {
	return p.TotalPeriodsInSequence > 1
}

// IsFirstPeriod reports whether this occurrence opens the sequence.
func (p LessonProgress) IsFirstPeriod() bool {
	return p.PeriodSequence == 1
}

// IsLastPeriod reports whether this occurrence closes the sequence.
func (p LessonProgress) IsLastPeriod() bool {
	return p.PeriodSequence > 0 && p.PeriodSequence == p.TotalPeriodsInSequence
}

func dateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
