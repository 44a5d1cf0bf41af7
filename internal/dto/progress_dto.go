package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/pace-go-api/internal/models"
)

const (
	isoLayout  = time.RFC3339
	dateLayout = "2006-01-02"
)

// ProgressListRequest carries the filters a dashboard may apply before
// projection.
type ProgressListRequest struct {
	StudentID  uint   `query:"student_id"`
	SubjectID  uint   `query:"subject_id"`
	ClassName  string `query:"class_name"`
	WeekNumber int    `query:"week_number"`
	FromDate   string `query:"from_date" validate:"omitempty,datetime=2006-01-02"`
	ToDate     string `query:"to_date" validate:"omitempty,datetime=2006-01-02"`
}

// LessonProgressResponse is the status-annotated projection of one
// progress record. Status and every derived field are computed against
// "now" at projection time and never read back from storage.
type LessonProgressResponse struct {
	ID             uint   `json:"id"`
	StudentID      uint   `json:"student_id"`
	StudentName    string `json:"student_name,omitempty"`
	SubjectID      uint   `json:"subject_id"`
	SubjectName    string `json:"subject_name,omitempty"`
	SubjectCode    string `json:"subject_code,omitempty"`
	LessonTopicID  uint   `json:"lesson_topic_id"`
	LessonTitle    string `json:"lesson_title,omitempty"`
	PeriodNumber   int    `json:"period_number"`
	WeekNumber     int    `json:"week_number"`
	PeriodSequence int    `json:"period_sequence,omitempty"`
	TotalPeriods   int    `json:"total_periods,omitempty"`

	ScheduledDate        string `json:"scheduled_date"`
	ScheduledDateDisplay string `json:"scheduled_date_display"`
	DayOfWeek            string `json:"day_of_week"`

	Status      models.LessonStatus `json:"status"`
	Completed   bool                `json:"completed"`
	CompletedAt string              `json:"completed_at,omitempty"`

	IncompleteReason       models.IncompleteReason `json:"incomplete_reason,omitempty"`
	AutoMarkedIncompleteAt string                  `json:"auto_marked_incomplete_at,omitempty"`

	AssessmentID          *uint    `json:"assessment_id,omitempty"`
	AssessmentTitle       string   `json:"assessment_title,omitempty"`
	AssessmentInstanceID  *uint    `json:"assessment_instance_id,omitempty"`
	SubmissionID          *uint    `json:"submission_id,omitempty"`
	AssessmentScore       *float64 `json:"assessment_score,omitempty"`
	AssessmentWindowStart string   `json:"assessment_window_start,omitempty"`
	AssessmentWindowEnd   string   `json:"assessment_window_end,omitempty"`
	GracePeriodEnd        string   `json:"grace_period_end,omitempty"`

	DaysSinceScheduled      int    `json:"days_since_scheduled"`
	DaysUntilDue            int    `json:"days_until_due"`
	IsOverdue               bool   `json:"is_overdue"`
	RequiresImmediateAction bool   `json:"requires_immediate_action"`
	CanStillComplete        bool   `json:"can_still_complete"`
	CanRetake               bool   `json:"can_retake"`
	GraceRemaining          string `json:"grace_remaining,omitempty"`
}

// NewLessonProgressResponse projects one record against the given
// instant using the supplied missed-fallback horizon.
func NewLessonProgressResponse(record models.LessonProgress, now time.Time, fallbackAfter time.Duration) LessonProgressResponse {
	status := record.StatusWithFallback(now, fallbackAfter)

	response := LessonProgressResponse{
		ID:             record.ID,
		StudentID:      record.StudentID,
		StudentName:    record.Student.Name,
		SubjectID:      record.SubjectID,
		SubjectName:    record.Subject.Name,
		SubjectCode:    record.Subject.Code,
		LessonTopicID:  record.LessonTopicID,
		LessonTitle:    record.LessonTopic.Title,
		PeriodNumber:   record.PeriodNumber,
		WeekNumber:     record.WeekNumber,
		PeriodSequence: record.PeriodSequence,
		TotalPeriods:   record.TotalPeriodsInSequence,

		ScheduledDate:        record.ScheduledDate.Format(dateLayout),
		ScheduledDateDisplay: humanDate(record.ScheduledDate, now),
		DayOfWeek:            record.ScheduledDate.Weekday().String(),

		Status:           status,
		Completed:        record.Completed,
		IncompleteReason: record.IncompleteReason,

		AssessmentID:         record.AssessmentID,
		AssessmentInstanceID: record.AssessmentInstanceID,
		SubmissionID:         record.AssessmentSubmissionID,
		AssessmentScore:      record.AssessmentScore,

		DaysSinceScheduled:      record.DaysSinceScheduledAt(now),
		DaysUntilDue:            record.DaysUntilDueAt(now),
		IsOverdue:               record.IsOverdueAt(now),
		RequiresImmediateAction: record.RequiresImmediateActionAt(now, status),
		CanStillComplete:        record.CanStillCompleteAt(now),
		CanRetake:               record.CanRetakeAt(now),
	}

	if record.Assessment != nil {
		response.AssessmentTitle = record.Assessment.Title
	}
	if record.CompletedAt != nil {
		response.CompletedAt = record.CompletedAt.Format(isoLayout)
	}
	if record.AutoMarkedIncompleteAt != nil {
		response.AutoMarkedIncompleteAt = record.AutoMarkedIncompleteAt.Format(isoLayout)
	}
	if record.AssessmentWindowStart != nil {
		response.AssessmentWindowStart = record.AssessmentWindowStart.Format(isoLayout)
	}
	if record.AssessmentWindowEnd != nil {
		response.AssessmentWindowEnd = record.AssessmentWindowEnd.Format(isoLayout)
	}
	if record.GracePeriodEnd != nil {
		response.GracePeriodEnd = record.GracePeriodEnd.Format(isoLayout)
	}
	if remaining, ok := record.GraceRemainingAt(now); ok {
		response.GraceRemaining = humanDuration(remaining)
	} else if record.GracePeriodEnd != nil {
		response.GraceRemaining = "Expired"
	}

	return response
}

// NewLessonProgressResponseSlice projects a batch of records against a
// single shared instant; the input slice is never mutated.
func NewLessonProgressResponseSlice(records []models.LessonProgress, now time.Time, fallbackAfter time.Duration) []LessonProgressResponse {
	responses := make([]LessonProgressResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewLessonProgressResponse(record, now, fallbackAfter))
	}

	return responses
}

func humanDate(date, now time.Time) string {
	day := date.Format(dateLayout)
	switch day {
	case now.Format(dateLayout):
		return "Today"
	case now.AddDate(0, 0, 1).Format(dateLayout):
		return "Tomorrow"
	case now.AddDate(0, 0, -1).Format(dateLayout):
		return "Yesterday"
	}
	return date.Format("January 2, 2006")
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours())/24)
	case d >= 24*time.Hour:
		return "1 day"
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d >= time.Hour:
		return "1 hour"
	case d >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return "1 minute"
	}
}
