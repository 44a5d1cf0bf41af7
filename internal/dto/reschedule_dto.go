package dto

import (
	"time"

	"github.com/noah-isme/pace-go-api/internal/models"
)

// RescheduleCreateRequest is the teacher's request to replace a
// not-yet-opened assessment window. Only the new start is taken from the
// request: the end and grace are fixed by construction.
type RescheduleCreateRequest struct {
	LessonProgressID uint   `json:"lesson_progress_id" validate:"required"`
	NewWindowStart   string `json:"new_window_start" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Reason           string `json:"reason" validate:"required"`
}

// RescheduleCancelRequest carries the cancellation reason.
type RescheduleCancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RescheduleResponse is the serialized reschedule record.
type RescheduleResponse struct {
	ID               uint `json:"id"`
	LessonProgressID uint `json:"lesson_progress_id"`
	AssessmentID     uint `json:"assessment_id"`
	StudentID        uint `json:"student_id"`
	TeacherID        uint `json:"teacher_id"`

	OriginalWindowStart string `json:"original_window_start"`
	OriginalWindowEnd   string `json:"original_window_end"`
	OriginalGraceEnd    string `json:"original_grace_end,omitempty"`

	NewWindowStart string `json:"new_window_start"`
	NewWindowEnd   string `json:"new_window_end"`
	NewGraceEnd    string `json:"new_grace_end"`

	Reason        string `json:"reason"`
	RescheduledAt string `json:"rescheduled_at"`

	IsActive        bool   `json:"is_active"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CancelledReason string `json:"cancelled_reason,omitempty"`

	ShiftFromOriginal string `json:"shift_from_original"`
}

// NewRescheduleResponse converts a model into a DTO.
func NewRescheduleResponse(model models.WindowReschedule) RescheduleResponse {
	response := RescheduleResponse{
		ID:                  model.ID,
		LessonProgressID:    model.LessonProgressID,
		AssessmentID:        model.AssessmentID,
		StudentID:           model.StudentID,
		TeacherID:           model.TeacherID,
		OriginalWindowStart: model.OriginalWindowStart.Format(isoLayout),
		OriginalWindowEnd:   model.OriginalWindowEnd.Format(isoLayout),
		NewWindowStart:      model.NewWindowStart.Format(isoLayout),
		NewWindowEnd:        model.NewWindowEnd.Format(isoLayout),
		NewGraceEnd:         model.NewGraceEnd.Format(isoLayout),
		Reason:              model.Reason,
		RescheduledAt:       model.RescheduledAt.Format(isoLayout),
		IsActive:            model.IsActive,
		CancelledReason:     model.CancelledReason,
		ShiftFromOriginal:   humanShift(model.ShiftFromOriginal()),
	}

	if model.OriginalGraceEnd != nil {
		response.OriginalGraceEnd = model.OriginalGraceEnd.Format(isoLayout)
	}
	if model.CancelledAt != nil {
		response.CancelledAt = model.CancelledAt.Format(isoLayout)
	}

	return response
}

// NewRescheduleResponseSlice converts a slice of models into DTOs.
func NewRescheduleResponseSlice(reschedules []models.WindowReschedule) []RescheduleResponse {
	responses := make([]RescheduleResponse, 0, len(reschedules))
	for _, reschedule := range reschedules {
		responses = append(responses, NewRescheduleResponse(reschedule))
	}

	return responses
}

func humanShift(shift time.Duration) string {
	if shift == 0 {
		return "unchanged"
	}
	if shift > 0 {
		return humanDuration(shift) + " later"
	}
	return humanDuration(-shift) + " earlier"
}
