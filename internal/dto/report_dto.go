package dto

import "github.com/noah-isme/pace-go-api/internal/models"

// ReportRequest scopes a comprehensive report.
type ReportRequest struct {
	StudentID uint   `query:"student_id"`
	ClassName string `query:"class_name"`
	SubjectID uint   `query:"subject_id"`
	FromDate  string `query:"from_date" validate:"omitempty,datetime=2006-01-02"`
	ToDate    string `query:"to_date" validate:"omitempty,datetime=2006-01-02"`

	// Optional upstream overrides for the on-track / at-risk verdicts.
	IsOnTrack *bool `query:"-"`
	IsAtRisk  *bool `query:"-"`
}

// StatusCounts holds the per-status tallies of a report.
type StatusCounts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Missed     int `json:"missed"`
	InProgress int `json:"in_progress"`
	Scheduled  int `json:"scheduled"`
}

// SubjectGroup is one subject's slice of a report, in the order records
// first appeared in the input.
type SubjectGroup struct {
	SubjectID   uint                     `json:"subject_id"`
	SubjectName string                   `json:"subject_name"`
	Lessons     []LessonProgressResponse `json:"lessons"`
}

// ComprehensiveReport rolls many projected records up into the
// statistics the dashboards consume.
type ComprehensiveReport struct {
	StudentID     uint   `json:"student_id,omitempty"`
	StudentName   string `json:"student_name,omitempty"`
	ClassName     string `json:"class_name,omitempty"`
	FromDate      string `json:"from_date,omitempty"`
	ToDate        string `json:"to_date,omitempty"`
	DateRangeDays int    `json:"date_range_days,omitempty"`

	Counts StatusCounts `json:"counts"`

	CompletionRate float64 `json:"completion_rate"`
	MissedRate     float64 `json:"missed_rate"`
	OnTrackRate    float64 `json:"on_track_rate"`
	IsOnTrack      bool    `json:"is_on_track"`
	IsAtRisk       bool    `json:"is_at_risk"`

	LessonsByStatus map[models.LessonStatus][]LessonProgressResponse `json:"lessons_by_status"`
	SubjectGroups   []SubjectGroup                                   `json:"subject_groups"`
	UrgentLessons   []LessonProgressResponse                         `json:"urgent_lessons"`
	AllLessons      []LessonProgressResponse                         `json:"all_lessons"`

	CacheHit bool `json:"cache_hit,omitempty"`
}
