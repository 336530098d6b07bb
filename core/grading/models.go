package grading

import (
	"encoding/json"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

// Submission statuses
const (
	SubmissionSubmitted = "submitted"
	SubmissionGraded    = "graded"
)

type Submission struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	StudentID    string    `json:"student_id"`
	Content      string    `json:"content"`
	FilePath     string    `json:"file_path"`
	Status       string    `json:"status"`
	SubmittedAt  time.Time `json:"submitted_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Grade is the current grade of a submission. Each regrade bumps Version and leaves a HistoryEntry.
type Grade struct {
	ID           string     `json:"id"`
	SubmissionID string     `json:"submission_id"`
	AssignmentID string     `json:"assignment_id"`
	StudentID    string     `json:"student_id"`
	Score        float64    `json:"score"`
	MaxScore     float64    `json:"max_score"`
	Percentage   float64    `json:"percentage"`
	Letter       string     `json:"letter"`
	Feedback     string     `json:"feedback"`
	Version      int        `json:"version"`
	Published    bool       `json:"published"`
	PublishedAt  *time.Time `json:"published_at"`
	GradedBy     *string    `json:"graded_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type HistoryEntry struct {
	ID        string    `json:"id"`
	GradeID   string    `json:"grade_id"`
	Version   int       `json:"version"`
	Score     float64   `json:"score"`
	Feedback  string    `json:"feedback"`
	GradedBy  *string   `json:"graded_by"`
	CreatedAt time.Time `json:"created_at"`
}

type SubmissionData struct {
	Content string `json:"content" form:"content"`
}

type GradeData struct {
	Score    *float64 `json:"score" validate:"required,gte=0"`
	Feedback string   `json:"feedback"`
}

func (d *GradeData) Validate(validate *validator.Validate) error {
	d.Feedback = core.CleanString(d.Feedback)
	return validate.Struct(d)
}

// ReportEntry is one published grade of a student report.
type ReportEntry struct {
	CourseID        string     `json:"course_id"`
	AssignmentID    string     `json:"assignment_id"`
	AssignmentTitle string     `json:"assignment_title"`
	Score           float64    `json:"score"`
	MaxScore        float64    `json:"max_score"`
	Percentage      float64    `json:"percentage"`
	Letter          string     `json:"letter"`
	PublishedAt     *time.Time `json:"published_at"`
}

type Report struct {
	Entries []ReportEntry `json:"entries"`
	GPA     float64       `json:"gpa"`
}

// MarshalJSON shows the GPA rounded to 2 decimals.
func (r Report) MarshalJSON() ([]byte, error) {
	type report Report
	out := report(r)
	out.GPA = math.Round(r.GPA*100) / 100
	return json.Marshal(out)
}
