package course

import (
	"encoding/json"
	"time"
)

// Lifecycle statuses of courses, modules and lessons
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Exam roles inside an exam-gated module
const (
	ExamRolePrimary = "primary"
	ExamRoleRetake  = "retake"
)

// Attempt statuses
const (
	AttemptInProgress = "in_progress"
	AttemptSubmitted  = "submitted"
	AttemptGraded     = "graded"
)

type Course struct {
	ID            string     `json:"id"`
	ProgramID     string     `json:"program_id"`
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	CreditHours   int        `json:"credit_hours"`
	Status        string     `json:"status"`
	InstructorIDs []string   `json:"instructor_ids"`
	CreatedBy     *string    `json:"created_by"`
	UpdatedBy     *string    `json:"updated_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"-"`
}

func (c Course) IsPublished() bool { return c.Status == StatusPublished && c.DeletedAt == nil }

func (c Course) HasInstructor(instructorID string) bool {
	for _, id := range c.InstructorIDs {
		if id == instructorID {
			return true
		}
	}
	return false
}

type Module struct {
	ID               string    `json:"id"`
	CourseID         string    `json:"course_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	OrderIndex       int       `json:"order_index"`
	RequiresExamPass bool      `json:"requires_exam_pass"`
	Status           string    `json:"status"`
	CreatedBy        *string   `json:"created_by"`
	UpdatedBy        *string   `json:"updated_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (m Module) IsPublished() bool { return m.Status == StatusPublished }

// Publishable is implemented by everything that has a published state.
type Publishable interface {
	IsPublished() bool
}

type ItemType string

const (
	ItemLesson     ItemType = "lesson"
	ItemQuiz       ItemType = "quiz"
	ItemAssignment ItemType = "assignment"
)

// ItemContent is the content a ModuleItem points to: a Lesson, a Quiz or an Assignment.
type ItemContent interface {
	Publishable
	ItemType() ItemType
	ContentID() string
	ContentTitle() string
	// Weight is the item's share of the module's progress.
	Weight() int

	itemContent()
}

type Lesson struct {
	ID              string    `json:"id"`
	ModuleID        string    `json:"module_id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	MediaPath       string    `json:"media_path"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (l Lesson) IsPublished() bool    { return l.Status == StatusPublished }
func (l Lesson) ItemType() ItemType   { return ItemLesson }
func (l Lesson) ContentID() string    { return l.ID }
func (l Lesson) ContentTitle() string { return l.Title }
func (l Lesson) Weight() int          { return 1 }
func (Lesson) itemContent()           {}

type Question struct {
	ID            string   `json:"id"`
	QuizID        string   `json:"quiz_id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Points        int      `json:"points"`
	Position      int      `json:"position"`
}

type Quiz struct {
	ID               string     `json:"id"`
	CourseID         string     `json:"course_id"`
	ModuleID         *string    `json:"module_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	IsExam           bool       `json:"is_exam"`
	ExamRole         string     `json:"exam_role"`
	PassingScore     float64    `json:"passing_score"` // percentage
	TotalPoints      int        `json:"total_points"`
	Published        bool       `json:"published"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Questions        []Question `json:"questions"`
}

func (q Quiz) IsPublished() bool    { return q.Published }
func (q Quiz) ItemType() ItemType   { return ItemQuiz }
func (q Quiz) ContentID() string    { return q.ID }
func (q Quiz) ContentTitle() string { return q.Title }
func (q Quiz) Weight() int          { return pointsWeight(q.TotalPoints) }
func (Quiz) itemContent()           {}

// IsModuleExam reports whether the quiz is an exam attached to a module.
func (q Quiz) IsModuleExam() bool { return q.IsExam && q.ModuleID != nil }

func (q Quiz) Passed(percentage float64) bool { return percentage >= q.PassingScore }

type Assignment struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	ModuleID     *string    `json:"module_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	TotalPoints  int        `json:"total_points"`
	PassingScore float64    `json:"passing_score"` // percentage
	DueAt        *time.Time `json:"due_at"`
	Published    bool       `json:"is_published"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

func (a Assignment) IsPublished() bool    { return a.Published && a.DeletedAt == nil }
func (a Assignment) ItemType() ItemType   { return ItemAssignment }
func (a Assignment) ContentID() string    { return a.ID }
func (a Assignment) ContentTitle() string { return a.Title }
func (a Assignment) Weight() int          { return pointsWeight(a.TotalPoints) }
func (Assignment) itemContent()           {}

func (a Assignment) Passed(percentage float64) bool { return percentage >= a.PassingScore }

func pointsWeight(points int) int {
	if points <= 0 {
		return 1
	}
	return points
}

// ModuleItem places one piece of content at a position inside a module.
type ModuleItem struct {
	ID            string      `json:"id"`
	ModuleID      string      `json:"module_id"`
	OrderPosition int         `json:"order_position"`
	CreatedAt     time.Time   `json:"created_at"`
	Content       ItemContent `json:"-"`
}

func (it ModuleItem) IsPublished() bool {
	return it.Content != nil && it.Content.IsPublished()
}

func (it ModuleItem) Type() ItemType {
	if it.Content == nil {
		return ""
	}
	return it.Content.ItemType()
}

func (it ModuleItem) Weight() int {
	if it.Content == nil {
		return 0
	}
	return it.Content.Weight()
}

// Quiz returns the item's quiz, if it holds one.
func (it ModuleItem) Quiz() (Quiz, bool) {
	q, ok := it.Content.(Quiz)
	return q, ok
}

func (it ModuleItem) MarshalJSON() ([]byte, error) {
	out := struct {
		ID            string      `json:"id"`
		ModuleID      string      `json:"module_id"`
		OrderPosition int         `json:"order_position"`
		ItemType      ItemType    `json:"item_type"`
		ContentID     string      `json:"content_id"`
		Title         string      `json:"title"`
		Weight        int         `json:"weight"`
		IsPublished   bool        `json:"is_published"`
		CreatedAt     time.Time   `json:"created_at"`
		Content       ItemContent `json:"content"`
	}{
		ID:            it.ID,
		ModuleID:      it.ModuleID,
		OrderPosition: it.OrderPosition,
		ItemType:      it.Type(),
		Weight:        it.Weight(),
		IsPublished:   it.IsPublished(),
		CreatedAt:     it.CreatedAt,
		Content:       it.Content,
	}
	if it.Content != nil {
		out.ContentID = it.Content.ContentID()
		out.Title = it.Content.ContentTitle()
	}
	return json.Marshal(out)
}

// ModuleOutline is a module along with its items ordered by position.
type ModuleOutline struct {
	Module Module       `json:"module"`
	Items  []ModuleItem `json:"items"`
}

// Exams returns the module's exams ordered by item position.
func (o ModuleOutline) Exams() []Quiz {
	exams := make([]Quiz, 0, 2)
	for _, it := range o.Items {
		if q, ok := it.Quiz(); ok && q.IsExam {
			exams = append(exams, q)
		}
	}
	return exams
}

func (o ModuleOutline) PrimaryExam() (Quiz, bool) {
	for _, q := range o.Exams() {
		if q.ExamRole == ExamRolePrimary {
			return q, true
		}
	}
	return Quiz{}, false
}

func (o ModuleOutline) RetakeExam() (Quiz, bool) {
	for _, q := range o.Exams() {
		if q.ExamRole == ExamRoleRetake {
			return q, true
		}
	}
	return Quiz{}, false
}

// RequiresExamToUnlockNext reports whether the module gates the following ones:
// the flag alone is not enough, the module must own a primary exam.
func (o ModuleOutline) RequiresExamToUnlockNext() bool {
	if !o.Module.RequiresExamPass {
		return false
	}
	_, ok := o.PrimaryExam()
	return ok
}

// PublishedItems returns the items counting toward progress.
func (o ModuleOutline) PublishedItems() []ModuleItem {
	if !o.Module.IsPublished() {
		return nil
	}
	items := make([]ModuleItem, 0, len(o.Items))
	for _, it := range o.Items {
		if it.IsPublished() {
			items = append(items, it)
		}
	}
	return items
}

type QuizAttempt struct {
	ID          string         `json:"id"`
	QuizID      string         `json:"quiz_id"`
	StudentID   string         `json:"student_id"`
	Status      string         `json:"status"`
	Answers     map[string]int `json:"answers"` // {question_id: option index}
	Score       float64        `json:"score"`
	MaxScore    float64        `json:"max_score"`
	Percentage  float64        `json:"percentage"`
	StartedAt   time.Time      `json:"started_at"`
	SubmittedAt *time.Time     `json:"submitted_at"`
	GradedAt    *time.Time     `json:"graded_at"`
}

// IsFinished reports whether the attempt was submitted (and possibly graded).
func (a QuizAttempt) IsFinished() bool {
	return a.Status == AttemptSubmitted || a.Status == AttemptGraded
}
